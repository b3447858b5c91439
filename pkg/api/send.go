package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moncoffretelec/coffret/pkg/apiresponses"
	"github.com/moncoffretelec/coffret/pkg/intake"
	"github.com/moncoffretelec/coffret/pkg/submission"
	"github.com/moncoffretelec/coffret/pkg/system"
)

// send handles POST /send. The response never carries internal error
// details; those are logged.
func (s *Server) send(c *gin.Context) {
	log := system.GetReqLogger(c, s.log)

	var rec intake.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			// An empty body is an empty record; validation reports the missing email.
		case errors.As(err, &tooLarge):
			log.Infow("Submission body too large", "limit", tooLarge.Limit)
			apiresponses.RespondPayloadTooLarge(c)
			return
		default:
			log.Infow("Malformed submission body", "error", err)
			apiresponses.RespondBadRequest(c, apiresponses.MsgBadRequest)
			return
		}
	}
	log = log.With(system.SubmissionFields("", rec.Email)...)

	res, err := s.submissions.Submit(c.Request.Context(), rec)
	switch {
	case err == nil:
		apiresponses.RespondSuccess(c, apiresponses.MsgSent)
	case errors.Is(err, intake.ErrEmailRequired):
		apiresponses.RespondBadRequest(c, apiresponses.MsgEmailRequired)
	case errors.Is(err, intake.ErrEmailInvalid):
		apiresponses.RespondBadRequest(c, apiresponses.MsgEmailInvalid)
	case errors.Is(err, submission.ErrDuplicate):
		apiresponses.RespondConflict(c, apiresponses.MsgDuplicate)
	case errors.Is(err, submission.ErrBusy):
		apiresponses.RespondServiceUnavailable(c, apiresponses.MsgBusy)
	default:
		apiresponses.RespondInternalError(c, apiresponses.MsgSendFailed, err, log.With(
			"submissionID", res.ID,
			"clientSent", res.ID != "" && res.Outcome.ClientSent(),
			"operatorSent", res.ID != "" && res.Outcome.OperatorSent(),
		))
	}
}
