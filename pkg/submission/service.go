/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/moncoffretelec/coffret/pkg/audit"
	"github.com/moncoffretelec/coffret/pkg/config"
	"github.com/moncoffretelec/coffret/pkg/dedup"
	"github.com/moncoffretelec/coffret/pkg/intake"
	"github.com/moncoffretelec/coffret/pkg/metrics"
	"github.com/moncoffretelec/coffret/pkg/notify"
	"github.com/moncoffretelec/coffret/pkg/render"
	"github.com/moncoffretelec/coffret/pkg/system"
	"github.com/moncoffretelec/coffret/pkg/telemetry"
)

var (
	// ErrDuplicate is returned when the same record was accepted recently.
	ErrDuplicate = errors.New("submission already sent")
	// ErrBusy is returned when no in-flight slot became free in time.
	ErrBusy = errors.New("too many submissions in flight")
)

// Renderer produces the summary document for a record.
type Renderer interface {
	Render(ctx context.Context, rec intake.Record) (*render.Document, error)
}

// Dispatcher delivers a rendered document and removes it afterwards.
type Dispatcher interface {
	Dispatch(ctx context.Context, doc *render.Document, rec intake.Record) notify.Outcome
}

// Auditor receives one event per submission outcome. *audit.Recorder
// implements it.
type Auditor interface {
	Record(event *audit.Event)
}

// Result describes a submission that reached the render step.
type Result struct {
	ID        string
	Outcome   notify.Outcome
	Fallbacks []string
}

type Options struct {
	MaxInFlight int
	// QueueTimeout bounds the wait for an in-flight slot on top of the
	// caller's context. Zero waits as long as the context allows.
	QueueTimeout time.Duration
	Guard        dedup.Guard
	Tracer       trace.Tracer
	Auditor      Auditor
}

// OptionsFromConfig maps the limits section of the configuration.
func OptionsFromConfig(cfg config.Limits, guard dedup.Guard, auditor Auditor) Options {
	return Options{
		MaxInFlight:  cfg.MaxInFlight,
		QueueTimeout: cfg.QueueTimeout,
		Guard:        guard,
		Auditor:      auditor,
	}
}

// Service is shared by all requests. Apart from the renderer, dispatcher and
// guard it only holds the in-flight semaphore.
type Service struct {
	renderer     Renderer
	dispatcher   Dispatcher
	guard        dedup.Guard
	sem          *semaphore.Weighted
	queueTimeout time.Duration
	tracer       trace.Tracer
	auditor      Auditor
	log          *zap.SugaredLogger
}

func NewService(renderer Renderer, dispatcher Dispatcher, opts Options, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = config.DefaultMaxInFlight
	}
	if opts.Guard == nil {
		opts.Guard = dedup.Noop{}
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer()
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.Nop{}
	}
	return &Service{
		renderer:     renderer,
		dispatcher:   dispatcher,
		guard:        opts.Guard,
		sem:          semaphore.NewWeighted(int64(opts.MaxInFlight)),
		queueTimeout: opts.QueueTimeout,
		tracer:       opts.Tracer,
		auditor:      opts.Auditor,
		log:          log,
	}
}

// Submit validates rec, renders it and sends both notifications. The error
// is nil only when both messages were delivered. Validation, duplicate and
// busy errors are returned before any document exists. Once rendering has
// started the submission runs to completion even if ctx is cancelled.
func (s *Service) Submit(ctx context.Context, rec intake.Record) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit")
	defer span.End()

	log := s.log.With(system.SubmissionFields("", rec.Email)...)

	if err := rec.Validate(); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		span.SetStatus(codes.Error, "invalid record")
		log.Infow("Rejected invalid submission", "error", err)
		s.audit(audit.EventSubmissionRejected, metrics.ResultInvalid, rec, Result{}, err)
		return Result{}, err
	}

	fingerprint := rec.Fingerprint()
	claimed, err := s.guard.Claim(ctx, fingerprint)
	switch {
	case err != nil:
		// Fail open: a Redis outage must not block submissions.
		log.Warnw("Duplicate guard unavailable, continuing", "error", err)
	case !claimed:
		metrics.SubmissionsTotal.WithLabelValues(metrics.ResultDuplicate).Inc()
		span.SetStatus(codes.Error, "duplicate")
		log.Infow("Rejected duplicate submission")
		s.audit(audit.EventSubmissionRejected, metrics.ResultDuplicate, rec, Result{}, ErrDuplicate)
		return Result{}, ErrDuplicate
	}

	if err := s.acquire(ctx); err != nil {
		s.release(context.WithoutCancel(ctx), claimed, fingerprint, log)
		metrics.SubmissionsTotal.WithLabelValues(metrics.ResultBusy).Inc()
		span.SetStatus(codes.Error, "busy")
		log.Warnw("No in-flight slot available", "error", err)
		err = fmt.Errorf("%w: %v", ErrBusy, err)
		s.audit(audit.EventSubmissionRejected, metrics.ResultBusy, rec, Result{}, err)
		return Result{}, err
	}
	defer s.sem.Release(1)

	metrics.SubmissionsInFlight.Inc()
	defer metrics.SubmissionsInFlight.Dec()

	work := context.WithoutCancel(ctx)

	doc, err := s.render(work, rec)
	if err != nil {
		s.release(work, claimed, fingerprint, log)
		metrics.SubmissionsTotal.WithLabelValues(metrics.ResultRenderFail).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		log.Errorw("Failed to render summary", "error", err)
		s.audit(audit.EventSubmissionFailed, metrics.ResultRenderFail, rec, Result{}, err)
		return Result{}, err
	}

	res := Result{ID: doc.ID, Fallbacks: doc.Fallbacks}
	span.SetAttributes(attribute.String("submission.id", doc.ID))
	log = log.With("submissionID", doc.ID)
	if len(doc.Fallbacks) > 0 {
		log.Warnw("Summary rendered with substituted assets", "fallbacks", doc.Fallbacks)
	}

	res.Outcome = s.dispatch(work, doc, rec)
	if err := res.Outcome.Err(); err != nil {
		s.release(work, claimed, fingerprint, log)
		metrics.SubmissionsTotal.WithLabelValues(metrics.ResultSendFail).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		log.Errorw("Submission not fully delivered",
			"clientSent", res.Outcome.ClientSent(),
			"operatorSent", res.Outcome.OperatorSent())
		s.audit(audit.EventSubmissionFailed, metrics.ResultSendFail, rec, res, err)
		return res, err
	}

	metrics.SubmissionsTotal.WithLabelValues(metrics.ResultSent).Inc()
	log.Infow("Submission delivered")
	s.audit(audit.EventSubmissionCompleted, metrics.ResultSent, rec, res, nil)
	return res, nil
}

func (s *Service) audit(t audit.EventType, result string, rec intake.Record, res Result, err error) {
	event := audit.NewEvent(t, result)
	event.SubmissionID = res.ID
	event.Client = system.MaskEmail(rec.ClientEmail())
	event.Fallbacks = res.Fallbacks
	if res.ID != "" {
		event.ClientSent = res.Outcome.ClientSent()
		event.OperatorSent = res.Outcome.OperatorSent()
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.auditor.Record(event)
}

func (s *Service) acquire(ctx context.Context) error {
	if s.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queueTimeout)
		defer cancel()
	}
	return s.sem.Acquire(ctx, 1)
}

func (s *Service) render(ctx context.Context, rec intake.Record) (*render.Document, error) {
	ctx, span := s.tracer.Start(ctx, "submission.render")
	defer span.End()
	doc, err := s.renderer.Render(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("document.size", doc.Size),
		attribute.StringSlice("document.fallbacks", doc.Fallbacks),
	)
	return doc, nil
}

func (s *Service) dispatch(ctx context.Context, doc *render.Document, rec intake.Record) notify.Outcome {
	ctx, span := s.tracer.Start(ctx, "submission.dispatch")
	defer span.End()
	out := s.dispatcher.Dispatch(ctx, doc, rec)
	span.SetAttributes(
		attribute.Bool("notify.client_sent", out.ClientSent()),
		attribute.Bool("notify.operator_sent", out.OperatorSent()),
	)
	if !out.OK() {
		span.SetStatus(codes.Error, "notification failed")
	}
	return out
}

// release drops the duplicate claim of a submission that did not go through
// so the client can retry immediately.
func (s *Service) release(ctx context.Context, claimed bool, fingerprint string, log *zap.SugaredLogger) {
	if !claimed {
		return
	}
	if err := s.guard.Release(ctx, fingerprint); err != nil {
		log.Warnw("Failed to release duplicate claim", "error", err)
	}
}
