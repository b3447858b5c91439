package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/moncoffretelec/coffret/pkg/intake"
	"github.com/moncoffretelec/coffret/pkg/mail"
	"github.com/moncoffretelec/coffret/pkg/render"
	"github.com/moncoffretelec/coffret/pkg/system"
)

// Recipient kinds. They double as mail tags and metric labels.
const (
	RecipientClient   = "client"
	RecipientOperator = "operator"
)

const (
	AttachmentName  = "recap.pdf"
	ClientSubject   = "Votre récapitulatif MonCoffretElec"
	ClientBody      = "Veuillez trouver en pièce jointe le récapitulatif de votre demande."
	OperatorSubject = "Nouvelle demande client - MonCoffretElec"
)

// ErrNoOperator is reported for the operator message when no operator
// address is configured.
var ErrNoOperator = errors.New("no operator address configured")

// NotificationFailure reports a failed send to one recipient.
type NotificationFailure struct {
	Recipient string
	Err       error
}

func (e *NotificationFailure) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Recipient, e.Err)
}

func (e *NotificationFailure) Unwrap() error { return e.Err }

// Outcome holds the result of both sends. A nil field means that send succeeded.
type Outcome struct {
	Client   error
	Operator error
}

func (o Outcome) ClientSent() bool   { return o.Client == nil }
func (o Outcome) OperatorSent() bool { return o.Operator == nil }

// OK reports whether both messages were delivered.
func (o Outcome) OK() bool { return o.ClientSent() && o.OperatorSent() }

// Err joins the failed sends, or returns nil when both succeeded.
func (o Outcome) Err() error {
	var errs []error
	if o.Client != nil {
		errs = append(errs, &NotificationFailure{Recipient: RecipientClient, Err: o.Client})
	}
	if o.Operator != nil {
		errs = append(errs, &NotificationFailure{Recipient: RecipientOperator, Err: o.Operator})
	}
	return errors.Join(errs...)
}

// Dispatcher delivers rendered summaries to the client and the operator.
type Dispatcher struct {
	sender   mail.Sender
	operator string
	log      *zap.SugaredLogger
}

// NewDispatcher returns a Dispatcher that copies every summary to operatorAddress.
func NewDispatcher(sender mail.Sender, operatorAddress string, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{sender: sender, operator: operatorAddress, log: log}
}

// Dispatch sends the client and operator messages concurrently and waits for
// both. The document file is removed once both attempts have finished,
// whatever their result. ctx only carries the trace span; a started dispatch
// is never cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, doc *render.Document, rec intake.Record) Outcome {
	defer func() {
		if err := doc.Remove(); err != nil {
			d.log.Warnw("Failed to remove rendered document", "path", doc.Path, "error", err)
		}
	}()

	email := rec.ClientEmail()
	attachments := []mail.Attachment{{Path: doc.Path, Name: AttachmentName}}
	client := mail.Message{
		To:          []string{email},
		Subject:     ClientSubject,
		Body:        ClientBody,
		Attachments: attachments,
		Tag:         RecipientClient,
	}
	operator := mail.Message{
		To:          []string{d.operator},
		Subject:     OperatorSubject,
		Body:        fmt.Sprintf("Nouvelle demande reçue de %s.", email),
		Attachments: attachments,
		Tag:         RecipientOperator,
	}

	var out Outcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Client = d.send(ctx, client)
	}()
	go func() {
		defer wg.Done()
		if d.operator == "" {
			out.Operator = ErrNoOperator
			return
		}
		out.Operator = d.send(ctx, operator)
	}()
	wg.Wait()

	log := d.log.With(system.SubmissionFields(doc.ID, email)...)
	if out.Client != nil {
		log.Errorw("Client notification failed", "recipient", RecipientClient, "error", out.Client)
	}
	if out.Operator != nil {
		log.Errorw("Operator notification failed", "recipient", RecipientOperator, "error", out.Operator)
	}
	if out.OK() {
		log.Infow("Notifications sent")
	}
	return out
}

func (d *Dispatcher) send(ctx context.Context, msg mail.Message) error {
	span := trace.SpanFromContext(ctx)
	err := d.sender.Send(msg)
	if err != nil {
		span.AddEvent("mail.failed", trace.WithAttributes(attribute.String("recipient", msg.Tag)))
		return err
	}
	span.AddEvent("mail.sent", trace.WithAttributes(attribute.String("recipient", msg.Tag)))
	return nil
}
