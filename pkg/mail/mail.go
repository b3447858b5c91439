package mail

import (
	"crypto/tls"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/moncoffretelec/coffret/pkg/config"
	"github.com/moncoffretelec/coffret/pkg/metrics"
)

// ErrNoRecipients is returned when a message has no To address.
var ErrNoRecipients = errors.New("mail: message has no recipients")

// Attachment is a file attached to a message under a display name.
type Attachment struct {
	Path string
	Name string
}

// Message is a plain text email. Tag is a low-cardinality label (for
// example "client" or "operator") used for metrics and logs only.
type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
	Tag         string
}

// Sender delivers messages through one SMTP relay. Implementations are safe
// for concurrent use.
type Sender interface {
	Send(msg Message) error
	GetHost() string
	GetPort() int
}

type sender struct {
	dialer        *gomail.Dialer
	senderAddress string
	senderName    string
	log           *zap.SugaredLogger
}

// NewSender builds the process-wide SMTP sender. The dialer holds only
// connection settings, so a single sender is shared by all requests and every
// Send opens its own SMTP session.
func NewSender(cfg config.Mail, log *zap.SugaredLogger) Sender {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Infow("Initializing mail sender", "host", cfg.Host, "port", cfg.Port, "authenticated", cfg.User != "")
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for mail TLS connection")
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for internal relays
	}

	senderAddr := cfg.SenderAddress
	if senderAddr == "" {
		senderAddr = cfg.User
	}
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = config.DefaultSenderName
	}

	return &sender{
		dialer:        d,
		senderAddress: senderAddr,
		senderName:    senderName,
		log:           log,
	}
}

// Send delivers msg once. Failures are returned as-is and never retried.
func (s *sender) Send(msg Message) error {
	tag := msg.Tag
	if tag == "" {
		tag = "other"
	}
	if len(msg.To) == 0 {
		metrics.MailSendFailure.WithLabelValues(tag).Inc()
		return ErrNoRecipients
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderAddress, s.senderName)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	for _, a := range msg.Attachments {
		if a.Name != "" {
			m.Attach(a.Path, gomail.Rename(a.Name))
		} else {
			m.Attach(a.Path)
		}
	}

	s.log.Debugw("Sending mail", "tag", tag, "receivers", len(msg.To), "attachments", len(msg.Attachments))
	if err := s.dialer.DialAndSend(m); err != nil {
		metrics.MailSendFailure.WithLabelValues(tag).Inc()
		return fmt.Errorf("sending %s mail via %s:%d: %w", tag, s.GetHost(), s.GetPort(), err)
	}
	metrics.MailSendSuccess.WithLabelValues(tag).Inc()
	return nil
}

func (s *sender) GetHost() string {
	return s.dialer.Host
}

func (s *sender) GetPort() int {
	return s.dialer.Port
}
