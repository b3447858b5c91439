package mail

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/moncoffretelec/coffret/pkg/config"
	"github.com/moncoffretelec/coffret/pkg/mail/mailtest"
	"github.com/moncoffretelec/coffret/pkg/metrics"
)

func TestNewSender(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.Mail
		description string
	}{
		{
			name: "Gmail style configuration",
			cfg: config.Mail{
				Host:     "smtp.gmail.com",
				Port:     587,
				User:     "bureau@example.fr",
				Password: "app-password",
			},
			description: "Should create sender with STARTTLS submission port",
		},
		{
			name: "Mail configuration with InsecureSkipVerify",
			cfg: config.Mail{
				Host:               "smtp.internal",
				Port:               25,
				InsecureSkipVerify: true,
				SenderAddress:      "noreply@internal",
			},
			description: "Should create sender with TLS verification disabled",
		},
		{
			name: "Implicit TLS port",
			cfg: config.Mail{
				Host: "smtp.example.fr",
				Port: 465,
				User: "user@example.fr",
			},
			description: "Should create sender with SSL port configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSender(tt.cfg, zaptest.NewLogger(t).Sugar())

			assert.NotNil(t, s, tt.description)
			assert.Implements(t, (*Sender)(nil), s, "Should implement Sender interface")
			assert.Equal(t, tt.cfg.Host, s.GetHost())
			assert.Equal(t, tt.cfg.Port, s.GetPort())
		})
	}
}

func TestNewSender_Defaults(t *testing.T) {
	s := NewSender(config.Mail{Host: "smtp.example.fr", Port: 587, User: "bureau@example.fr"}, nil).(*sender)
	assert.Equal(t, "bureau@example.fr", s.senderAddress, "sender address falls back to the SMTP user")
	assert.Equal(t, config.DefaultSenderName, s.senderName)
}

func TestSender_Send_NoRecipients(t *testing.T) {
	s := NewSender(config.Mail{Host: "localhost", Port: 1025}, nil)
	err := s.Send(Message{Subject: "x", Body: "y", Tag: "client"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestSender_Send_Unreachable(t *testing.T) {
	// Port 1 on localhost is never an SMTP relay.
	s := NewSender(config.Mail{Host: "127.0.0.1", Port: 1}, nil)

	before := testutil.ToFloat64(metrics.MailSendFailure.WithLabelValues("operator"))
	err := s.Send(Message{To: []string{"pro@example.fr"}, Subject: "x", Body: "y", Tag: "operator"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MailSendFailure.WithLabelValues("operator")))
}

func TestSender_Send_HappyPath(t *testing.T) {
	srv := mailtest.NewServer(t)

	attachment := filepath.Join(t.TempDir(), "doc-123.pdf")
	require.NoError(t, os.WriteFile(attachment, []byte("%PDF-1.3 fake"), 0o600))

	s := NewSender(config.Mail{
		Host:          srv.Host,
		Port:          srv.Port,
		SenderAddress: "bureau@example.fr",
		SenderName:    "MonCoffretElec",
	}, zaptest.NewLogger(t).Sugar())

	before := testutil.ToFloat64(metrics.MailSendSuccess.WithLabelValues("client"))
	err := s.Send(Message{
		To:          []string{"client@example.fr"},
		Subject:     "Votre récapitulatif MonCoffretElec",
		Body:        "Veuillez trouver en pièce jointe le récapitulatif de votre demande.",
		Attachments: []Attachment{{Path: attachment, Name: "recap.pdf"}},
		Tag:         "client",
	})
	require.NoError(t, err, "expected Send to succeed against test SMTP server")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MailSendSuccess.WithLabelValues("client")))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "bureau@example.fr", msgs[0].From)
	assert.Equal(t, []string{"client@example.fr"}, msgs[0].To)
	assert.True(t, strings.Contains(msgs[0].Data, `filename="recap.pdf"`), "attachment must be renamed")
}

func TestSender_Send_RecipientRejected(t *testing.T) {
	srv := mailtest.NewServer(t)
	srv.RejectRecipient = func(addr string) bool { return addr == "blocked@example.fr" }

	s := NewSender(config.Mail{Host: srv.Host, Port: srv.Port, SenderAddress: "bureau@example.fr"}, nil)

	err := s.Send(Message{To: []string{"blocked@example.fr"}, Subject: "x", Body: "y", Tag: "client"})
	assert.Error(t, err)
	assert.Empty(t, srv.Messages())
}

func TestSender_Send_MissingAttachment(t *testing.T) {
	srv := mailtest.NewServer(t)
	s := NewSender(config.Mail{Host: srv.Host, Port: srv.Port, SenderAddress: "bureau@example.fr"}, nil)

	err := s.Send(Message{
		To:          []string{"client@example.fr"},
		Subject:     "x",
		Body:        "y",
		Attachments: []Attachment{{Path: filepath.Join(t.TempDir(), "gone.pdf"), Name: "recap.pdf"}},
	})
	assert.Error(t, err)
}
