package mail

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/imo-platform/access-control/internal/core/ports"
)

// LogMailer writes rendered messages to the log instead of sending them.
// It is used when no SMTP host is configured.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "log_mailer").Logger()}
}

func (m *LogMailer) Send(_ context.Context, msg ports.EmailMessage) error {
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}
	m.log.Info().
		Str("template", string(msg.Template)).
		Str("recipient", msg.Recipient).
		Str("subject", subject).
		Str("body", body).
		Msg("email not sent, smtp disabled")
	return nil
}
