package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/ports"
)

// LogSender writes magic links to the log instead of mailing them. Development only.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg ports.MagicLinkMessage) error {
	s.log.Info().
		Str("recipient", msg.Recipient).
		Str("link", msg.Link).
		Time("expires_at", msg.ExpiresAt).
		Msg("magic link (log sender)")
	return nil
}
