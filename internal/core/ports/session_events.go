package ports

import (
	"context"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// SessionEventPublisher fans session events out to every instance and tab.
type SessionEventPublisher interface {
	Publish(ctx context.Context, event domain.SessionEvent) error
}
