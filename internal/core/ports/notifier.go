package ports

import (
	"context"
	"time"
)

// MagicLinkMessage is what the notification collaborator needs to deliver a link.
type MagicLinkMessage struct {
	Recipient string
	Name      string
	Link      string
	ExpiresAt time.Time
}

// Notifier delivers a message synchronously (SMTP, log, ...).
type Notifier interface {
	Send(ctx context.Context, msg MagicLinkMessage) error
}

// LinkDispatcher hands a message off for asynchronous delivery.
// Delivery failures never reach the caller.
type LinkDispatcher interface {
	Dispatch(msg MagicLinkMessage)
}
