package ports

import "context"

// MaintenanceStore holds the backend-wide maintenance switch.
type MaintenanceStore interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// RequestThrottle counts attempts per key inside a fixed window.
type RequestThrottle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// IDGenerator mints numeric identity ids.
type IDGenerator interface {
	NextID() int64
}
