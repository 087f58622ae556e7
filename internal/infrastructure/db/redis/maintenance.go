package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const maintenanceKey = "auth:maintenance"

// MaintenanceFlag stores the maintenance switch so every instance sees it.
// When the key has never been written, the configured default applies.
type MaintenanceFlag struct {
	client   *redis.Client
	fallback bool
}

func NewMaintenanceFlag(client *redis.Client, fallback bool) *MaintenanceFlag {
	return &MaintenanceFlag{client: client, fallback: fallback}
}

func (m *MaintenanceFlag) Enabled(ctx context.Context) (bool, error) {
	v, err := m.client.Get(ctx, maintenanceKey).Result()
	if errors.Is(err, redis.Nil) {
		return m.fallback, nil
	}
	if err != nil {
		return m.fallback, fmt.Errorf("maintenance get: %w", err)
	}
	return v == "1", nil
}

func (m *MaintenanceFlag) SetEnabled(ctx context.Context, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	if err := m.client.Set(ctx, maintenanceKey, v, 0).Err(); err != nil {
		return fmt.Errorf("maintenance set: %w", err)
	}
	return nil
}
