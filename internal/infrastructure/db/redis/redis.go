package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultPoolSize   = 20
	defaultClientName = "seller-auth"
	// commandTimeout bounds a single maintenance lookup or throttle bump; the
	// gate consults the maintenance flag on every auth-entry navigation.
	commandTimeout = 500 * time.Millisecond
)

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// ClientName is sent with CLIENT SETNAME so the pub/sub and command
	// connections of this service are recognisable in CLIENT LIST.
	ClientName string
	Timeout    time.Duration
}

// Connect builds the client and pings it once within Timeout.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := redis.NewClient(clientOptions(cfg))
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func clientOptions(cfg Config) *redis.Options {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	name := cfg.ClientName
	if name == "" {
		name = defaultClientName
	}
	return &redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ClientName:            name,
		PoolSize:              poolSize,
		ReadTimeout:           commandTimeout,
		WriteTimeout:          commandTimeout,
		ContextTimeoutEnabled: true,
	}
}
