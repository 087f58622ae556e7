package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

const sessionEventsChannel = "auth:session-events"

// SessionEvents carries session events between instances over Redis pub/sub.
type SessionEvents struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewSessionEvents(client *redis.Client, log zerolog.Logger) *SessionEvents {
	return &SessionEvents{client: client, log: log}
}

// Publish broadcasts event to every subscribed instance, this one included.
func (s *SessionEvents) Publish(ctx context.Context, event domain.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if err := s.client.Publish(ctx, sessionEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// Subscribe delivers every received event to deliver until ctx is cancelled.
func (s *SessionEvents) Subscribe(ctx context.Context, deliver func(domain.SessionEvent)) error {
	sub := s.client.Subscribe(ctx, sessionEventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe session events: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.log.Warn().Err(err).Msg("dropping malformed session event")
					continue
				}
				deliver(event)
			}
		}
	}()
	return nil
}
