package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// recentRotationTTL is how long a rotated pair is handed to callers that
// still present the refresh token it replaced.
const recentRotationTTL = 10 * time.Second

// rotator makes sure a refresh token is presented to the server at most
// once. Concurrent callers share the flight; late callers holding the
// replaced token get the remembered pair.
type rotator struct {
	flight singleflight.Group

	mu     sync.Mutex
	recent map[string]rotation
}

type rotation struct {
	pair *TokenPair
	at   time.Time
}

func (r *rotator) rotate(ctx context.Context, refreshToken string, now func() time.Time, call func() (*TokenPair, error)) (*TokenPair, error) {
	key := domain.HashToken(refreshToken)
	ch := r.flight.DoChan(key, func() (any, error) {
		if pair, ok := r.lookup(key, now()); ok {
			return pair, nil
		}
		pair, err := call()
		if err != nil {
			return nil, err
		}
		r.remember(key, pair, now())
		return pair, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*TokenPair), nil
	}
}

func (r *rotator) lookup(key string, now time.Time) (*TokenPair, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rot, ok := r.recent[key]
	if !ok || now.Sub(rot.at) > recentRotationTTL {
		return nil, false
	}
	return rot.pair, true
}

func (r *rotator) remember(key string, pair *TokenPair, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recent == nil {
		r.recent = make(map[string]rotation)
	}
	for k, rot := range r.recent {
		if now.Sub(rot.at) > recentRotationTTL {
			delete(r.recent, k)
		}
	}
	r.recent[key] = rotation{pair: pair, at: now}
}
