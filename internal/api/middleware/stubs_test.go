package middleware

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// stubVerifier accepts the tokens it knows and reports the configured error
// for everything else.
type stubVerifier struct {
	mu     sync.Mutex
	tokens map[string]*domain.AccessClaims
	err    error
}

func newStubVerifier() *stubVerifier {
	return &stubVerifier{tokens: map[string]*domain.AccessClaims{}, err: domain.ErrInvalidToken}
}

func (v *stubVerifier) add(token string, claims *domain.AccessClaims) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[token] = claims
}

func (v *stubVerifier) Verify(token string) (*domain.AccessClaims, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.tokens[token]; ok {
		return c, nil
	}
	return nil, v.err
}

type stubRefresher struct {
	calls   atomic.Int32
	delay   time.Duration
	refresh func(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
}

func (r *stubRefresher) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.refresh(ctx, refreshToken)
}

type stubMaintenance bool

func (m stubMaintenance) Maintenance(context.Context) bool { return bool(m) }
