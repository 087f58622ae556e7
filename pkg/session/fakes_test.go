package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// fakeAPI counts calls and delegates to the func fields when set.
type fakeAPI struct {
	verifyFn  func(ctx context.Context, email, token string) (*Login, error)
	refreshFn func(ctx context.Context, refreshToken string) (*TokenPair, error)
	logoutFn  func(ctx context.Context, refreshToken string) error

	refreshCalls atomic.Int32

	mu        sync.Mutex
	loggedOut []string
}

func (f *fakeAPI) RequestLink(context.Context, string, string) error { return nil }

func (f *fakeAPI) Verify(ctx context.Context, email, token string) (*Login, error) {
	return f.verifyFn(ctx, email, token)
}

func (f *fakeAPI) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	f.refreshCalls.Add(1)
	return f.refreshFn(ctx, refreshToken)
}

func (f *fakeAPI) Logout(ctx context.Context, refreshToken string) error {
	f.mu.Lock()
	f.loggedOut = append(f.loggedOut, refreshToken)
	f.mu.Unlock()
	if f.logoutFn != nil {
		return f.logoutFn(ctx, refreshToken)
	}
	return nil
}

// signToken builds an access token the way the server shapes them.
// testFamily is the sid every test access token carries.
const testFamily = "fam-1"

func signToken(t *testing.T, role domain.Role, ttl time.Duration) string {
	t.Helper()
	claims := accessClaims{
		Role:      role.String(),
		SessionID: testFamily,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

// loginAs makes verify hand out a session for role whose access token is
// already inside the refresh skew.
func loginAs(t *testing.T, role domain.Role, refreshToken string) func(context.Context, string, string) (*Login, error) {
	t.Helper()
	access := signToken(t, role, 5*time.Second)
	return func(context.Context, string, string) (*Login, error) {
		return &Login{
			User:     domain.Identity{ID: 7, Email: "alice@example.com", Role: role},
			Redirect: "/admin",
			TokenPair: TokenPair{
				AccessToken:  access,
				RefreshToken: refreshToken,
				ExpiresIn:    5,
			},
		}, nil
	}
}

// rotateTo returns a refresh func handing out a fresh pair for role.
func rotateTo(t *testing.T, role domain.Role) func(context.Context, string) (*TokenPair, error) {
	t.Helper()
	var n atomic.Int32
	return func(_ context.Context, presented string) (*TokenPair, error) {
		i := n.Add(1)
		return &TokenPair{
			AccessToken:  signToken(t, role, 10*time.Minute),
			RefreshToken: fmt.Sprintf("%s-r%d", presented, i),
			ExpiresIn:    600,
		}, nil
	}
}

func signIn(t *testing.T, c *Coordinator) {
	t.Helper()
	if _, err := c.Login(context.Background(), "alice@example.com", "link-token"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
