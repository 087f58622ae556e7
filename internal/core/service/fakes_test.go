package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

// stubUserRepo is an in-memory UserRepository keyed by id.
type stubUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*domain.Identity
	nextID int64
	// findErr fails the next FindByID call.
	findErr error
}

func newStubUserRepo(users ...*domain.Identity) *stubUserRepo {
	r := &stubUserRepo{users: make(map[int64]*domain.Identity), nextID: 1000}
	for _, u := range users {
		r.users[u.ID] = cloneIdentity(u)
	}
	return r
}

func cloneIdentity(u *domain.Identity) *domain.Identity {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) FindByID(_ context.Context, id int64) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.findErr; err != nil {
		r.findErr = nil
		return nil, err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneIdentity(u), nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneIdentity(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.Identity) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	created := cloneIdentity(user)
	if created.ID == 0 {
		r.nextID++
		created.ID = r.nextID
	}
	r.users[created.ID] = created
	return cloneIdentity(created), nil
}

func (r *stubUserRepo) UpdateRole(_ context.Context, id int64, role domain.Role) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Role = role
	return cloneIdentity(u), nil
}

// stubLinkRepo serialises Consume behind a mutex, like the store's atomic update.
type stubLinkRepo struct {
	mu    sync.Mutex
	links map[string]*domain.MagicLink
}

func newStubLinkRepo() *stubLinkRepo {
	return &stubLinkRepo{links: make(map[string]*domain.MagicLink)}
}

func (r *stubLinkRepo) Create(_ context.Context, link *domain.MagicLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *link
	r.links[link.TokenHash] = &clone
	return nil
}

func (r *stubLinkRepo) Consume(_ context.Context, tokenHash, email string, now time.Time) (*domain.MagicLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[tokenHash]
	if !ok || !link.Redeemable(email, now) {
		return nil, domain.ErrInvalidLink
	}
	link.Used = true
	link.UsedAt = &now
	clone := *link
	return &clone, nil
}

func (r *stubLinkRepo) InvalidateOutstanding(_ context.Context, email string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, link := range r.links {
		if link.Redeemable(email, now) {
			link.Used = true
			link.UsedAt = &now
			n++
		}
	}
	return n, nil
}

type stubRefreshRepo struct {
	mu        sync.Mutex
	tokens    map[string]*domain.RefreshToken
	rotations int
	// createErr fails the next Create call.
	createErr error
}

func newStubRefreshRepo() *stubRefreshRepo {
	return &stubRefreshRepo{tokens: make(map[string]*domain.RefreshToken)}
}

func (r *stubRefreshRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.createErr; err != nil {
		r.createErr = nil
		return err
	}
	clone := *token
	r.tokens[token.Hash] = &clone
	return nil
}

func (r *stubRefreshRepo) MarkRotated(_ context.Context, hash, replacedBy string, now time.Time) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[hash]
	if !ok || !t.Active(now) {
		return nil, domain.ErrRefreshFailed
	}
	r.rotations++
	t.RotatedAt = &now
	t.ReplacedBy = replacedBy
	clone := *t
	return &clone, nil
}

func (r *stubRefreshRepo) RestoreRotated(_ context.Context, hash, replacedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[hash]
	if ok && t.ReplacedBy == replacedBy && t.RevokedAt == nil {
		t.RotatedAt = nil
		t.ReplacedBy = ""
	}
	return nil
}

func (r *stubRefreshRepo) FindByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[hash]
	if !ok {
		return nil, domain.ErrRefreshFailed
	}
	clone := *t
	return &clone, nil
}

func (r *stubRefreshRepo) RevokeFamily(_ context.Context, familyID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (r *stubRefreshRepo) RevokeUser(_ context.Context, userID int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []ports.MagicLinkMessage
}

func (d *recordingDispatcher) Dispatch(msg ports.MagicLinkMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
}

func (d *recordingDispatcher) last() ports.MagicLinkMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return ports.MagicLinkMessage{}
	}
	return d.sent[len(d.sent)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) kinds() []domain.SessionEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SessionEventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type stubMaintenance struct {
	enabled bool
	err     error
}

func (m *stubMaintenance) Enabled(context.Context) (bool, error) { return m.enabled, m.err }

func (m *stubMaintenance) SetEnabled(_ context.Context, enabled bool) error {
	m.enabled = enabled
	return nil
}

type stubThrottle struct {
	allow bool
	keys  []string
}

func (t *stubThrottle) Allow(_ context.Context, key string) (bool, error) {
	t.keys = append(t.keys, key)
	return t.allow, nil
}

// fakeClock is a settable clock shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
