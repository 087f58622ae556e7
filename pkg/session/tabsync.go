package session

import "sync"

// EventKind is what one tab tells the others.
type EventKind string

const (
	// EventLogout: the user signed out; every tab drops its session.
	EventLogout EventKind = "logout"
	// EventReauth: the session can no longer be refreshed; every tab must
	// sign in again.
	EventReauth EventKind = "reauth"
	// EventRefreshed: a tab rotated the shared refresh token. Others adopt
	// the new pair instead of presenting the rotated one.
	EventRefreshed EventKind = "refreshed"
)

// Event is one cross-tab message.
type Event struct {
	Kind EventKind
	Pair *TokenPair
	// Family limits a logout or reauth to the tabs of that login. Empty
	// means every login of the user.
	Family string
}

// Channel links the tabs of one origin. Events posted by a member land in
// every other member's mailbox and are applied when that tab next regains
// focus or uses its token. Members also share one refresh flight so two
// tabs never rotate the same token concurrently.
type Channel struct {
	mu      sync.Mutex
	members map[*Member]struct{}
	rot     rotator
}

func NewChannel() *Channel {
	return &Channel{members: make(map[*Member]struct{})}
}

// Join adds a tab to the channel.
func (ch *Channel) Join() *Member {
	m := &Member{ch: ch, signal: make(chan struct{}, 1)}
	ch.mu.Lock()
	ch.members[m] = struct{}{}
	ch.mu.Unlock()
	return m
}

// Broadcast delivers e to every member, including the sender's own tab.
// The server session feed uses it.
func (ch *Channel) Broadcast(e Event) {
	ch.send(nil, e)
}

func (ch *Channel) send(from *Member, e Event) {
	ch.mu.Lock()
	targets := make([]*Member, 0, len(ch.members))
	for m := range ch.members {
		if m != from {
			targets = append(targets, m)
		}
	}
	ch.mu.Unlock()

	for _, m := range targets {
		m.post(e)
	}
}

// Member is one tab's end of a Channel.
type Member struct {
	ch     *Channel
	mu     sync.Mutex
	box    []Event
	signal chan struct{}
}

// Publish sends e to every other member.
func (m *Member) Publish(e Event) {
	m.ch.send(m, e)
}

// Pending is signalled when the mailbox goes from empty to non-empty.
func (m *Member) Pending() <-chan struct{} {
	return m.signal
}

// Drain returns and clears the mailbox in arrival order.
func (m *Member) Drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.box
	m.box = nil
	return out
}

// Leave removes the member; its mailbox is discarded.
func (m *Member) Leave() {
	m.ch.mu.Lock()
	delete(m.ch.members, m)
	m.ch.mu.Unlock()
}

func (m *Member) post(e Event) {
	m.mu.Lock()
	m.box = append(m.box, e)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}
