package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/api/metrics"
	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// Hub keeps every open session-event socket grouped by user id and fans
// session events out to all of a user's tabs.
type Hub struct {
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan domain.SessionEvent
	quit       chan struct{}

	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan domain.SessionEvent, 256),
		quit:       make(chan struct{}),
		log:        log,
	}
}

// Run owns client registration and delivery until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// Deliver queues event for the user's sockets. It is the subscriber callback
// for cross-instance session events.
func (h *Hub) Deliver(event domain.SessionEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn().Int64("user_id", event.UserID).Str("kind", string(event.Kind)).Msg("session event dropped, hub busy")
	}
}

// Connected returns how many sockets userID has open.
func (h *Hub) Connected(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	metrics.WebsocketConnections.Inc()
	h.log.Debug().Int64("user_id", c.userID).Int("tabs", len(h.clients[c.userID])).Msg("session socket connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tabs, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, exists := tabs[c]; !exists {
		return
	}
	delete(tabs, c)
	c.close()
	metrics.WebsocketConnections.Dec()
	if len(tabs) == 0 {
		delete(h.clients, c.userID)
	}
}

func (h *Hub) deliver(event domain.SessionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("encode session event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[event.UserID] {
		c.enqueue(payload)
	}
	metrics.SessionEventsTotal.WithLabelValues(string(event.Kind)).Inc()
}

func (h *Hub) shutdown() {
	close(h.quit)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, tabs := range h.clients {
		for c := range tabs {
			c.close()
			metrics.WebsocketConnections.Dec()
		}
	}
	h.clients = make(map[int64]map[*Client]struct{})
}
