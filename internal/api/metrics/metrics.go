// Package metrics defines and registers all custom Prometheus metrics for the
// seller auth service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on import
// (promauto) and exposed on /metrics by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auth"

// ── Magic link metrics ────────────────────────────────────────────────────────

// MagicLinkRequestsTotal counts POST /auth/request-magic-link outcomes.
// Label:
//   - result: "accepted", "rate_limited", "maintenance", "invalid", "error"
var MagicLinkRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "magic_link_requests_total",
		Help:      "Total number of magic link requests, by result.",
	},
	[]string{"result"},
)

// MagicLinkRedemptionsTotal counts verify attempts.
// Label:
//   - result: "success", "invalid", "maintenance", "error"
var MagicLinkRedemptionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "magic_link_redemptions_total",
		Help:      "Total number of magic link redemptions, by result.",
	},
	[]string{"result"},
)

// ── Token metrics ─────────────────────────────────────────────────────────────

// TokenRefreshTotal counts refresh token rotations.
// Labels:
//   - origin: "api" (POST /auth/refresh-token) or "gate" (transparent, server side)
//   - result: "success", "failed", "reused", "maintenance", "error"
var TokenRefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Total number of refresh token rotations, by origin and result.",
	},
	[]string{"origin", "result"},
)

// ── Gate metrics ──────────────────────────────────────────────────────────────

// GateDecisionsTotal counts edge authorization outcomes.
// Label:
//   - decision: "allow", "login", "unauthorized", "landing", "maintenance"
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of edge authorization decisions.",
	},
	[]string{"decision"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsQueueDepth tracks messages waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var NotificationsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notifications_queue_depth",
		Help:      "Current number of magic link messages pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// NotificationDeliveryDuration measures a single delivery attempt.
// Label:
//   - result: "sent" or "error"
var NotificationDeliveryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "notification_delivery_duration_seconds",
		Help:      "Duration of magic link delivery attempts.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)

// NotificationsDroppedTotal counts messages dropped because a worker queue was full.
var NotificationsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_dropped_total",
		Help:      "Total number of magic link messages dropped on a full queue.",
	},
)

// ── Session event metrics ─────────────────────────────────────────────────────

// SessionEventsTotal counts session events fanned out to connected tabs.
// Label:
//   - kind: "logout", "revoked", "role_changed"
var SessionEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_events_total",
		Help:      "Total number of session events delivered to the websocket hub.",
	},
	[]string{"kind"},
)

// WebsocketConnections is the number of open session event sockets.
var WebsocketConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Current number of open session event websocket connections.",
	},
)
