package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/api/metrics"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

const (
	defaultWorkers  = 4
	channelBuffer   = 256
	deliveryTimeout = 30 * time.Second
)

// Dispatcher delivers magic link messages on a fixed set of workers. Messages
// for the same recipient always land on the same worker, so they are sent in
// request order.
type Dispatcher struct {
	workers  []chan ports.MagicLinkMessage
	notifier ports.Notifier
	log      zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, notifier ports.Notifier, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan ports.MagicLinkMessage, numWorkers),
		notifier: notifier,
		log:      log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.MagicLinkMessage, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Dispatch queues msg without blocking. A full worker queue drops the message;
// the user can simply request another link.
func (d *Dispatcher) Dispatch(msg ports.MagicLinkMessage) {
	idx := d.shardIndex(msg.Recipient)
	select {
	case d.workers[idx] <- msg:
		metrics.NotificationsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.NotificationsDroppedTotal.Inc()
		d.log.Error().Int("worker_id", idx).Msg("notification queue full, magic link dropped")
	}
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *Dispatcher) shardIndex(recipient string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipient))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.MagicLinkMessage) {
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			metrics.NotificationsQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.deliver(ctx, id, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, msg ports.MagicLinkMessage) {
	sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	start := time.Now()
	err := d.notifier.Send(sendCtx, msg)
	result := "sent"
	if err != nil {
		result = "error"
		d.log.Error().Err(err).
			Str("recipient", msg.Recipient).
			Int("worker_id", worker).
			Msg("magic link delivery failed")
	}
	metrics.NotificationDeliveryDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
