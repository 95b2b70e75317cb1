package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/miradorstack/mirador-ews/internal/metrics"
	"github.com/miradorstack/mirador-ews/internal/models"
)

const (
	defaultRecentSize = 100
	defaultQueueSize  = 256
)

// ErrQueueFull is returned by Publish when the transport queue cannot accept
// the event. In-process subscribers have still received it.
var ErrQueueFull = errors.New("notification transport queue full")

// Transport delivers events outside the process.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, event models.Event) error
}

// Stats summarises bus traffic since start.
type Stats struct {
	Published    int64
	Dropped      int64
	Delivered    int64
	FailedSends  int64
	Subscribers  int
	ByType       map[models.ActionType]int64
	ByPriority   map[models.Priority]int64
	QueueDepth   int
	RecentStored int
}

// Option customises a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRecentSize bounds the recent-event history.
func WithRecentSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.recentSize = n
		}
	}
}

// WithQueueSize bounds the transport delivery queue.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithTransports registers outbound transports drained by Run.
func WithTransports(transports ...Transport) Option {
	return func(b *Bus) {
		for _, t := range transports {
			if t != nil {
				b.transports = append(b.transports, t)
			}
		}
	}
}

// Bus fans guardrail notifications out to in-process subscribers and, via a
// background worker, to external transports. Publish never blocks.
type Bus struct {
	logger     *slog.Logger
	recentSize int
	queueSize  int
	transports []Transport
	queue      chan models.Event

	mu          sync.RWMutex
	nextID      uint64
	subscribers map[uint64]subscriber
	recent      []models.Event
	head        int
	stats       Stats
}

type subscriber struct {
	ch     chan models.Event
	filter func(models.Event) bool
}

// New constructs a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger:      slog.Default(),
		recentSize:  defaultRecentSize,
		queueSize:   defaultQueueSize,
		subscribers: make(map[uint64]subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.recent = make([]models.Event, 0, b.recentSize)
	b.queue = make(chan models.Event, b.queueSize)
	b.stats.ByType = make(map[models.ActionType]int64)
	b.stats.ByPriority = make(map[models.Priority]int64)
	return b
}

// Publish records the event, hands it to every subscriber with room in its
// buffer, and queues it for transports.
func (b *Bus) Publish(_ context.Context, event models.Event) error {
	b.mu.Lock()
	b.remember(event)
	b.stats.Published++
	b.stats.ByType[event.Payload.Type()]++
	b.stats.ByPriority[event.Priority]++

	for id, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.stats.Dropped++
			metrics.ObserveBusEvent("dropped")
			b.logger.Warn("subscriber buffer full; notification dropped",
				slog.Uint64("subscriber", id), slog.String("event", event.ID))
		}
	}
	b.mu.Unlock()
	metrics.ObserveBusEvent("published")

	if len(b.transports) == 0 {
		return nil
	}
	select {
	case b.queue <- event:
		return nil
	default:
		b.mu.Lock()
		b.stats.Dropped++
		b.mu.Unlock()
		metrics.ObserveBusEvent("dropped")
		return ErrQueueFull
	}
}

// Subscribe registers a buffered listener. The returned cancel func removes
// it and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan models.Event, func()) {
	return b.SubscribeFiltered(buffer, nil)
}

// SubscribeFiltered is Subscribe restricted to events accepted by filter.
func (b *Bus) SubscribeFiltered(buffer int, filter func(models.Event) bool) (<-chan models.Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan models.Event, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to limit of the most recently published events, newest first.
func (b *Bus) Recent(limit int) []models.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Event, 0, limit)
	for i := 0; i < limit; i++ {
		// head points at the slot the next event will be written to once full
		idx := (b.head - 1 - i + n) % n
		if n < b.recentSize {
			idx = n - 1 - i
		}
		out = append(out, b.recent[idx])
	}
	return out
}

// Stats returns a copy of the running counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.stats
	s.Subscribers = len(b.subscribers)
	s.QueueDepth = len(b.queue)
	s.RecentStored = len(b.recent)
	s.ByType = make(map[models.ActionType]int64, len(b.stats.ByType))
	for k, v := range b.stats.ByType {
		s.ByType[k] = v
	}
	s.ByPriority = make(map[models.Priority]int64, len(b.stats.ByPriority))
	for k, v := range b.stats.ByPriority {
		s.ByPriority[k] = v
	}
	return s
}

// Run delivers queued events to every transport until ctx is cancelled.
// A failing transport does not prevent delivery to the others.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-b.queue:
			b.deliver(ctx, event)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, event models.Event) {
	for _, t := range b.transports {
		err := t.Deliver(ctx, event)
		b.mu.Lock()
		if err != nil {
			b.stats.FailedSends++
		} else {
			b.stats.Delivered++
		}
		b.mu.Unlock()

		if err != nil {
			metrics.ObserveBusEvent("transport_error")
			b.logger.Error("notification delivery failed",
				slog.String("transport", t.Name()),
				slog.String("event", event.ID),
				slog.Any("error", err),
			)
			continue
		}
		metrics.ObserveBusEvent("delivered")
	}
}

// remember appends to the recent ring. Callers hold b.mu.
func (b *Bus) remember(event models.Event) {
	if len(b.recent) < b.recentSize {
		b.recent = append(b.recent, event)
		b.head = len(b.recent) % b.recentSize
		return
	}
	b.recent[b.head] = event
	b.head = (b.head + 1) % b.recentSize
}
