// Package events is the in-process publish/subscribe hub for project and
// media changes.
package events

import (
	"sync"
	"time"

	"github.com/solodesign/apiserver/internal/observability"
	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

const defaultBuffer = 64

// Subscription receives events on C until it is unsubscribed or the broker
// closes, at which point C is closed.
type Subscription struct {
	C <-chan types.Event

	ch    chan types.Event
	kinds map[types.EventKind]struct{}
}

func (s *Subscription) wants(kind types.EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Broker struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	buffer  int
	now     func() time.Time

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBroker(logger *zap.Logger, metrics *observability.Metrics, buffer int) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Broker{
		logger:  logger,
		metrics: metrics,
		buffer:  buffer,
		now:     time.Now,
		subs:    make(map[*Subscription]struct{}),
	}
}

// Subscribe returns a subscription for the given kinds, or for every kind
// when none are given.
func (b *Broker) Subscribe(kinds ...types.EventKind) *Subscription {
	ch := make(chan types.Event, b.buffer)
	sub := &Subscription{C: ch, ch: ch, kinds: make(map[types.EventKind]struct{}, len(kinds))}
	for _, kind := range kinds {
		sub.kinds[kind] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe is safe to call more than once.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish stamps OccurredAt when unset and delivers to every interested
// subscriber.
func (b *Broker) Publish(event types.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		if !sub.wants(event.Kind) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.metrics.EventDropped()
			b.logger.Warn("subscriber buffer full; event dropped",
				zap.String("kind", string(event.Kind)),
				zap.String("project_id", event.ProjectID),
			)
		}
	}
}

// Close closes every subscription. Later publishes are ignored.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscription]struct{})
}
