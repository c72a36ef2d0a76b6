package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/moverwatch/moverwatch/pkg/log"
)

// Topics published by the orchestrator and its collaborators.
const (
	TopicMoverStarted   = "mover.started"
	TopicMoverProgress  = "mover.progress"
	TopicMoverCompleted = "mover.completed"
	TopicMoverError     = "mover.error"
	TopicStateChanged   = "state.changed"
	TopicDelivery       = "notify.delivery"
)

// Event is one published occurrence on a hierarchical topic.
type Event struct {
	Topic     string
	Timestamp time.Time
	Payload   map[string]any
}

// Handler consumes events. The context carries the correlation id that was
// active at publish time.
type Handler func(ctx context.Context, ev Event)

// subscriberBuffer bounds each subscriber's pending events. A slow
// subscriber drops events rather than stalling the publisher.
const subscriberBuffer = 64

type delivery struct {
	ctx context.Context
	ev  Event
}

type subscription struct {
	pattern string
	ch      chan delivery
	done    chan struct{}
}

// Bus is an in-process pub/sub broker with hierarchical topics. Subscribers
// register on an exact topic or a wildcard pattern like "mover.*". Publish
// never blocks; each subscriber receives events in publish order on its own
// goroutine, and a panicking subscriber is isolated from the rest.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every topic matching pattern and
// returns an unsubscribe function.
func (b *Bus) Subscribe(pattern string, h Handler) func() {
	sub := &subscription{
		pattern: pattern,
		ch:      make(chan delivery, subscriberBuffer),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go sub.run(h)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			for i, s := range b.subs {
				if s == sub {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish delivers ev to every matching subscriber without blocking the
// caller. The caller's context (and its correlation id) rides along with
// the event.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !TopicMatches(sub.pattern, ev.Topic) {
			continue
		}
		select {
		case sub.ch <- delivery{ctx: ctx, ev: ev}:
		default:
			logger := log.WithComponent("eventbus")
			logger.Warn().
				Str("topic", ev.Topic).
				Str("pattern", sub.pattern).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// Close stops accepting publishes and releases every subscriber goroutine.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (s *subscription) run(h Handler) {
	for {
		select {
		case d := <-s.ch:
			s.invoke(h, d)
		case <-s.done:
			return
		}
	}
}

// invoke isolates a failing handler: a panic is logged and the subscription
// keeps running.
func (s *subscription) invoke(h Handler, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(d.ctx).Error().
				Str("component", "eventbus").
				Str("topic", d.ev.Topic).
				Any("panic", r).
				Msg("subscriber panicked")
		}
	}()
	h(d.ctx, d.ev)
}

// TopicMatches reports whether topic matches pattern. A trailing ".*"
// matches the prefix and every deeper segment; "*" matches everything.
func TopicMatches(pattern, topic string) bool {
	if pattern == "*" || pattern == topic {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return topic == prefix || strings.HasPrefix(topic, prefix+".")
	}
	return false
}
