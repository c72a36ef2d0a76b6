package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/moverwatch/moverwatch/pkg/breaker"
	"github.com/moverwatch/moverwatch/pkg/events"
	"github.com/moverwatch/moverwatch/pkg/log"
	"github.com/moverwatch/moverwatch/pkg/metrics"
	"github.com/moverwatch/moverwatch/pkg/notify"
	"github.com/moverwatch/moverwatch/pkg/ratelimit"
	"github.com/moverwatch/moverwatch/pkg/retry"
	"github.com/moverwatch/moverwatch/pkg/sanitize"
	"github.com/moverwatch/moverwatch/pkg/storage"
	"github.com/moverwatch/moverwatch/pkg/types"
)

// ErrNotRunning is returned by Publish before Start or after Stop.
var ErrNotRunning = errors.New("dispatcher not running")

// Config tunes the dispatcher.
type Config struct {
	QueueSize     int
	Workers       int
	MaxAttempts   int
	Throttle      time.Duration
	DedupTTL      time.Duration
	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize < 1 {
		c.QueueSize = 256
	}
	if c.Workers < 1 {
		c.Workers = 2
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = retry.DefaultMaxAttempts
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// Dispatcher owns the notification pipeline: admission (dedup, throttle),
// the bounded priority queue, and the worker pool that delivers each message
// to its provider set under rate limiting, retries, and circuit breakers.
type Dispatcher struct {
	cfg       Config
	providers map[string]notify.Provider
	names     []string
	limiter   *ratelimit.Limiter
	breakers  *breaker.Manager
	bus       *events.Bus
	logger    zerolog.Logger

	queue       *Queue
	dedup       *Deduplicator
	throttle    *Throttler
	tracker     *Tracker
	escalations *Escalations

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New creates a dispatcher delivering to providers. store and bus may be
// nil; limiter and breakers may not.
func New(cfg Config, providers []notify.Provider, limiter *ratelimit.Limiter,
	breakers *breaker.Manager, store storage.Store, bus *events.Bus) *Dispatcher {

	cfg = cfg.withDefaults()

	byName := make(map[string]notify.Provider, len(providers))
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
		names = append(names, p.Name())
	}

	return &Dispatcher{
		cfg:         cfg,
		providers:   byName,
		names:       names,
		limiter:     limiter,
		breakers:    breakers,
		bus:         bus,
		logger:      log.WithComponent("dispatch"),
		queue:       NewQueue(cfg.QueueSize),
		dedup:       NewDeduplicator(cfg.DedupTTL),
		throttle:    NewThrottler(cfg.Throttle),
		tracker:     NewTracker(store),
		escalations: NewEscalations(),
	}
}

// Start launches the worker pool. It is an error to start twice.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return errors.New("dispatcher already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.group = new(errgroup.Group)
	for i := 0; i < d.cfg.Workers; i++ {
		d.group.Go(func() error {
			d.worker(ctx)
			return nil
		})
	}
	d.running = true

	d.logger.Info().
		Int("workers", d.cfg.Workers).
		Int("queue_size", d.cfg.QueueSize).
		Strs("providers", d.names).
		Msg("Dispatcher started")
	return nil
}

// IsRunning reports whether the dispatcher accepts messages.
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Publish admits msg for delivery to every configured provider and returns
// its delivery id. Duplicates inside the dedup window and throttled repeats
// are dropped with a nil error and an empty id; urgent messages bypass the
// throttle. Enqueue blocks while the queue is full.
func (d *Dispatcher) Publish(ctx context.Context, msg types.Message) (string, error) {
	if !d.IsRunning() {
		return "", ErrNotRunning
	}

	if d.dedup.Duplicate(msg) {
		metrics.MessagesDropped.WithLabelValues("duplicate").Inc()
		log.Ctx(ctx).Debug().Str("title", msg.Title).Msg("duplicate message dropped")
		return "", nil
	}
	if msg.Priority < types.PriorityUrgent && !d.throttle.Allow(msg.Title) {
		metrics.MessagesDropped.WithLabelValues("throttled").Inc()
		log.Ctx(ctx).Debug().Str("title", msg.Title).Msg("throttled message dropped")
		return "", nil
	}

	qm := types.NewQueuedMessage(msg, d.names)
	d.tracker.Begin(qm)

	if err := d.queue.Enqueue(ctx, qm); err != nil {
		metrics.MessagesDropped.WithLabelValues("enqueue").Inc()
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}
	metrics.MessagesEnqueued.WithLabelValues(msg.Priority.String()).Inc()
	metrics.QueueDepth.Set(float64(d.queue.Len()))
	return qm.DeliveryID, nil
}

// Status returns the in-flight delivery status for id.
func (d *Dispatcher) Status(deliveryID string) (types.DeliveryStatus, bool) {
	return d.tracker.Status(deliveryID)
}

// ScheduleEscalation arms a follow-up send of msg after delay, bumped one
// priority level, unless CancelEscalation(key) runs first.
func (d *Dispatcher) ScheduleEscalation(key string, delay time.Duration, msg types.Message) {
	d.escalations.Schedule(key, delay, func() {
		escalated := msg
		if escalated.Priority < types.PriorityUrgent {
			escalated.Priority++
		}
		if _, err := d.Publish(context.Background(), escalated); err != nil {
			d.logger.Warn().Err(err).Str("key", key).Msg("failed to publish escalation")
		}
	})
}

// CancelEscalation disarms a pending escalation.
func (d *Dispatcher) CancelEscalation(key string) bool {
	return d.escalations.Cancel(key)
}

// Stop drains the dispatcher: new publishes are rejected immediately,
// queued messages get the shutdown grace period to deliver, and whatever
// remains after that is abandoned when the worker contexts are cancelled.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancel
	group := d.group
	d.mu.Unlock()

	d.escalations.CancelAll()
	d.queue.Close()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGrace):
		d.logger.Warn().
			Int("abandoned", d.queue.Len()).
			Msg("shutdown grace expired, abandoning queued messages")
		cancel()
		<-done
	}
	cancel()
	d.logger.Info().Msg("Dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		qm, ok := d.queue.Dequeue(ctx)
		if !ok {
			return
		}
		metrics.QueueDepth.Set(float64(d.queue.Len()))
		d.deliver(ctx, qm)
	}
}

// deliver sends one message to every provider in its set, sequentially.
// Worker-level parallelism comes from the pool, not from fanning out a
// single message.
func (d *Dispatcher) deliver(ctx context.Context, qm types.QueuedMessage) {
	for _, name := range qm.Providers {
		p, ok := d.providers[name]

		var result types.ProviderResult
		if ok {
			result = d.sendOne(ctx, p, qm)
		} else {
			result = types.ProviderResult{
				Provider: name, Success: false, Err: "provider not configured",
			}
		}
		if outcome := d.tracker.Record(qm.DeliveryID, result); outcome != types.DeliveryPending {
			d.finish(ctx, qm, outcome)
		}
	}
}

func (d *Dispatcher) sendOne(ctx context.Context, p notify.Provider, qm types.QueuedMessage) types.ProviderResult {
	scope := p.Name()
	if chatted, ok := p.(interface{ ChatID() string }); ok {
		scope = chatted.ChatID()
	}

	waited, err := d.limiter.Acquire(ctx, scope, 1)
	metrics.RateLimitWait.Observe(waited.Seconds())
	if err != nil {
		return types.ProviderResult{Provider: p.Name(), Success: false, Err: "rate limit wait cancelled"}
	}

	timer := metrics.NewTimer()
	attempts := 0
	err = retry.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return p.Send(ctx, qm.Message)
	}, retry.Options{
		MaxAttempts: d.cfg.MaxAttempts,
		Jitter:      true,
		Breaker:     d.breakers,
		BreakerName: p.Name(),
	})
	timer.ObserveDurationVec(metrics.DeliveryDuration, p.Name())
	metrics.BreakerState.WithLabelValues(p.Name()).Set(breakerStateValue(d.breakers.State(p.Name())))

	result := types.ProviderResult{Provider: p.Name(), Success: err == nil, Attempts: attempts}
	if err != nil {
		result.Err = sanitize.Error(err)
		metrics.DeliveriesTotal.WithLabelValues(p.Name(), "failure").Inc()
		log.Ctx(ctx).Warn().
			Err(err).
			Str("provider", p.Name()).
			Str("delivery_id", qm.DeliveryID).
			Int("attempts", attempts).
			Msg("delivery failed")
	} else {
		metrics.DeliveriesTotal.WithLabelValues(p.Name(), "success").Inc()
		log.Ctx(ctx).Debug().
			Str("provider", p.Name()).
			Str("delivery_id", qm.DeliveryID).
			Int("attempts", attempts).
			Msg("delivery succeeded")
	}
	return result
}

func (d *Dispatcher) finish(ctx context.Context, qm types.QueuedMessage, outcome types.DeliveryOutcome) {
	if outcome == types.DeliveryFailed {
		log.Ctx(ctx).Error().
			Str("component", "dispatch").
			Str("delivery_id", qm.DeliveryID).
			Str("title", qm.Message.Title).
			Strs("providers", qm.Providers).
			Msg("delivery_failed")
	}
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, events.Event{
		Topic: events.TopicDelivery,
		Payload: map[string]any{
			"delivery_id": qm.DeliveryID,
			"outcome":     string(outcome),
			"title":       qm.Message.Title,
			"providers":   qm.Providers,
		},
	})
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
