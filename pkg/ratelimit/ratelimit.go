package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the burst size of each token bucket.
	DefaultCapacity = 10
	// DefaultRefillRate is tokens added per second.
	DefaultRefillRate = 1
	// quotaWindow is the rolling quota period.
	quotaWindow = time.Hour
)

// Config tunes the limiter.
type Config struct {
	Capacity   float64
	RefillRate float64
	// HourlyQuota caps total sends per rolling hour; 0 disables the quota.
	HourlyQuota int
}

// bucket is a token bucket. Tokens stay within [0, capacity].
type bucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	last       time.Time
}

func newBucket(capacity, rate float64, now time.Time) *bucket {
	return &bucket{capacity: capacity, tokens: capacity, refillRate: rate, last: now}
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
		b.last = now
	}
}

// waitFor returns how long until n tokens are available; 0 when they
// already are.
func (b *bucket) waitFor(n float64, now time.Time) time.Duration {
	b.refill(now)
	if b.tokens >= n {
		return 0
	}
	missing := n - b.tokens
	return time.Duration(missing / b.refillRate * float64(time.Second))
}

func (b *bucket) consume(n float64, now time.Time) {
	b.refill(now)
	b.tokens = math.Max(0, b.tokens-n)
}

// Limiter combines a global token bucket, per-chat buckets, a shared bucket
// for group chats, and a rolling hourly quota. Acquire blocks until every
// applicable limit allows the send.
//
// Group chats are identified the way bot APIs mark them: a chat id with a
// leading '-'.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	global     *bucket
	group      *bucket
	chats      map[string]*bucket
	quotaUsed  int
	quotaStart time.Time
}

// New creates a limiter; zero config fields select defaults.
func New(cfg Config) *Limiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.RefillRate <= 0 {
		cfg.RefillRate = DefaultRefillRate
	}
	now := time.Now()
	return &Limiter{
		cfg:        cfg,
		now:        time.Now,
		global:     newBucket(cfg.Capacity, cfg.RefillRate, now),
		group:      newBucket(cfg.Capacity, cfg.RefillRate, now),
		chats:      make(map[string]*bucket),
		quotaStart: now,
	}
}

// Acquire consumes n tokens for chatID, sleeping first when any applicable
// bucket or the quota requires it. Returns the time actually waited.
func (l *Limiter) Acquire(ctx context.Context, chatID string, n float64) (time.Duration, error) {
	var waited time.Duration
	for {
		wait := l.tryConsume(chatID, n)
		if wait == 0 {
			return waited, nil
		}
		select {
		case <-time.After(wait):
			waited += wait
		case <-ctx.Done():
			return waited, ctx.Err()
		}
	}
}

// Wait reports how long Acquire would sleep right now without consuming.
func (l *Limiter) Wait(chatID string, n float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var wait time.Duration
	for _, b := range l.applicable(chatID, now) {
		if w := b.waitFor(n, now); w > wait {
			wait = w
		}
	}
	if q := l.quotaWait(now); q > wait {
		wait = q
	}
	return wait
}

// TokensAvailable returns the current token count of the chat's bucket.
func (l *Limiter) TokensAvailable(chatID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.chatBucket(chatID, l.now())
	b.refill(l.now())
	return b.tokens
}

// tryConsume consumes when every limit allows it, otherwise returns the
// maximum wait across all limiting factors.
func (l *Limiter) tryConsume(chatID string, n float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	buckets := l.applicable(chatID, now)

	var wait time.Duration
	for _, b := range buckets {
		if w := b.waitFor(n, now); w > wait {
			wait = w
		}
	}
	if q := l.quotaWait(now); q > wait {
		wait = q
	}
	if wait > 0 {
		return wait
	}

	for _, b := range buckets {
		b.consume(n, now)
	}
	l.quotaUsed++
	return 0
}

func (l *Limiter) applicable(chatID string, now time.Time) []*bucket {
	buckets := []*bucket{l.global, l.chatBucket(chatID, now)}
	if isGroup(chatID) {
		buckets = append(buckets, l.group)
	}
	return buckets
}

func (l *Limiter) chatBucket(chatID string, now time.Time) *bucket {
	b, ok := l.chats[chatID]
	if !ok {
		b = newBucket(l.cfg.Capacity, l.cfg.RefillRate, now)
		l.chats[chatID] = b
	}
	return b
}

// quotaWait rolls the hourly window forward and returns the wait until the
// quota frees up, or 0 when a send is allowed.
func (l *Limiter) quotaWait(now time.Time) time.Duration {
	if l.cfg.HourlyQuota <= 0 {
		return 0
	}
	if now.Sub(l.quotaStart) >= quotaWindow {
		l.quotaStart = now
		l.quotaUsed = 0
	}
	if l.quotaUsed < l.cfg.HourlyQuota {
		return 0
	}
	return l.quotaStart.Add(quotaWindow).Sub(now)
}

func isGroup(chatID string) bool {
	return len(chatID) > 0 && chatID[0] == '-'
}
