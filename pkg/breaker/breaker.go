package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/moverwatch/moverwatch/pkg/log"
)

// ErrOpen is returned when a call is rejected because the component's
// breaker is open (or the half-open probe slot is taken).
var ErrOpen = errors.New("circuit breaker open")

const (
	// DefaultFailureThreshold opens the breaker after this many
	// consecutive failures.
	DefaultFailureThreshold = 5
	// DefaultCooldown is how long an open breaker rejects calls before
	// allowing the half-open probe.
	DefaultCooldown = 30 * time.Second
)

// Settings tunes every breaker created by a Manager.
type Settings struct {
	FailureThreshold uint32
	Cooldown         time.Duration
}

// Manager holds one circuit breaker per named component, created lazily.
type Manager struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewManager creates a breaker table; zero settings select defaults.
func NewManager(settings Settings) *Manager {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = DefaultFailureThreshold
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = DefaultCooldown
	}
	return &Manager{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Execute runs fn under the named component's breaker. Rejections while
// open map to ErrOpen; fn's own error passes through and counts as a
// failure.
func (m *Manager) Execute(name string, fn func() error) error {
	_, err := m.breaker(name).Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State returns the named breaker's state: "closed", "half-open", or "open".
func (m *Manager) State(name string) string {
	return m.breaker(name).State().String()
}

func (m *Manager) breaker(name string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	threshold := m.settings.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		// One probe while half-open; its outcome closes or reopens.
		MaxRequests: 1,
		Timeout:     m.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger := log.WithComponent("breaker")
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	m.breakers[name] = cb
	return cb
}
