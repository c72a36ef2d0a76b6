package pidfile

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/moverwatch/moverwatch/pkg/log"
	"github.com/moverwatch/moverwatch/pkg/proctable"
	"github.com/moverwatch/moverwatch/pkg/types"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 1 * time.Second

// Watcher polls a PID file and emits created/modified/deleted events.
// Events are cross-validated against the process table: a created event for
// a pid the OS does not report alive is still emitted, with a warning, and
// the consumer decides what to do with it.
type Watcher struct {
	path     string
	interval time.Duration
	prober   proctable.Prober
	logger   zerolog.Logger
	now      func() time.Time

	events chan types.PIDFileEvent

	// Observation state. Only the run goroutine touches these.
	initialized bool
	prevExists  bool
	prevPID     int32
}

// NewWatcher creates a polling watcher over path.
func NewWatcher(path string, interval time.Duration, prober proctable.Prober) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		path:     path,
		interval: interval,
		prober:   prober,
		logger:   log.WithComponent("pidwatcher"),
		now:      time.Now,
		events:   make(chan types.PIDFileEvent, 16),
	}
}

// Events returns the stream of PID file events. Closed when Run returns.
func (w *Watcher) Events() <-chan types.PIDFileEvent {
	return w.events
}

// Run polls until ctx is cancelled. Read errors are logged and the loop
// continues; the watcher never crashes on a bad file.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Observe once immediately so the first real transition is not delayed
	// by a full interval.
	w.tick(ctx)

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tick reads the current file state and emits at most one event.
func (w *Watcher) tick(ctx context.Context) {
	exists, pid, parseOK := w.readState()

	event := w.observe(ctx, exists, pid, parseOK)
	if event == nil {
		return
	}
	select {
	case w.events <- *event:
	case <-ctx.Done():
	}
}

// readState stats and reads the PID file. Returns (exists, pid, parseOK).
// pid is 0 when the content is not a positive integer.
func (w *Watcher) readState() (bool, int32, bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Str("path", w.path).Msg("failed to read pid file")
		}
		return false, 0, false
	}
	pid, perr := parsePID(string(data))
	return true, pid, perr == nil
}

// observe applies the transition table to a fresh (exists, pid) observation.
// The first observation initializes state without emitting.
func (w *Watcher) observe(ctx context.Context, exists bool, pid int32, parseOK bool) *types.PIDFileEvent {
	defer func() {
		w.initialized = true
		w.prevExists = exists
		w.prevPID = pid
	}()

	if !w.initialized {
		return nil
	}

	switch {
	case !w.prevExists && exists:
		if !parseOK {
			w.logger.Warn().Str("path", w.path).Msg("pid file created with unparseable content")
			return &types.PIDFileEvent{Type: types.PIDCreated, PID: 0, Timestamp: w.now()}
		}
		if alive, err := w.prober.Exists(ctx, pid); err != nil {
			w.logger.Warn().Err(err).Int32("pid", pid).Msg("process probe failed")
		} else if !alive {
			w.logger.Warn().Int32("pid", pid).Msg("pid file names a process that is not alive")
		}
		return &types.PIDFileEvent{Type: types.PIDCreated, PID: pid, Timestamp: w.now()}

	case w.prevExists && !exists:
		return &types.PIDFileEvent{Type: types.PIDDeleted, PID: 0, Timestamp: w.now()}

	case w.prevExists && exists && parseOK && pid != w.prevPID && w.prevPID != 0:
		return &types.PIDFileEvent{Type: types.PIDModified, PID: pid, Timestamp: w.now()}
	}
	return nil
}

// parsePID parses ASCII decimal pid content; trailing whitespace tolerated.
// Zero and negative values are rejected.
func parsePID(content string) (int32, error) {
	trimmed := strings.TrimSpace(content)
	n, err := strconv.ParseInt(trimmed, 10, 32)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, strconv.ErrRange
	}
	return int32(n), nil
}
