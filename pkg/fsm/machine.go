package fsm

import (
	"fmt"
	"sync"

	"github.com/moverwatch/moverwatch/pkg/storage"
	"github.com/moverwatch/moverwatch/pkg/types"
)

// historyCap bounds the retained state history.
const historyCap = 64

// Context carries scalar values across transitions (last pid, last percent).
// It is persisted verbatim in the snapshot.
type Context map[string]any

// Guard decides whether a transition may fire.
type Guard func(ctx Context) bool

// Action runs on a successful transition, inside the machine lock. Actions
// must not call back into TransitionTo on the same machine.
type Action func(ctx Context)

// Transition is one edge of the lifecycle graph.
type Transition struct {
	From   types.MonitorState
	To     types.MonitorState
	Guard  Guard
	Action Action
}

// TransitionError reports a rejected transition; the machine state is
// unchanged when it is returned.
type TransitionError struct {
	From   types.MonitorState
	To     types.MonitorState
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// Machine is a mutex-guarded state machine over the monitor lifecycle.
type Machine struct {
	mu          sync.Mutex
	current     types.MonitorState
	previous    types.MonitorState
	transitions []Transition
	history     []types.MonitorState
	context     Context
}

// New creates a machine in the initial state with the given edges.
func New(initial types.MonitorState, transitions []Transition) *Machine {
	return &Machine{
		current:     initial,
		transitions: transitions,
		history:     []types.MonitorState{initial},
		context:     Context{},
	}
}

// Lifecycle returns the monitor's full transition graph: the steady-state
// loop plus the error, recovery, shutdown, and suspension edges.
func Lifecycle() []Transition {
	edges := []struct{ from, to types.MonitorState }{
		{types.StateIdle, types.StateDetecting},
		{types.StateDetecting, types.StateMonitoring},
		{types.StateDetecting, types.StateIdle},
		{types.StateMonitoring, types.StateCompleting},
		{types.StateCompleting, types.StateIdle},

		{types.StateIdle, types.StateError},
		{types.StateDetecting, types.StateError},
		{types.StateMonitoring, types.StateError},
		{types.StateCompleting, types.StateError},
		{types.StateError, types.StateRecovering},
		{types.StateRecovering, types.StateIdle},
		{types.StateRecovering, types.StateError},
		{types.StateError, types.StateShutdown},

		{types.StateIdle, types.StateSuspended},
		{types.StateMonitoring, types.StateSuspended},
		{types.StateSuspended, types.StateIdle},
		{types.StateSuspended, types.StateMonitoring},

		{types.StateIdle, types.StateShutdown},
		{types.StateDetecting, types.StateShutdown},
		{types.StateMonitoring, types.StateShutdown},
		{types.StateCompleting, types.StateShutdown},
		{types.StateRecovering, types.StateShutdown},
		{types.StateSuspended, types.StateShutdown},
	}

	out := make([]Transition, len(edges))
	for i, e := range edges {
		out[i] = Transition{From: e.from, To: e.to}
	}
	return out
}

// Current returns the current state.
func (m *Machine) Current() types.MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Previous returns the state before the last successful transition.
func (m *Machine) Previous() types.MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previous
}

// History returns the capped list of visited states, oldest first.
func (m *Machine) History() []types.MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.MonitorState(nil), m.history...)
}

// Set stores a scalar in the machine context.
func (m *Machine) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context[key] = value
}

// Get reads a scalar from the machine context.
func (m *Machine) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.context[key]
	return v, ok
}

// TransitionTo moves the machine to target. The first transition whose From
// matches the current state and whose To matches the target is considered;
// a false guard or a missing edge rejects the move and leaves the state
// unchanged. The transition's action runs under the same lock that holds
// the state.
func (m *Machine) TransitionTo(target types.MonitorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tr := range m.transitions {
		if tr.From != m.current || tr.To != target {
			continue
		}
		if tr.Guard != nil && !tr.Guard(m.context) {
			return &TransitionError{From: m.current, To: target, Reason: "guard rejected"}
		}

		m.previous = m.current
		m.current = target
		m.history = append(m.history, target)
		if len(m.history) > historyCap {
			m.history = m.history[len(m.history)-historyCap:]
		}

		if tr.Action != nil {
			tr.Action(m.context)
		}
		return nil
	}

	return &TransitionError{From: m.current, To: target, Reason: "no matching transition"}
}

// Snapshot captures current, previous, and context for persistence.
func (m *Machine) Snapshot() *storage.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := make(map[string]any, len(m.context))
	for k, v := range m.context {
		ctx[k] = v
	}
	return &storage.Snapshot{
		CurrentState:  m.current,
		PreviousState: m.previous,
		ContextData:   ctx,
	}
}

// Restore rebuilds current, previous, and context from a snapshot. A nil
// snapshot (absent file) is a no-op.
func (m *Machine) Restore(snap *storage.Snapshot) {
	if snap == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = snap.CurrentState
	m.previous = snap.PreviousState
	m.context = Context{}
	for k, v := range snap.ContextData {
		m.context[k] = v
	}
	m.history = append(m.history, snap.CurrentState)
}
