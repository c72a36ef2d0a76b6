package failure

import (
	"fmt"
	"sync"
)

// Callback undoes one transaction's effect.
type Callback func() error

type rollbackEntry struct {
	id string
	fn Callback
}

// RollbackRegistry holds per-transaction undo callbacks. Rollback callbacks
// undo a failed operation; compensation callbacks undo the downstream effect
// of an operation that succeeded but must be reverted. Both share ordering:
// RunAll executes in reverse registration order.
type RollbackRegistry struct {
	mu      sync.Mutex
	entries []rollbackEntry
}

// NewRollbackRegistry creates an empty registry.
func NewRollbackRegistry() *RollbackRegistry {
	return &RollbackRegistry{}
}

// Register adds the undo callback for a named transaction. Re-registering
// an id replaces the previous callback and keeps its position.
func (r *RollbackRegistry) Register(id string, fn Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			r.entries[i].fn = fn
			return
		}
	}
	r.entries = append(r.entries, rollbackEntry{id: id, fn: fn})
}

// Rollback runs and removes the callback for id.
func (r *RollbackRegistry) Rollback(id string) error {
	r.mu.Lock()
	var fn Callback
	for i, e := range r.entries {
		if e.id == id {
			fn = e.fn
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("no rollback registered for %q", id)
	}
	return fn()
}

// RollbackAll runs every registered callback in reverse registration order,
// collecting the first error but continuing through the rest. The registry
// is empty afterwards.
func (r *RollbackRegistry) RollbackAll() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	var first error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := entries[i].fn(); err != nil && first == nil {
			first = fmt.Errorf("rollback %q: %w", entries[i].id, err)
		}
	}
	return first
}

// Discard removes the callback for id without running it, used after the
// transaction's effect is confirmed durable.
func (r *RollbackRegistry) Discard(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered callbacks.
func (r *RollbackRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
