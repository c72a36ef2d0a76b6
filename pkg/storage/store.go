package storage

import (
	"github.com/moverwatch/moverwatch/pkg/types"
)

// Snapshot is the persisted view of the state machine: enough to restore
// the lifecycle position after a restart.
type Snapshot struct {
	CurrentState  types.MonitorState `json:"current_state"`
	PreviousState types.MonitorState `json:"previous_state"`
	ContextData   map[string]any     `json:"context_data"`
}

// Store persists the state-machine snapshot and a bounded delivery history.
type Store interface {
	// SaveSnapshot overwrites the persisted snapshot.
	SaveSnapshot(snap *Snapshot) error
	// LoadSnapshot returns the persisted snapshot, or nil when none exists.
	LoadSnapshot() (*Snapshot, error)

	// AppendDelivery records a finished delivery for post-mortem inspection.
	AppendDelivery(status *types.DeliveryStatus) error
	// RecentDeliveries returns up to limit most recent delivery records,
	// newest first.
	RecentDeliveries(limit int) ([]*types.DeliveryStatus, error)

	// Close releases the underlying database.
	Close() error
}
