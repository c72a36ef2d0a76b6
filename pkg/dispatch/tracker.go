package dispatch

import (
	"sync"
	"time"

	"github.com/moverwatch/moverwatch/pkg/log"
	"github.com/moverwatch/moverwatch/pkg/storage"
	"github.com/moverwatch/moverwatch/pkg/types"
)

// Tracker follows each delivery id across its provider set and persists the
// final record once every provider has reported.
type Tracker struct {
	store storage.Store

	mu       sync.Mutex
	statuses map[string]*types.DeliveryStatus
}

// NewTracker creates a tracker. store may be nil, in which case finished
// deliveries are not persisted.
func NewTracker(store storage.Store) *Tracker {
	return &Tracker{
		store:    store,
		statuses: make(map[string]*types.DeliveryStatus),
	}
}

// Begin registers a queued message for tracking.
func (t *Tracker) Begin(qm types.QueuedMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statuses[qm.DeliveryID] = &types.DeliveryStatus{
		DeliveryID: qm.DeliveryID,
		Message:    qm.Message,
		Providers:  append([]string(nil), qm.Providers...),
		Outcome:    types.DeliveryPending,
		UpdatedAt:  time.Now(),
	}
}

// Record adds one provider's result and returns the recomputed outcome.
// When the outcome leaves pending the record is persisted and dropped from
// the in-memory table.
func (t *Tracker) Record(deliveryID string, result types.ProviderResult) types.DeliveryOutcome {
	t.mu.Lock()
	status, ok := t.statuses[deliveryID]
	if !ok {
		t.mu.Unlock()
		return types.DeliveryPending
	}

	status.Results = append(status.Results, result)
	status.Outcome = status.Aggregate()
	status.UpdatedAt = time.Now()
	outcome := status.Outcome
	if outcome != types.DeliveryPending {
		delete(t.statuses, deliveryID)
	}
	t.mu.Unlock()

	if outcome != types.DeliveryPending && t.store != nil {
		if err := t.store.AppendDelivery(status); err != nil {
			logger := log.WithComponent("dispatch")
			logger.Warn().
				Err(err).
				Str("delivery_id", deliveryID).
				Msg("failed to persist delivery record")
		}
	}
	return outcome
}

// Status returns a copy of the in-flight status for deliveryID, or false
// once it has finished (or was never tracked).
func (t *Tracker) Status(deliveryID string) (types.DeliveryStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.statuses[deliveryID]
	if !ok {
		return types.DeliveryStatus{}, false
	}
	out := *status
	out.Results = append([]types.ProviderResult(nil), status.Results...)
	return out, true
}

// Pending returns the number of deliveries still awaiting results.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.statuses)
}
