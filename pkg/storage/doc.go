/*
Package storage persists the monitor's durable state in an embedded BoltDB
file.

Two buckets hold everything:

  - "state": the single state-machine snapshot (current state, previous
    state, scalar context), overwritten on every transition. Restoring it
    after a restart puts the lifecycle back where it was.
  - "deliveries": a bounded, append-only history of finished notification
    deliveries keyed by sequence number, pruned to the most recent 1000.
    It exists for post-mortem inspection, not for dispatch decisions.

Values are JSON; round-trips are lossless. All access goes through the
Store interface so tests can substitute an in-memory fake.

# Usage

	store, err := storage.NewBoltStore("/var/lib/moverwatch/state.db")
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.LoadSnapshot() // nil when nothing persisted yet
*/
package storage
