/*
Package dispatch implements the notification delivery pipeline.

Messages enter through Publish, which applies admission control before
anything is queued: exact repeats of a (title, content, priority) triple
inside the dedup window are dropped, and messages sharing a throttle key are
held to a minimum interval. Urgent messages bypass the throttle. Admitted
messages join a bounded priority queue; a pool of workers drains it, highest
priority first and FIFO within a priority.

Each worker delivers a message to its full provider set. Every provider
send passes through the shared rate limiter, a per-provider circuit
breaker, and the exponential-backoff retry helper. Per-provider results
are folded into a delivery status; once every provider has reported, the
final record is persisted to the store and announced on the event bus.

Shutdown is phased: Publish starts rejecting, queued messages get the
configured grace period to deliver, then worker contexts are cancelled and
anything still queued is abandoned.

The package also provides escalation timers (follow-up sends that fire
unless cancelled) and a batcher that folds low-priority updates into a
single digest message.
*/
package dispatch
