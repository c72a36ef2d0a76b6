/*
Package events provides the in-process pub/sub bus used inside the
orchestrator.

Topics are hierarchical dot-separated strings ("mover.started",
"state.changed"). Subscribers register a handler on an exact topic or a
wildcard pattern ("mover.*", "*") and receive events in publish order on a
dedicated goroutine. Publish never blocks: a subscriber whose buffer is full
drops the event with a warning rather than stalling the publisher, and a
panicking handler is isolated from every other subscriber.

The publisher's context rides along with each event, so the correlation id
active at publish time is visible to handlers and to every log record they
emit.

# Usage

	bus := events.NewBus()
	unsub := bus.Subscribe("mover.*", func(ctx context.Context, ev events.Event) {
		log.Ctx(ctx).Info().Str("topic", ev.Topic).Msg("observed")
	})
	defer unsub()

	bus.Publish(ctx, events.Event{
		Topic:   events.TopicMoverStarted,
		Payload: map[string]any{"pid": 12345},
	})
*/
package events
