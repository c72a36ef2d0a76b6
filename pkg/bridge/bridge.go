package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/moverwatch/moverwatch/pkg/dispatch"
	"github.com/moverwatch/moverwatch/pkg/events"
	"github.com/moverwatch/moverwatch/pkg/log"
	"github.com/moverwatch/moverwatch/pkg/notify"
	"github.com/moverwatch/moverwatch/pkg/types"
)

// Rule maps a topic pattern onto a notification. Rules are evaluated in
// order and the first enabled match wins; an event matching no rule produces
// nothing.
type Rule struct {
	Pattern  string
	Priority types.Priority
	Title    string
	Template string
	Enabled  bool
}

// DefaultRules covers the standard lifecycle topics. Progress updates are
// low priority so the dispatcher's throttle and batching keep them quiet;
// errors are high priority and arm an escalation.
func DefaultRules() []Rule {
	return []Rule{
		{
			Pattern:  events.TopicMoverStarted,
			Priority: types.PriorityNormal,
			Title:    "Mover started",
			Template: "Transfer under way on {{.paths}}: {{bytes .total_bytes}} to move.",
			Enabled:  true,
		},
		{
			Pattern:  events.TopicMoverProgress,
			Priority: types.PriorityLow,
			Title:    "Transfer progress",
			Template: "{{percent .percent}} complete, {{rate .rate}}, about {{duration .etc_seconds}} remaining.",
			Enabled:  true,
		},
		{
			Pattern:  events.TopicMoverCompleted,
			Priority: types.PriorityNormal,
			Title:    "Transfer complete",
			Template: "Moved {{bytes .moved_bytes}} in {{duration .elapsed_seconds}}.",
			Enabled:  true,
		},
		{
			Pattern:  events.TopicMoverError,
			Priority: types.PriorityHigh,
			Title:    "Mover error",
			Template: "{{.category}} error ({{.severity}}): {{.message}}",
			Enabled:  true,
		},
		{
			Pattern:  events.TopicStateChanged,
			Priority: types.PriorityLow,
			Title:    "State change",
			Template: "{{.from}} -> {{.to}}",
			Enabled:  false,
		},
	}
}

// escalationKey arms one escalation per unresolved error condition.
const escalationKey = "mover.error"

// Bridge subscribes to the event bus and turns matching events into
// dispatched notifications. Error events arm an escalation that re-fires
// unless a later start or completion clears it.
type Bridge struct {
	rules           []Rule
	dispatcher      *dispatch.Dispatcher
	bus             *events.Bus
	escalationDelay time.Duration
	logger          zerolog.Logger

	unsubscribe func()
}

// New creates a bridge; Start wires it to the bus. An escalationDelay of
// zero disables error escalation.
func New(bus *events.Bus, dispatcher *dispatch.Dispatcher, rules []Rule, escalationDelay time.Duration) *Bridge {
	return &Bridge{
		rules:           rules,
		dispatcher:      dispatcher,
		bus:             bus,
		escalationDelay: escalationDelay,
		logger:          log.WithComponent("bridge"),
	}
}

// Start subscribes to every topic. Safe to call once.
func (b *Bridge) Start() {
	b.unsubscribe = b.bus.Subscribe("*", b.handle)
	b.logger.Info().Int("rules", len(b.rules)).Msg("Notification bridge started")
}

// Stop detaches from the bus.
func (b *Bridge) Stop() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

func (b *Bridge) handle(ctx context.Context, ev events.Event) {
	// Delivery reports come from our own dispatches; matching them would
	// feed the bridge its own output.
	if ev.Topic == events.TopicDelivery {
		return
	}

	rule, ok := b.match(ev.Topic)
	if !ok {
		return
	}

	msg, err := b.render(ctx, rule, ev)
	if err != nil {
		b.logger.Warn().Err(err).Str("topic", ev.Topic).Msg("failed to render notification")
		return
	}

	if _, err := b.dispatcher.Publish(ctx, msg); err != nil {
		b.logger.Warn().Err(err).Str("topic", ev.Topic).Msg("failed to publish notification")
		return
	}

	b.adjustEscalation(ev.Topic, msg)
}

func (b *Bridge) match(topic string) (Rule, bool) {
	for _, rule := range b.rules {
		if rule.Enabled && events.TopicMatches(rule.Pattern, topic) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (b *Bridge) render(ctx context.Context, rule Rule, ev events.Event) (types.Message, error) {
	title, err := notify.RenderTemplate(rule.Title, ev.Payload)
	if err != nil {
		return types.Message{}, err
	}
	content, err := notify.RenderTemplate(rule.Template, ev.Payload)
	if err != nil {
		return types.Message{}, err
	}

	metadata := map[string]string{
		"event":          ev.Topic,
		"correlation_id": log.CorrelationID(ctx),
	}
	return types.NewMessage(title, content, rule.Priority, nil, metadata), nil
}

// adjustEscalation arms a follow-up on errors and disarms it when the mover
// starts over or finishes.
func (b *Bridge) adjustEscalation(topic string, msg types.Message) {
	if b.escalationDelay <= 0 {
		return
	}
	switch topic {
	case events.TopicMoverError:
		b.dispatcher.ScheduleEscalation(escalationKey, b.escalationDelay, msg)
	case events.TopicMoverStarted, events.TopicMoverCompleted:
		if b.dispatcher.CancelEscalation(escalationKey) {
			b.logger.Debug().Msg("error escalation cleared")
		}
	}
}
