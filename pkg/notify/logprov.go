package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/moverwatch/moverwatch/pkg/log"
	"github.com/moverwatch/moverwatch/pkg/types"
)

func init() {
	Register("log", NewLogProvider)
}

// LogProvider writes messages to the process log instead of an external
// service. It backs dry-run mode and is always safe to enable.
type LogProvider struct {
	logger zerolog.Logger
}

// NewLogProvider builds a log provider. It takes no settings.
func NewLogProvider(_ map[string]any) (Provider, error) {
	return &LogProvider{logger: log.WithComponent("notify-log")}, nil
}

// Name implements Provider.
func (l *LogProvider) Name() string { return "log" }

// ValidateConfig implements Provider. There is nothing to validate.
func (l *LogProvider) ValidateConfig() error { return nil }

// Send logs the message at a level matching its priority.
func (l *LogProvider) Send(ctx context.Context, msg types.Message) error {
	evt := l.logger.Info()
	if msg.Priority >= types.PriorityHigh {
		evt = l.logger.Warn()
	}
	evt.Ctx(ctx).
		Str("title", msg.Title).
		Str("priority", msg.Priority.String()).
		Fields(map[string]any{"metadata": msg.Metadata}).
		Msg(msg.Content)
	return nil
}
