package log

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CorrelationField is the stable field name carrying the correlation id on
// every emitted record.
const CorrelationField = "correlation_id"

// noCorrelation is logged when a record is emitted outside any lifecycle.
const noCorrelation = "N/A"

type correlationKey struct{}

// NewCorrelationID returns a fresh correlation id for one logical operation
// (one mover lifecycle).
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelation attaches a correlation id to ctx. Every task spawned with
// this context and every record logged through Ctx carries the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID extracts the id from ctx, or "N/A" when none is attached.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return noCorrelation
}

// Ctx returns the global logger bound to ctx. The correlation hook derives
// the id field from the bound context on every record.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger.With().Ctx(ctx).Logger()
	return &l
}

// correlationHook stamps the correlation field on every record: the id from
// the event context when one is attached, "N/A" otherwise.
type correlationHook struct{}

func (correlationHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		e.Str(CorrelationField, noCorrelation)
		return
	}
	e.Str(CorrelationField, CorrelationID(ctx))
}
