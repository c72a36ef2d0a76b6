package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moverwatch/moverwatch/pkg/sanitize"
)

func initBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	return &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	return rec
}

func TestSinkRedactsSecrets(t *testing.T) {
	buf := initBuffer(t)

	Logger.Error().
		Str("url", "https://discord.com/api/webhooks/111/AAA").
		Msg("delivery to https://discord.com/api/webhooks/111/AAA failed")

	out := buf.String()
	assert.NotContains(t, out, "AAA")
	assert.Contains(t, out, sanitize.Marker)
}

func TestSinkRedactsSensitiveFieldValues(t *testing.T) {
	buf := initBuffer(t)

	Logger.Info().
		Str("token", "supersecret123").
		Str("chat_id", "-100200300").
		Msg("provider configured")

	rec := lastRecord(t, buf)
	assert.Equal(t, sanitize.Marker, rec["token"])
	assert.Equal(t, "-100200300", rec["chat_id"])
	assert.NotContains(t, buf.String(), "supersecret123")
}

func TestCorrelationFieldFromContext(t *testing.T) {
	buf := initBuffer(t)

	ctx := WithCorrelation(context.Background(), "lifecycle-42")
	Ctx(ctx).Info().Msg("tick")

	rec := lastRecord(t, buf)
	assert.Equal(t, "lifecycle-42", rec[CorrelationField])
}

func TestCorrelationFieldDefaultsToNA(t *testing.T) {
	buf := initBuffer(t)

	Logger.Info().Msg("no lifecycle")

	rec := lastRecord(t, buf)
	assert.Equal(t, "N/A", rec[CorrelationField])
}

func TestCorrelationIDHelpers(t *testing.T) {
	assert.Equal(t, "N/A", CorrelationID(context.Background()))

	id := NewCorrelationID()
	ctx := WithCorrelation(context.Background(), id)
	assert.Equal(t, id, CorrelationID(ctx))
}

func TestWithComponent(t *testing.T) {
	buf := initBuffer(t)

	logger := WithComponent("sampler")
	logger.Info().Msg("walked")

	rec := lastRecord(t, buf)
	assert.Equal(t, "sampler", rec["component"])
}
