package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestOpensAfterThreshold(t *testing.T) {
	m := NewManager(Settings{FailureThreshold: 3, Cooldown: time.Hour})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, m.Execute("provider", func() error { return errBoom }), errBoom)
	}
	assert.Equal(t, "open", m.State("provider"))

	// Calls while open are rejected without running fn.
	ran := false
	err := m.Execute("provider", func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, ran)
}

func TestPerComponentIsolation(t *testing.T) {
	m := NewManager(Settings{FailureThreshold: 1, Cooldown: time.Hour})

	require.Error(t, m.Execute("discord", func() error { return errBoom }))
	assert.Equal(t, "open", m.State("discord"))

	assert.NoError(t, m.Execute("telegram", func() error { return nil }))
	assert.Equal(t, "closed", m.State("telegram"))
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	m := NewManager(Settings{FailureThreshold: 1, Cooldown: 30 * time.Millisecond})

	require.Error(t, m.Execute("c", func() error { return errBoom }))
	assert.Equal(t, "open", m.State("c"))

	time.Sleep(60 * time.Millisecond)
	assert.NoError(t, m.Execute("c", func() error { return nil }))
	assert.Equal(t, "closed", m.State("c"))
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	m := NewManager(Settings{FailureThreshold: 1, Cooldown: 30 * time.Millisecond})

	require.Error(t, m.Execute("c", func() error { return errBoom }))
	time.Sleep(60 * time.Millisecond)

	require.ErrorIs(t, m.Execute("c", func() error { return errBoom }), errBoom)
	assert.Equal(t, "open", m.State("c"))
}

func TestSuccessKeepsClosed(t *testing.T) {
	m := NewManager(Settings{})
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Execute("steady", func() error { return nil }))
	}
	assert.Equal(t, "closed", m.State("steady"))
}
