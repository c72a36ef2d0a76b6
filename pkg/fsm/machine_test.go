package fsm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moverwatch/moverwatch/pkg/storage"
	"github.com/moverwatch/moverwatch/pkg/types"
)

func TestLifecycleHappyPath(t *testing.T) {
	m := New(types.StateIdle, Lifecycle())

	for _, target := range []types.MonitorState{
		types.StateDetecting,
		types.StateMonitoring,
		types.StateCompleting,
		types.StateIdle,
	} {
		require.NoError(t, m.TransitionTo(target))
	}
	assert.Equal(t, types.StateIdle, m.Current())
	assert.Equal(t, types.StateCompleting, m.Previous())
}

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	m := New(types.StateIdle, Lifecycle())

	err := m.TransitionTo(types.StateCompleting)
	require.Error(t, err)

	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.StateIdle, terr.From)
	assert.Equal(t, types.StateIdle, m.Current())
}

func TestGuardRejects(t *testing.T) {
	m := New(types.StateIdle, []Transition{
		{
			From:  types.StateIdle,
			To:    types.StateDetecting,
			Guard: func(ctx Context) bool { return ctx["armed"] == true },
		},
	})

	err := m.TransitionTo(types.StateDetecting)
	require.Error(t, err)
	assert.Equal(t, types.StateIdle, m.Current())

	m.Set("armed", true)
	require.NoError(t, m.TransitionTo(types.StateDetecting))
	assert.Equal(t, types.StateDetecting, m.Current())
}

func TestActionRunsWithContext(t *testing.T) {
	var sawPID any
	m := New(types.StateIdle, []Transition{
		{
			From:   types.StateIdle,
			To:     types.StateDetecting,
			Action: func(ctx Context) { sawPID = ctx["pid"] },
		},
	})
	m.Set("pid", 12345)

	require.NoError(t, m.TransitionTo(types.StateDetecting))
	assert.Equal(t, 12345, sawPID)
}

func TestHistoryCapped(t *testing.T) {
	m := New(types.StateIdle, Lifecycle())

	for i := 0; i < 50; i++ {
		require.NoError(t, m.TransitionTo(types.StateDetecting))
		require.NoError(t, m.TransitionTo(types.StateMonitoring))
		require.NoError(t, m.TransitionTo(types.StateCompleting))
		require.NoError(t, m.TransitionTo(types.StateIdle))
	}
	assert.LessOrEqual(t, len(m.History()), historyCap)
}

func TestErrorRecoveryEdges(t *testing.T) {
	m := New(types.StateMonitoring, Lifecycle())

	require.NoError(t, m.TransitionTo(types.StateError))
	require.NoError(t, m.TransitionTo(types.StateRecovering))
	require.NoError(t, m.TransitionTo(types.StateIdle))

	require.NoError(t, m.TransitionTo(types.StateShutdown))
	assert.Error(t, m.TransitionTo(types.StateIdle), "shutdown is terminal")
}

func TestSnapshotRoundTripThroughStore(t *testing.T) {
	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	m := New(types.StateIdle, Lifecycle())
	require.NoError(t, m.TransitionTo(types.StateDetecting))
	require.NoError(t, m.TransitionTo(types.StateMonitoring))
	m.Set("pid", float64(4242))

	require.NoError(t, store.SaveSnapshot(m.Snapshot()))

	snap, err := store.LoadSnapshot()
	require.NoError(t, err)

	restored := New(types.StateIdle, Lifecycle())
	restored.Restore(snap)
	assert.Equal(t, types.StateMonitoring, restored.Current())
	assert.Equal(t, types.StateDetecting, restored.Previous())
	pid, ok := restored.Get("pid")
	require.True(t, ok)
	assert.Equal(t, float64(4242), pid)
}

func TestRestoreNilIsNoop(t *testing.T) {
	m := New(types.StateIdle, Lifecycle())
	m.Restore(nil)
	assert.Equal(t, types.StateIdle, m.Current())
}
