package run_test

import (
	"testing"

	"github.com/duragraph/duragraph/internal/domain/run"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Creation(t *testing.T) {
	t.Run("creates run with valid parameters", func(t *testing.T) {
		input := map[string]interface{}{"message": "test"}

		r, err := run.NewRun("graph-456", input)

		require.NoError(t, err)
		assert.NotEmpty(t, r.ID())
		assert.Equal(t, run.StatusQueued, r.Status())
		assert.Equal(t, "graph-456", r.GraphID())
	})

	t.Run("rejects run with empty graph ID", func(t *testing.T) {
		_, err := run.NewRun("", map[string]interface{}{"message": "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "graph_id")
	})
}

func TestRun_StateTransitions(t *testing.T) {
	t.Run("transitions from queued to running", func(t *testing.T) {
		r := createTestRun(t)

		require.NoError(t, r.Start())

		assert.Equal(t, run.StatusRunning, r.Status())
		require.NotNil(t, r.StartedAt())
	})

	t.Run("transitions from running to succeeded", func(t *testing.T) {
		r := createTestRun(t)
		require.NoError(t, r.Start())

		output := map[string]interface{}{"result": "success"}
		require.NoError(t, r.Complete(output))

		assert.Equal(t, run.StatusSucceeded, r.Status())
		require.NotNil(t, r.CompletedAt())
		assert.Equal(t, output, r.Output())
	})

	t.Run("rejects invalid state transition", func(t *testing.T) {
		r := createTestRun(t)
		require.NoError(t, r.Start())
		require.NoError(t, r.Complete(nil))

		err := r.Start()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid")
	})
}

func TestRun_EventEmission(t *testing.T) {
	t.Run("emits RunCreated event on creation", func(t *testing.T) {
		r, err := run.NewRun("graph-456", nil)
		require.NoError(t, err)

		events := r.Events()
		require.Len(t, events, 1)
		assert.Equal(t, run.EventTypeRunCreated, events[0].EventType())
	})

	t.Run("emits RunStarted event on start", func(t *testing.T) {
		r := createTestRun(t)
		r.ClearEvents()

		require.NoError(t, r.Start())

		events := r.Events()
		require.Len(t, events, 1)
		assert.Equal(t, run.EventTypeRunStarted, events[0].EventType())
	})
}

func createTestRun(t *testing.T) *run.Run {
	t.Helper()
	r, err := run.NewRun("graph-456", map[string]interface{}{"test": true})
	require.NoError(t, err)
	return r
}
