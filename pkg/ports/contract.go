package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systaxiecuador/hive/pkg/domain"
)

// RunRunStoreContract verifies that a RunStore implementation adheres
// to the interface contract. Every store adapter runs this suite.
func RunRunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := &domain.Snapshot{
			RunID:   runID,
			GraphID: "g1",
			State:   domain.RunSuspended,
			Memory:  map[string]any{"topic": "tides", "count": 42},
			Visits:  map[string]int{"intake": 1},
			Steps:   1,
			Path:    []string{"intake"},

			PauseNode:    "intake",
			PausePayload: "which ocean?",
			Transcript: []domain.Message{
				{Role: "user", Content: "topic: tides"},
				{Role: "assistant", Content: "which ocean?"},
			},
		}

		err := store.Save(ctx, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.State, loaded.State)
		assert.Equal(t, snap.PauseNode, loaded.PauseNode)
		assert.Equal(t, "tides", loaded.Memory["topic"])
		assert.Equal(t, 1, loaded.Visits["intake"])
		assert.Len(t, loaded.Transcript, 2)
		// JSON persistence may widen ints to float64; just check presence.
		assert.NotNil(t, loaded.Memory["count"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, &domain.Snapshot{RunID: runID, State: domain.RunSuspended})
		require.NoError(t, err)

		err = store.Delete(ctx, runID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, &domain.Snapshot{RunID: id1, State: domain.RunSuspended})
		_ = store.Save(ctx, &domain.Snapshot{RunID: id2, State: domain.RunSuspended})

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
