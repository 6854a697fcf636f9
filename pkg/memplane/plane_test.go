package memplane_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/memplane"
)

func TestSnapshotIsolation(t *testing.T) {
	p := memplane.New()
	p.Write("x", 1)

	view := p.Snapshot()
	p.Write("x", 2)
	p.Write("y", "late")

	// The view sees the plane at snapshot time.
	v, ok := view.Get("x")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = view.Get("y")
	assert.False(t, ok)
}

func TestMergeRequiredOutputs(t *testing.T) {
	node := &domain.Node{
		ID:              "review",
		OutputKeys:      []string{"verdict", "feedback"},
		NullableOutputs: []string{"feedback"},
	}

	t.Run("missing required output fails atomically", func(t *testing.T) {
		p := memplane.New()
		err := p.Merge(node, map[string]any{"feedback": "meh"})
		require.Error(t, err)
		assert.Equal(t, domain.FailMissingOutput, domain.FailureKind(err))

		// Nothing was written.
		_, ok := p.Read("feedback")
		assert.False(t, ok)
	})

	t.Run("nullable output may stay unset", func(t *testing.T) {
		p := memplane.New()
		err := p.Merge(node, map[string]any{"verdict": "approve"})
		require.NoError(t, err)

		v, ok := p.Read("verdict")
		require.True(t, ok)
		assert.Equal(t, "approve", v)
	})

	t.Run("revisit overwrites, last write wins", func(t *testing.T) {
		p := memplane.New()
		require.NoError(t, p.Merge(node, map[string]any{"verdict": "revise", "feedback": "v1"}))
		require.NoError(t, p.Merge(node, map[string]any{"verdict": "approve", "feedback": "v2"}))

		v, _ := p.Read("feedback")
		assert.Equal(t, "v2", v)
	})

	t.Run("explicit nil clears a nullable key", func(t *testing.T) {
		p := memplane.New()
		require.NoError(t, p.Merge(node, map[string]any{"verdict": "revise", "feedback": "v1"}))
		require.NoError(t, p.Merge(node, map[string]any{"verdict": "approve", "feedback": nil}))

		_, ok := p.Read("feedback")
		assert.False(t, ok, "nil write removes the prior value")
	})

	t.Run("absent nullable key leaves the prior value", func(t *testing.T) {
		p := memplane.New()
		require.NoError(t, p.Merge(node, map[string]any{"verdict": "revise", "feedback": "v1"}))
		require.NoError(t, p.Merge(node, map[string]any{"verdict": "approve"}))

		v, ok := p.Read("feedback")
		require.True(t, ok)
		assert.Equal(t, "v1", v)
	})

	t.Run("nil required output still fails", func(t *testing.T) {
		p := memplane.New()
		err := p.Merge(node, map[string]any{"verdict": nil})
		require.Error(t, err)
		assert.Equal(t, domain.FailMissingOutput, domain.FailureKind(err))
	})
}

func TestMergeTypedOutputs(t *testing.T) {
	node := &domain.Node{
		ID:          "extract",
		OutputKeys:  []string{"count"},
		OutputTypes: map[string]string{"count": "int"},
	}

	p := memplane.New()
	err := p.Merge(node, map[string]any{"count": "three"})
	require.Error(t, err)
	assert.Equal(t, domain.FailMissingOutput, domain.FailureKind(err))

	require.NoError(t, p.Merge(node, map[string]any{"count": 3}))
}

func TestRestore(t *testing.T) {
	p := memplane.Restore(map[string]any{"a": 1, "b": "two"})
	v, ok := p.Read("b")
	require.True(t, ok)
	assert.Equal(t, "two", v)
	assert.Len(t, p.Contents(), 2)
}

func TestViewRequire(t *testing.T) {
	view := memplane.View{"present": 1, "nilval": nil}
	missing := view.Require([]string{"present", "nilval", "absent"})
	assert.Equal(t, []string{"nilval", "absent"}, missing)
}
