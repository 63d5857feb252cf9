package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusType_IsTerminal(t *testing.T) {
	t.Run("Should treat success, failed and canceled as terminal", func(t *testing.T) {
		assert.True(t, StatusSuccess.IsTerminal())
		assert.True(t, StatusFailed.IsTerminal())
		assert.True(t, StatusCanceled.IsTerminal())
	})

	t.Run("Should treat pending, running and paused as non-terminal", func(t *testing.T) {
		assert.False(t, StatusPending.IsTerminal())
		assert.False(t, StatusRunning.IsTerminal())
		assert.False(t, StatusPaused.IsTerminal())
	})
}

func TestID(t *testing.T) {
	t.Run("Should generate parseable IDs", func(t *testing.T) {
		id := NewID()
		parsed, err := ParseID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("Should reject malformed IDs", func(t *testing.T) {
		_, err := ParseID("not-a-valid-ksuid")
		assert.Error(t, err)
	})

	t.Run("Should report zero value", func(t *testing.T) {
		var id ID
		assert.True(t, id.IsZero())
		assert.False(t, NewID().IsZero())
	})
}

func TestNewError(t *testing.T) {
	t.Run("Should capture message, code and details", func(t *testing.T) {
		err := NewError(errors.New("boom"), CodeTransient, map[string]any{"step": "send_email"})
		require.NotNil(t, err)
		assert.Equal(t, "boom", err.Message)
		assert.Equal(t, CodeTransient, err.Code)
		assert.Equal(t, "transient: boom", err.Error())
	})

	t.Run("Should return nil for nil error", func(t *testing.T) {
		assert.Nil(t, NewError(nil, CodeTransient, nil))
	})
}

func TestDeepCopyMap(t *testing.T) {
	t.Run("Should isolate the copy from later writes", func(t *testing.T) {
		src := map[string]any{"metrics": map[string]any{"total": float64(3)}}
		snapshot, err := DeepCopyMap(src)
		require.NoError(t, err)

		src["metrics"].(map[string]any)["total"] = float64(99)
		assert.Equal(t, float64(3), snapshot["metrics"].(map[string]any)["total"])
	})

	t.Run("Should return empty map for nil input", func(t *testing.T) {
		snapshot, err := DeepCopyMap(nil)
		require.NoError(t, err)
		assert.NotNil(t, snapshot)
		assert.Empty(t, snapshot)
	})
}

func TestMergeOutput(t *testing.T) {
	t.Run("Should merge new output under the step key", func(t *testing.T) {
		ctx := map[string]any{}
		err := MergeOutput(ctx, "calculate_metrics", Output{"total": 5})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"total": 5}, ctx["calculate_metrics"])
	})

	t.Run("Should override existing keys on retry", func(t *testing.T) {
		ctx := map[string]any{"calculate_metrics": map[string]any{"total": 1, "kept": true}}
		err := MergeOutput(ctx, "calculate_metrics", Output{"total": 2})
		require.NoError(t, err)
		merged := ctx["calculate_metrics"].(map[string]any)
		assert.Equal(t, 2, merged["total"])
		assert.Equal(t, true, merged["kept"])
	})
}
