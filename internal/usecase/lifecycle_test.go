package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-chatbot/internal/domain"
)

func TestLifecycle_ReverseOrder(t *testing.T) {
	lc := NewLifecycle(newTestLogger())
	var order []string
	for _, name := range []string{"p1", "p2", "p3"} {
		lc.Push(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, lc.Close())
	assert.Equal(t, []string{"p3", "p2", "p1"}, order)
	assert.Equal(t, 0, lc.pending())
}

func TestLifecycle_FailuresDoNotStopRelease(t *testing.T) {
	lc := NewLifecycle(newTestLogger())
	var released []string
	lc.Push("first", func() error {
		released = append(released, "first")
		return nil
	})
	lc.Push("stuck", func() error {
		released = append(released, "stuck")
		return errors.New("transport hung")
	})
	lc.Push("panics", func() error {
		released = append(released, "panics")
		panic("boom")
	})

	err := lc.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReleaseFailed)
	assert.Contains(t, err.Error(), "transport hung")
	assert.Contains(t, err.Error(), "panic: boom")
	assert.Equal(t, []string{"panics", "stuck", "first"}, released)
}

func TestLifecycle_ReleaseNowRunsOnce(t *testing.T) {
	lc := NewLifecycle(newTestLogger())
	count := 0
	release := lc.Push("session", func() error {
		count++
		return nil
	})

	require.NoError(t, release())
	require.NoError(t, release())
	require.NoError(t, lc.Close())
	assert.Equal(t, 1, count)
}

func TestLifecycle_CloseIdempotent(t *testing.T) {
	lc := NewLifecycle(newTestLogger())
	count := 0
	lc.Push("session", func() error {
		count++
		return errors.New("close failed")
	})

	assert.Error(t, lc.Close())
	assert.NoError(t, lc.Close())
	assert.Equal(t, 1, count)
}
