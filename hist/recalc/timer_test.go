package recalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerQueuePopDue(t *testing.T) {
	tq := NewTimerQueue(2, 10, 30)
	tq.Refresh([]int64{1, 2, 3}, 100)

	// soft limit caps one pop
	due := tq.PopDue(100)
	assert.Len(t, due, 2)

	due2 := tq.PopDue(100)
	require.Len(t, due2, 1)

	// everything locked now
	assert.Empty(t, tq.PopDue(100))

	tq.Release(due, 100)
	tq.Release(due2, 100)

	// released timers are rescheduled, not due yet
	assert.Empty(t, tq.PopDue(100))
	assert.Len(t, tq.PopDue(130), 2)
}

func TestTimerQueueHardLimit(t *testing.T) {
	tq := NewTimerQueue(5, 3, 30)
	tq.Refresh([]int64{1, 2, 3, 4, 5}, 100)

	due := tq.PopDue(100)
	assert.Len(t, due, 3)
	assert.Empty(t, tq.PopDue(100))
}

func TestTimerQueueRefreshDropsStale(t *testing.T) {
	tq := NewTimerQueue(10, 10, 30)
	tq.Refresh([]int64{1, 2}, 100)
	assert.Equal(t, 2, tq.Len())

	tq.Refresh([]int64{2}, 100)
	assert.Equal(t, 1, tq.Len())

	due := tq.PopDue(100)
	assert.Equal(t, []int64{2}, due)
}
