package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_AcquireDeniesWhileBusy(t *testing.T) {
	tr := NewTracker()

	r1, ok := tr.TryAcquire(42)
	require.True(t, ok)
	assert.True(t, tr.Busy(42))

	_, ok = tr.TryAcquire(42)
	assert.False(t, ok, "second acquire must be denied")
	assert.True(t, tr.IsCurrent(42, r1), "denied acquire must not change state")

	// other chats are independent
	_, ok = tr.TryAcquire(43)
	assert.True(t, ok)
	assert.Equal(t, 2, tr.Len())
}

func TestTracker_ReleaseOnlyIfMatching(t *testing.T) {
	tr := NewTracker()

	r1, ok := tr.TryAcquire(1)
	require.True(t, ok)
	require.True(t, tr.ForceCancel(1))

	r2, ok := tr.TryAcquire(1)
	require.True(t, ok)
	assert.NotEqual(t, r1, r2)

	// late cleanup of the cancelled request must not clear the new lock
	assert.False(t, tr.Release(1, r1))
	assert.True(t, tr.IsCurrent(1, r2))
	assert.False(t, tr.IsCurrent(1, r1))

	assert.True(t, tr.Release(1, r2))
	assert.False(t, tr.Busy(1))
	assert.Zero(t, tr.Len(), "idle chats leave no entry behind")
}

func TestTracker_ForceCancel(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.ForceCancel(9), "nothing to cancel")

	id, ok := tr.TryAcquire(9)
	require.True(t, ok)
	assert.True(t, tr.ForceCancel(9))
	assert.False(t, tr.IsCurrent(9, id))
	assert.False(t, tr.Busy(9))
}

func TestTracker_IDsStrictlyIncrease(t *testing.T) {
	tr := NewTracker()
	var last RequestID
	for i := 0; i < 100; i++ {
		id, ok := tr.TryAcquire(5)
		require.True(t, ok)
		assert.Greater(t, id, last)
		last = id
		require.True(t, tr.Release(5, id))
	}
}

func TestTracker_ConcurrentAcquireSingleWinner(t *testing.T) {
	tr := NewTracker()
	const n = 64
	var wg sync.WaitGroup
	wins := make(chan RequestID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, ok := tr.TryAcquire(77); ok {
				wins <- id
			}
		}()
	}
	wg.Wait()
	close(wins)
	assert.Len(t, wins, 1)
}

func TestJob_CheckpointsAndIdempotentRelease(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tr := NewTracker(WithClock(func() time.Time { return now }))

	job, ok := tr.Begin(10)
	require.True(t, ok)
	assert.True(t, job.Current())

	_, ok = tr.Begin(10)
	assert.False(t, ok)

	now = now.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, job.Age())

	job.Release()
	job.Release()
	assert.False(t, tr.Busy(10))
	assert.False(t, job.Current())
}

func TestJob_CancelledJobCannotClearSuccessor(t *testing.T) {
	tr := NewTracker()

	stale, ok := tr.Begin(3)
	require.True(t, ok)
	tr.ForceCancel(3)

	fresh, ok := tr.Begin(3)
	require.True(t, ok)

	assert.False(t, stale.Current())
	stale.Release()
	assert.True(t, fresh.Current(), "stale release must not affect the newer job")
	fresh.Release()
	assert.Zero(t, tr.Len())
}
