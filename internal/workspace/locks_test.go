package workspace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireAndRelease(t *testing.T) {
	l := NewLocks()

	release, err := l.TryAcquire("/ws/a", "write")
	require.NoError(t, err)

	op, held := l.Running("/ws/a")
	assert.True(t, held)
	assert.Equal(t, "write", op)

	release()
	_, held = l.Running("/ws/a")
	assert.False(t, held)
}

func TestTryAcquireBusyFailsFast(t *testing.T) {
	l := NewLocks()

	release, err := l.TryAcquire("/ws/a", "write")
	require.NoError(t, err)
	defer release()

	second, err := l.TryAcquire("/ws/a", "edit")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Nil(t, second)
}

func TestDistinctWorkspacesIndependent(t *testing.T) {
	l := NewLocks()

	r1, err := l.TryAcquire("/ws/a", "write")
	require.NoError(t, err)
	defer r1()

	r2, err := l.TryAcquire("/ws/b", "write")
	require.NoError(t, err)
	defer r2()
}

func TestReleaseIdempotent(t *testing.T) {
	l := NewLocks()

	release, err := l.TryAcquire("/ws/a", "write")
	require.NoError(t, err)
	release()
	release() // second call must not panic or free someone else's claim

	again, err := l.TryAcquire("/ws/a", "edit")
	require.NoError(t, err)
	release() // stale release from the first claim
	_, held := l.Running("/ws/a")
	assert.True(t, held, "stale release must not free the new claim")
	again()
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	l := NewLocks()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, err := l.TryAcquire("/ws/a", "write"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				release()
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, wins, 1)
	_, held := l.Running("/ws/a")
	assert.False(t, held)
}
