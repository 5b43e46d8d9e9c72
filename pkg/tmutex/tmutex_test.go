package tmutex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock(t *testing.T) {
	m := New()
	require.True(t, m.TryLock())
	assert.False(t, m.TryLock())
	m.Unlock()
	assert.True(t, m.TryLock())
	m.Unlock()
}

func TestUnlockFromOtherGoroutine(t *testing.T) {
	m := New()
	m.Lock()

	released := make(chan struct{})
	go func() {
		m.Unlock()
		close(released)
	}()
	<-released

	require.True(t, m.TryLock())
	m.Unlock()
}

func TestLockContext(t *testing.T) {
	m := New()
	m.Lock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.LockContext(ctx), context.DeadlineExceeded)

	m.Unlock()
	require.NoError(t, m.LockContext(context.Background()))
	m.Unlock()
}

func TestMutualExclusion(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16*500, counter)
}

func TestValid(t *testing.T) {
	var m Mutex
	assert.False(t, m.Valid())
	m.Init()
	assert.True(t, m.Valid())
}
