package sleep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchNonBlocking(t *testing.T) {
	var s Sleeper
	var w1, w2 Waker
	s.AddWaker(&w1, 1)
	s.AddWaker(&w2, 2)
	defer s.Done()

	_, ok := s.Fetch(false)
	assert.False(t, ok)

	w2.Assert()
	id, ok := s.Fetch(false)
	require.True(t, ok)
	assert.Equal(t, 2, id)
	assert.False(t, w2.IsAsserted())

	_, ok = s.Fetch(false)
	assert.False(t, ok)
}

func TestFetchBlockingWakesFromOtherGoroutine(t *testing.T) {
	var s Sleeper
	var w Waker
	s.AddWaker(&w, 7)
	defer s.Done()

	go func() {
		time.Sleep(5 * time.Millisecond)
		w.Assert()
	}()
	id, ok := s.Fetch(true)
	require.True(t, ok)
	assert.Equal(t, 7, id)
}

func TestAssertedBeforeAdd(t *testing.T) {
	var s Sleeper
	var w Waker
	w.Assert()
	s.AddWaker(&w, 3)

	select {
	case <-s.C():
	case <-time.After(time.Second):
		t.Fatal("pre-asserted waker did not notify")
	}
	id, ok := s.Fetch(false)
	require.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestFetchContextCancel(t *testing.T) {
	var s Sleeper
	var w Waker
	s.AddWaker(&w, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := s.FetchContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	s.Done()
	w.Assert()
	assert.True(t, w.IsAsserted())
	assert.True(t, w.Clear())
	assert.False(t, w.Clear())
}
