// Package sleep allows a goroutine to sleep until one of several wakers is
// asserted. Wakers may be asserted from any goroutine; a sleeper is owned by
// a single consumer goroutine.
package sleep

import (
	"context"
	"sync"
	"sync/atomic"
)

// Waker 可以唤醒与之关联的 Sleeper。Assert 可以在任意 goroutine 中调用。
type Waker struct {
	asserted atomic.Bool

	mu sync.Mutex
	s  *Sleeper
	id int
}

// Assert moves w to the asserted state and wakes its sleeper, if any.
func (w *Waker) Assert() {
	if w.asserted.Swap(true) {
		return
	}
	w.mu.Lock()
	s := w.s
	w.mu.Unlock()
	if s != nil {
		s.notify()
	}
}

// Clear moves w to the non-asserted state and reports whether it was
// asserted before.
func (w *Waker) Clear() bool {
	return w.asserted.Swap(false)
}

// IsAsserted reports whether w is asserted.
func (w *Waker) IsAsserted() bool {
	return w.asserted.Load()
}

// Sleeper sleeps until one of its wakers is asserted. Its methods must be
// called from a single goroutine.
type Sleeper struct {
	once   sync.Once
	ch     chan struct{}
	wakers []*Waker
}

func (s *Sleeper) init() {
	s.once.Do(func() {
		s.ch = make(chan struct{}, 1)
	})
}

func (s *Sleeper) notify() {
	s.init()
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// AddWaker associates w with s. Fetch returns id when w is asserted. A waker
// may belong to only one sleeper until Done is called on it.
func (s *Sleeper) AddWaker(w *Waker, id int) {
	s.init()
	w.mu.Lock()
	w.s = s
	w.id = id
	w.mu.Unlock()
	s.wakers = append(s.wakers, w)
	if w.IsAsserted() {
		s.notify()
	}
}

// Fetch returns the id of the next asserted waker, clearing it. If no waker
// is asserted and block is false it returns ok == false, otherwise it waits.
func (s *Sleeper) Fetch(block bool) (id int, ok bool) {
	if !block {
		return s.poll()
	}
	id, err := s.FetchContext(context.Background())
	return id, err == nil
}

// FetchContext waits for an asserted waker or for ctx to be done.
func (s *Sleeper) FetchContext(ctx context.Context) (int, error) {
	s.init()
	for {
		if id, ok := s.poll(); ok {
			return id, nil
		}
		select {
		case <-s.ch:
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
}

// C returns a channel that receives when some waker may be asserted. Call
// Fetch(false) after receiving.
func (s *Sleeper) C() <-chan struct{} {
	s.init()
	return s.ch
}

func (s *Sleeper) poll() (int, bool) {
	for _, w := range s.wakers {
		if w.Clear() {
			return w.id, true
		}
	}
	return -1, false
}

// Done detaches all wakers from s.
func (s *Sleeper) Done() {
	for _, w := range s.wakers {
		w.mu.Lock()
		w.s = nil
		w.mu.Unlock()
	}
	s.wakers = nil
}
