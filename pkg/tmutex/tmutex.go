// Package tmutex provides a binary semaphore with TryLock and a context-aware
// Lock. Unlike sync.Mutex it may be released by a goroutine other than the
// one that acquired it.
package tmutex

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Mutex is a mutual exclusion primitive that implements TryLock in addition
// to Lock and Unlock. It must be initialized with Init before use.
type Mutex struct {
	sem *semaphore.Weighted
}

// New returns an initialized Mutex.
func New() *Mutex {
	m := &Mutex{}
	m.Init()
	return m
}

// Init readies m for use. It is not safe to call Init on a mutex in use.
func (m *Mutex) Init() {
	m.sem = semaphore.NewWeighted(1)
}

// Valid reports whether m has been initialized.
func (m *Mutex) Valid() bool {
	return m.sem != nil
}

// Lock acquires the mutex, blocking until it is available.
func (m *Mutex) Lock() {
	// 背景 context 永不取消，Acquire 不会失败
	_ = m.sem.Acquire(context.Background(), 1)
}

// LockContext acquires the mutex or returns ctx.Err() if ctx is done first.
func (m *Mutex) LockContext(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// TryLock tries to acquire the mutex without blocking. It returns true if
// the mutex was acquired.
func (m *Mutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

// Unlock releases the mutex. Unlocking an unlocked mutex panics.
func (m *Mutex) Unlock() {
	m.sem.Release(1)
}
