package ilist

import "github.com/qxcheng/macglue/pkg/tmutex"

// ProtectedList is a SingleList whose every operation runs under a binary
// semaphore. Operations on a list that was never initialized, or has been
// deinitialized, do nothing and return zero values.
type ProtectedList struct {
	list SingleList
	mu   tmutex.Mutex
}

// Init empties the list and creates its semaphore.
func (p *ProtectedList) Init() {
	p.mu.Init()
	p.list.Reset()
}

// Deinitialize drops all elements and invalidates the semaphore.
func (p *ProtectedList) Deinitialize() {
	if !p.mu.Valid() {
		return
	}
	p.mu.Lock()
	p.list.RemoveAll()
	p.mu.Unlock()
	p.mu = tmutex.Mutex{}
}

// Valid reports whether the list is initialized.
func (p *ProtectedList) Valid() bool {
	return p.mu.Valid()
}

// Lock takes the list semaphore for a multi-step critical section. Use the
// Unsafe accessor while it is held.
func (p *ProtectedList) Lock() bool {
	if !p.mu.Valid() {
		return false
	}
	p.mu.Lock()
	return true
}

// Unlock releases the semaphore taken by Lock.
func (p *ProtectedList) Unlock() {
	if p.mu.Valid() {
		p.mu.Unlock()
	}
}

// Unsafe returns the underlying list. Callers must hold Lock.
func (p *ProtectedList) Unsafe() *SingleList {
	return &p.list
}

// Len returns the number of elements.
func (p *ProtectedList) Len() int {
	if !p.mu.Valid() {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list.Len()
}

// PushFront adds e at the head.
func (p *ProtectedList) PushFront(e Element) {
	if !p.mu.Valid() {
		return
	}
	p.mu.Lock()
	p.list.PushFront(e)
	p.mu.Unlock()
}

// PushBack adds e at the tail.
func (p *ProtectedList) PushBack(e Element) {
	if !p.mu.Valid() {
		return
	}
	p.mu.Lock()
	p.list.PushBack(e)
	p.mu.Unlock()
}

// InsertAfter adds e after prev.
func (p *ProtectedList) InsertAfter(prev, e Element) {
	if !p.mu.Valid() {
		return
	}
	p.mu.Lock()
	p.list.InsertAfter(prev, e)
	p.mu.Unlock()
}

// PopFront removes the head.
func (p *ProtectedList) PopFront() Element {
	if !p.mu.Valid() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list.PopFront()
}

// RemoveNext removes the element after prev.
func (p *ProtectedList) RemoveNext(prev Element) Element {
	if !p.mu.Valid() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list.RemoveNext(prev)
}

// Remove unlinks e.
func (p *ProtectedList) Remove(e Element) Element {
	if !p.mu.Valid() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list.Remove(e)
}

// PushBackList drains src onto the tail of p. Only p's semaphore is taken.
func (p *ProtectedList) PushBackList(src *SingleList) {
	if !p.mu.Valid() {
		return
	}
	p.mu.Lock()
	p.list.PushBackList(src)
	p.mu.Unlock()
}

// Find reports whether e is on the list.
func (p *ProtectedList) Find(e Element) bool {
	if !p.mu.Valid() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list.Find(e)
}
