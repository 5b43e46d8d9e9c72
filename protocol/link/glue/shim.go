package glue

import (
	"github.com/qxcheng/macglue/pkg/bytepool"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// Malloc, Calloc and Free adapt a byte pool to the driver's allocation
// callbacks.

// Malloc returns n bytes from heap, or nil.
func Malloc(heap *bytepool.Pool, n int) []byte {
	return heap.Alloc(n)
}

// Calloc returns n*size zeroed bytes from heap, or nil.
func Calloc(heap *bytepool.Pool, n, size int) []byte {
	return heap.Calloc(n, size)
}

// Free returns b to heap.
func Free(heap *bytepool.Pool, b []byte) error {
	return heap.Free(b)
}

func (g *Glue) malloc(n int) []byte {
	return Malloc(g.heap, n)
}

func (g *Glue) calloc(n, size int) []byte {
	return Calloc(g.heap, n, size)
}

func (g *Glue) free(b []byte) {
	if err := Free(g.heap, b); err != nil {
		g.log.WithError(err).Warnf("driver freed foreign block of %d bytes", cap(b))
	}
}

// Heap returns the byte pool backing driver allocations.
func (g *Glue) Heap() *bytepool.Pool {
	return g.heap
}

// synch serves driver synchronization requests. Only critical sections are
// supported.
func (g *Glue) synch(req mac.SynchRequest) bool {
	switch req {
	case mac.SynchRequestCritEnter:
		g.crit.Lock()
		return true
	case mac.SynchRequestCritLeave:
		if g.crit.TryLock() {
			g.crit.Unlock()
			g.integrity("synch", "critical section left without enter")
			return false
		}
		g.crit.Unlock()
		return true
	case mac.SynchRequestObjCreate, mac.SynchRequestObjDelete,
		mac.SynchRequestObjLock, mac.SynchRequestObjUnlock:
		return false
	}
	g.integrity("synch", "unknown request %d", req)
	return false
}

// eventCallback runs on the driver's notification goroutine. It only
// records the event and wakes the task goroutine.
func (g *Glue) eventCallback(ev mac.Event, param any) {
	d, ok := param.(*macDcpt)
	if !ok {
		g.integrity("event", "bad event parameter %T", param)
		return
	}
	d.totEvents.Add(1)
	g.stats.Events.Increment()
	d.activeEvents.Or(uint32(ev))
	d.eventCount.Add(1)

	if ev&mac.DeferredEvents != 0 {
		g.waker.Assert()
	}
}
