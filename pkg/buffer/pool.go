package buffer

import (
	"errors"
	"sync/atomic"

	"github.com/qxcheng/macglue/pkg/ilist"
	"github.com/qxcheng/macglue/pkg/tmutex"
)

var (
	// ErrPoolEmpty is returned by Allocate when no packet is free.
	ErrPoolEmpty = errors.New("buffer: pool empty")
	// ErrInvalidPacket is returned when releasing nil or a foreign packet.
	ErrInvalidPacket = errors.New("buffer: invalid packet")
	// ErrDoubleRelease is returned when releasing a packet that is free.
	ErrDoubleRelease = errors.New("buffer: packet already released")
)

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Total           int
	Free            int
	Allocs          uint64
	Releases        uint64
	EmptyRequests   uint64
	InvalidReleases uint64
}

// Pool is a fixed set of equally sized packets. Allocate never blocks.
type Pool struct {
	name    string
	size    int
	packets []Packet

	mu   tmutex.Mutex
	free ilist.SingleList

	allocs   atomic.Uint64
	releases atomic.Uint64
	empty    atomic.Uint64
	invalid  atomic.Uint64
}

// NewPool creates a pool of count packets with size bytes of storage each.
func NewPool(name string, count, size int) *Pool {
	p := &Pool{
		name:    name,
		size:    size,
		packets: make([]Packet, count),
	}
	p.mu.Init()
	store := make([]byte, count*size)
	for i := range p.packets {
		pkt := &p.packets[i]
		pkt.data = store[i*size : (i+1)*size : (i+1)*size]
		pkt.pool = p
		pkt.index = i
		pkt.free = true
		p.free.PushBack(pkt)
	}
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// PayloadSize returns the storage size of every packet.
func (p *Pool) PayloadSize() int {
	return p.size
}

// Capacity returns the number of packets in the pool.
func (p *Pool) Capacity() int {
	return len(p.packets)
}

// Available returns the number of free packets.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free.Len()
}

// Allocate takes a packet from the pool with an empty window at reserve.
func (p *Pool) Allocate(reserve int) (*Packet, error) {
	if reserve < 0 || reserve > p.size {
		return nil, ErrInvalidPacket
	}
	p.mu.Lock()
	e := p.free.PopFront()
	if e != nil {
		e.(*Packet).free = false
	}
	p.mu.Unlock()

	if e == nil {
		p.empty.Add(1)
		return nil, ErrPoolEmpty
	}
	pkt := e.(*Packet)
	pkt.Reset(reserve)
	pkt.Interface = 0
	p.allocs.Add(1)
	return pkt, nil
}

func (p *Pool) put(pkt *Packet) error {
	if pkt.pool != p || pkt.index >= len(p.packets) || &p.packets[pkt.index] != pkt {
		p.invalid.Add(1)
		return ErrInvalidPacket
	}
	p.mu.Lock()
	if pkt.free {
		p.mu.Unlock()
		p.invalid.Add(1)
		return ErrDoubleRelease
	}
	pkt.free = true
	pkt.next = nil
	p.free.PushBack(pkt)
	p.mu.Unlock()
	p.releases.Add(1)
	return nil
}

// Release returns every element of the chain headed by pkt to its pool. It
// reports the first failure but keeps releasing the rest of the chain.
func Release(pkt *Packet) error {
	if pkt == nil {
		return ErrInvalidPacket
	}
	var first error
	for pkt != nil {
		next := pkt.next
		var err error
		if pkt.pool == nil {
			err = ErrInvalidPacket
		} else {
			err = pkt.pool.put(pkt)
		}
		if err != nil && first == nil {
			first = err
		}
		pkt = next
	}
	return first
}

// Release returns the chain headed by pkt. Elements may belong to other
// pools.
func (p *Pool) Release(pkt *Packet) error {
	return Release(pkt)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Total:           len(p.packets),
		Free:            p.Available(),
		Allocs:          p.allocs.Load(),
		Releases:        p.releases.Load(),
		EmptyRequests:   p.empty.Load(),
		InvalidReleases: p.invalid.Load(),
	}
}
