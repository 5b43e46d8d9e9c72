package glue

import (
	"sync/atomic"

	"github.com/qxcheng/macglue/pkg/ilist"
	"github.com/qxcheng/macglue/pkg/tmutex"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// descPool is a fixed arena of packet descriptors, each with one segment,
// threaded onto a free list. Allocation never blocks and never grows.
type descPool struct {
	owner  mac.Owner
	segCap int

	pkts  []mac.Packet
	segs  []mac.Segment
	inUse []bool

	mu   tmutex.Mutex
	free ilist.SingleList

	allocs   atomic.Uint64
	releases atomic.Uint64
}

func newDescPool(owner mac.Owner, n, segCap int) *descPool {
	p := &descPool{
		owner:  owner,
		segCap: segCap,
		pkts:   make([]mac.Packet, n),
		segs:   make([]mac.Segment, n),
		inUse:  make([]bool, n),
	}
	p.mu.Init()
	for i := range p.pkts {
		pkt := &p.pkts[i]
		pkt.Owner = owner
		pkt.Index = uint16(i)
		pkt.Seg = &p.segs[i]
		p.free.PushBack(pkt)
	}
	return p
}

// allocate pops a free descriptor with its segment reset, or returns nil.
func (p *descPool) allocate() *mac.Packet {
	p.mu.Lock()
	e := p.free.PopFront()
	if e == nil {
		p.mu.Unlock()
		return nil
	}
	pkt := e.(*mac.Packet)
	p.inUse[pkt.Index] = true
	p.mu.Unlock()

	pkt.Seg = &p.segs[pkt.Index]
	pkt.Seg.Reset()
	pkt.Flags = 0
	pkt.Transport = nil
	pkt.AckFunc = nil
	pkt.AckParam = nil
	pkt.AckRes = mac.AckNone
	pkt.PktLen = 0
	p.allocs.Add(1)
	return pkt
}

// release returns pkt to the free list. It reports false when pkt does not
// belong to this pool or is already free.
func (p *descPool) release(pkt *mac.Packet) bool {
	if !p.owns(pkt) {
		return false
	}
	p.mu.Lock()
	if !p.inUse[pkt.Index] {
		p.mu.Unlock()
		return false
	}
	p.inUse[pkt.Index] = false
	// 代数加一，旧的间隙反向指针随之失效
	pkt.Gen++
	pkt.Transport = nil
	pkt.AckFunc = nil
	pkt.AckParam = nil
	p.free.PushBack(pkt)
	p.mu.Unlock()
	p.releases.Add(1)
	return true
}

func (p *descPool) owns(pkt *mac.Packet) bool {
	return pkt != nil && pkt.Owner == p.owner && int(pkt.Index) < len(p.pkts) && &p.pkts[pkt.Index] == pkt
}

// lookup resolves a gap back-pointer to a live descriptor.
func (p *descPool) lookup(d mac.GapDescriptor) *mac.Packet {
	if d.Owner != p.owner || int(d.Index) >= len(p.pkts) {
		return nil
	}
	pkt := &p.pkts[d.Index]
	p.mu.Lock()
	live := p.inUse[d.Index] && pkt.Gen == d.Gen
	p.mu.Unlock()
	if !live {
		return nil
	}
	return pkt
}

func (p *descPool) available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free.Len()
}

func (p *descPool) capacity() int {
	return len(p.pkts)
}
