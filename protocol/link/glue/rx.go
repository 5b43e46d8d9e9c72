package glue

import (
	"github.com/qxcheng/macglue/pkg/buffer"
	"github.com/qxcheng/macglue/protocol/header"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// allocRxPacket is the driver's RX buffer allocator. The returned descriptor
// carries one segment backed by a stack buffer; the segment buffer starts
// after the gap and the payload two bytes later.
func (g *Glue) allocRxPacket(d *macDcpt, pktLen, segLoadLen int, flags mac.PacketFlags) *mac.Packet {
	if pktLen > g.rxPool.segCap {
		g.stats.RX.LenErrors.Increment()
		return nil
	}

	pkt := g.rxPool.allocate()
	if pkt == nil {
		g.stats.RX.AllocPktErrors.Increment()
		g.warnExhausted("rx descriptor pool exhausted")
		return nil
	}

	buf, err := g.buffers.Allocate(0)
	if err != nil {
		g.stats.RX.AllocBufferErrors.Increment()
		g.warnExhausted("rx buffer pool exhausted")
		g.rxPool.release(pkt)
		return nil
	}

	seg := pkt.Seg
	seg.Storage = buf.Storage()
	seg.BufferOff = mac.GapSize
	seg.LoadOff = seg.BufferOff + mac.RxPayloadOffset
	seg.Size = len(seg.Storage) - seg.BufferOff

	if seg.Size-mac.RxPayloadOffset < d.rxMaxFrame {
		g.stats.RX.BufferLenErrors.Increment()
		g.dropRxAlloc(pkt, buf)
		return nil
	}
	if err := mac.PutGap(seg, mac.GapDescriptor{Owner: mac.OwnerRx, Index: pkt.Index, Gen: pkt.Gen}); err != nil {
		g.stats.GapErrors.Increment()
		g.dropRxAlloc(pkt, buf)
		return nil
	}

	buf.Interface = d.ix
	pkt.Transport = buf
	pkt.Flags = flags | mac.PktFlagRx
	g.stats.RX.AllocBuffers.Increment()
	return pkt
}

func (g *Glue) dropRxAlloc(pkt *mac.Packet, buf *buffer.Packet) {
	pkt.Seg.Reset()
	if err := buffer.Release(buf); err != nil {
		g.stats.RX.ReleaseErrors.Increment()
	}
	g.rxPool.release(pkt)
}

// freeRxPacket is the driver's RX buffer free function. It releases the
// stack buffer still attached to pkt, then the descriptor.
func (g *Glue) freeRxPacket(pkt *mac.Packet) {
	if !g.rxPool.owns(pkt) {
		g.integrity("rx free", "packet not from rx pool")
		return
	}
	if buf := pkt.Transport; buf != nil {
		mac.ClearGap(pkt.Seg)
		pkt.Transport = nil
		if err := buffer.Release(buf); err != nil {
			g.stats.RX.ReleaseErrors.Increment()
		}
	}
	if !g.rxPool.release(pkt) {
		g.integrity("rx free", "descriptor %d released twice", pkt.Index)
	}
}

// extractRx drains the driver's receive queue into the pending list.
func (g *Glue) extractRx(d *macDcpt) {
	n := 0
	for pkt := d.driver.PacketRx(d.h); pkt != nil; pkt = d.driver.PacketRx(d.h) {
		d.rxPending.PushBack(pkt)
		n++
	}
	if int64(n) > d.maxRxBurst.Load() {
		d.maxRxBurst.Store(int64(n))
	}
}

// processRx hands every pending packet to the receiver, oldest first.
func (g *Glue) processRx(d *macDcpt) {
	for e := d.rxPending.PopFront(); e != nil; e = d.rxPending.PopFront() {
		g.processRxPacket(d, e.(*mac.Packet))
	}
}

func (g *Glue) processRxPacket(d *macDcpt, pkt *mac.Packet) {
	if pkt.Seg == nil {
		g.stats.RX.DroppedPackets.Increment()
		g.ackRx(pkt)
		return
	}
	if pkt.Seg.Next != nil {
		g.stats.RX.ChainedPackets.Increment()
		if g.opts.DisableChain {
			g.dropRxChain(pkt)
			g.stats.RX.DroppedPackets.Increment()
			g.ackRx(pkt)
			return
		}
	}

	var head, tail *buffer.Packet
	total := 0
	for i, seg := 0, pkt.Seg; seg != nil; i, seg = i+1, seg.Next {
		owner := pkt
		n := seg.Len
		if i == 0 {
			// the first segment length does not count the Ethernet header
			n += header.EthernetMinimumSize
		} else if owner = g.segmentOwner(g.rxPool, seg); owner == nil {
			g.integrity("rx process", "segment %d has no owner", i)
			break
		}

		buf := owner.Transport
		if buf == nil {
			g.integrity("rx process", "segment %d has no buffer", i)
			break
		}
		owner.Transport = nil
		if !buf.SetWindow(seg.LoadOff, n) {
			g.integrity("rx process", "segment %d window [%d,+%d) out of range", i, seg.LoadOff, n)
		}
		buf.SetNextPacket(nil)
		buf.Interface = d.ix
		if head == nil {
			head = buf
		} else {
			tail.SetNextPacket(buf)
		}
		tail = buf
		total += n
	}

	if head != nil {
		head.SetTotalLength(total)
		g.stats.RX.ProcessedPackets.Increment()
		g.deliver(head)
	}
	g.ackRx(pkt)
}

// dropRxChain releases the stack buffers of every segment after the first.
// The first one goes back with the descriptor when the driver frees it.
func (g *Glue) dropRxChain(pkt *mac.Packet) {
	for seg := pkt.Seg.Next; seg != nil; seg = seg.Next {
		owner := g.segmentOwner(g.rxPool, seg)
		if owner == nil || owner.Transport == nil {
			continue
		}
		buf := owner.Transport
		owner.Transport = nil
		if err := buffer.Release(buf); err != nil {
			g.stats.RX.ReleaseErrors.Increment()
		}
	}
}

func (g *Glue) deliver(head *buffer.Packet) {
	if fn := g.recv.Load(); fn != nil {
		(*fn)(head)
		return
	}
	g.stats.RX.DroppedPackets.Increment()
	if err := buffer.Release(head); err != nil {
		g.stats.RX.ReleaseErrors.Increment()
	}
}

// ackRx returns a received packet to the driver.
func (g *Glue) ackRx(pkt *mac.Packet) {
	if pkt.AckFunc == nil {
		g.integrity("rx ack", "packet has no ack function")
		return
	}
	// the descriptor may be back in the pool once Ack returns
	pkt.Flags &^= mac.PktFlagQueued
	pkt.Ack()
}

// segmentOwner recovers the descriptor owning seg from its gap back-pointer.
func (g *Glue) segmentOwner(p *descPool, seg *mac.Segment) *mac.Packet {
	gd, err := mac.GetGap(seg)
	if err != nil {
		g.stats.GapErrors.Increment()
		return nil
	}
	return p.lookup(gd)
}

func (g *Glue) warnExhausted(msg string) {
	if g.limiter.Allow() {
		g.log.Warnf("%s", msg)
	}
}
