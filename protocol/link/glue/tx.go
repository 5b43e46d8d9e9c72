package glue

import (
	"github.com/qxcheng/macglue/pkg/buffer"
	tcpip "github.com/qxcheng/macglue/protocol"
	"github.com/qxcheng/macglue/protocol/header"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// Transmit submits the buffer chain headed by pkt on interface
// pkt.Interface. The chain must already carry its Ethernet header.
//
// Validation failures (nil packet, uninitialized glue, bad interface, link
// down) leave the buffer with the caller. Any later failure releases it:
// descriptors taken for it are returned, the Ethernet header is stripped
// and the chain goes back to its pool. On success the buffer is released
// when the driver acknowledges the transmission.
func (g *Glue) Transmit(pkt *buffer.Packet) *tcpip.Error {
	if pkt == nil {
		return tcpip.ErrBadParameter
	}
	if g == nil || g.closed.Load() {
		return tcpip.ErrUninitialized
	}
	ix := pkt.Interface
	if ix < 0 || ix >= len(g.ifs) {
		g.stats.TX.InterfaceErrors.Increment()
		return tcpip.ErrBadInterfaceIndex
	}
	d := g.ifs[ix]
	drv, h, done := d.snapshot()
	if drv == nil {
		return tcpip.ErrNoSuchInterface
	}
	if !done || !drv.LinkCheck(h) {
		return tcpip.ErrInterfaceNotReady
	}

	taken, err := g.buildTx(d, pkt)
	if err == nil {
		switch res := drv.PacketTx(h, taken[0]); res {
		case mac.ResOK, mac.ResPending:
			g.stats.TX.Packets.Increment()
			return nil
		default:
			g.log.WithField("mac", ix).Debugf("driver rejected packet: %s", res)
			err = tcpip.ErrTxRejected
		}
	}

	for _, dp := range taken {
		mac.ClearGap(dp.Seg)
		g.txPool.release(dp)
	}
	g.releaseTransport(pkt)
	g.stats.TX.Rejected.Increment()
	return err
}

// buildTx wires one TX descriptor to every element of the chain. It returns
// the descriptors taken so far even on failure.
func (g *Glue) buildTx(d *macDcpt, pkt *buffer.Packet) ([]*mac.Packet, *tcpip.Error) {
	taken := make([]*mac.Packet, 0, pkt.Chain())
	var prev *mac.Segment

	for b := pkt; b != nil; b = b.NextPacket() {
		bufOff := b.PrependOffset() &^ 3
		if !mac.GapFits(bufOff, len(b.Storage())) {
			g.stats.GapErrors.Increment()
			return taken, tcpip.ErrGapError
		}

		dp := g.txPool.allocate()
		if dp == nil {
			g.stats.TX.AllocPktErrors.Increment()
			g.warnExhausted("tx descriptor pool exhausted")
			return taken, tcpip.ErrPoolExhausted
		}
		taken = append(taken, dp)

		seg := dp.Seg
		seg.Storage = b.Storage()
		seg.BufferOff = bufOff
		seg.LoadOff = b.PrependOffset()
		seg.Len = b.Len()
		seg.Size = len(seg.Storage) - bufOff
		seg.Flags = mac.SegFlagUserPayload
		if err := mac.PutGap(seg, mac.GapDescriptor{Owner: mac.OwnerTx, Index: dp.Index, Gen: dp.Gen}); err != nil {
			g.stats.GapErrors.Increment()
			return taken, tcpip.ErrGapError
		}
		if prev != nil {
			prev.Next = seg
		}
		prev = seg
		dp.Flags = mac.PktFlagTx
	}

	head := taken[0]
	head.Transport = pkt
	head.AckFunc = g.txAck
	head.AckParam = d
	head.PktLen = pkt.TotalLength()
	if len(taken) > 1 {
		head.Flags |= mac.PktFlagSplit
	}
	return taken, nil
}

// ackTxPacket is the driver's TX acknowledgment callback.
func (g *Glue) ackTxPacket(pkt *mac.Packet, res mac.AckResult, id mac.ModuleID) {
	if pkt == nil {
		g.integrity("tx ack", "nil packet from %s", id)
		return
	}
	d, ok := pkt.AckParam.(*macDcpt)
	if !ok || d.ix < 0 || d.ix >= len(g.ifs) || g.ifs[d.ix] != d {
		g.integrity("tx ack", "packet %d has no interface", pkt.Index)
		return
	}
	if res != mac.AckTxOK {
		g.stats.TX.BadAcks.Increment()
	}
	if pkt.AckFunc == nil {
		g.stats.TX.Orphans.Increment()
		g.integrity("tx ack", "packet %d has no ack function", pkt.Index)
		return
	}
	pkt.AckRes = res
	pkt.Ack()
	g.stats.TX.AckPackets.Increment()
}

// txAck returns every descriptor of a transmitted packet to the TX pool and
// releases the stack buffer.
func (g *Glue) txAck(pkt *mac.Packet, _ any) bool {
	buf := pkt.Transport
	for i, seg := 0, pkt.Seg; seg != nil; i++ {
		next := seg.Next
		owner := g.segmentOwner(g.txPool, seg)
		if owner == nil {
			g.integrity("tx ack", "segment %d has no owner", i)
			break
		}
		if i == 0 && owner != pkt {
			g.integrity("tx ack", "segment 0 owned by descriptor %d, not %d", owner.Index, pkt.Index)
			break
		}
		mac.ClearGap(seg)
		if !g.txPool.release(owner) {
			g.integrity("tx ack", "descriptor %d released twice", owner.Index)
		}
		seg = next
	}
	if buf != nil {
		g.releaseTransport(buf)
	}
	return true
}

// releaseTransport strips the Ethernet header and returns the chain to its
// pool.
func (g *Glue) releaseTransport(buf *buffer.Packet) {
	if buf.Len() >= header.EthernetMinimumSize {
		buf.TrimHeader(header.EthernetMinimumSize)
	}
	if err := buffer.Release(buf); err != nil {
		g.stats.TransportReleaseErrors.Increment()
		return
	}
	g.stats.TX.TransportReleases.Increment()
}
