package loopback

import (
	"github.com/qxcheng/macglue/protocol/header"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// PacketTx implements mac.Driver.PacketTx. The frame is copied out of the
// packet, looped back unless NoLoop is set, and the packet is acknowledged
// according to the TxAck mode.
func (e *Endpoint) PacketTx(h mac.Handle, pkt *mac.Packet) mac.Result {
	if pkt == nil || pkt.Seg == nil {
		return mac.ResPacketErr
	}
	if e.opts.TxResult != mac.ResOK {
		return e.opts.TxResult
	}
	if e.linkDown.Load() {
		return mac.ResOpErr
	}

	frame := frameOf(pkt)
	e.mu.Lock()
	ctrl := e.ctrl
	e.lastFrame = frame
	e.mu.Unlock()
	if ctrl == nil {
		return mac.ResInstanceErr
	}
	e.transmitted.Add(1)

	pkt.Flags |= mac.PktFlagQueued
	switch e.opts.TxAck {
	case AckImmediate:
		e.acked.Add(1)
		ctrl.PktAckF(pkt, e.opts.TxAckResult, e.opts.ID)
	default:
		e.crit(ctrl, func() {
			e.txq = append(e.txq, pkt)
		})
	}
	e.signal(mac.EventTxDone)

	if !e.opts.NoLoop {
		e.Inject(frame)
	}
	return mac.ResOK
}

// AckPending acknowledges every transmitted packet still held.
func (e *Endpoint) AckPending() int {
	e.mu.Lock()
	ctrl := e.ctrl
	txq := e.txq
	e.txq = nil
	e.mu.Unlock()

	for _, pkt := range txq {
		e.acked.Add(1)
		ctrl.PktAckF(pkt, e.opts.TxAckResult, e.opts.ID)
	}
	return len(txq)
}

// crit runs fn inside the glue critical section when the glue offers one,
// and always under the endpoint lock.
func (e *Endpoint) crit(ctrl *mac.ModuleCtrl, fn func()) {
	if ctrl.SynchF != nil && ctrl.SynchF(mac.SynchRequestCritEnter) {
		defer ctrl.SynchF(mac.SynchRequestCritLeave)
	}
	e.mu.Lock()
	fn()
	e.mu.Unlock()
}

// Inject receives frame as if it came off the wire. The frame must include
// its Ethernet header. It reports false when the frame was dropped.
func (e *Endpoint) Inject(frame []byte) bool {
	e.mu.Lock()
	ctrl := e.ctrl
	opened := e.opened
	e.mu.Unlock()
	if ctrl == nil || !opened || len(frame) < header.EthernetMinimumSize {
		e.dropped.Add(1)
		return false
	}

	chunk := len(frame)
	if e.opts.RxSegmentSize > 0 && e.opts.RxSegmentSize < chunk {
		chunk = e.opts.RxSegmentSize
	}
	if chunk < header.EthernetMinimumSize {
		chunk = header.EthernetMinimumSize
	}

	var head *mac.Packet
	var parts []*mac.Packet
	var tail *mac.Segment
	for off := 0; off < len(frame); off += chunk {
		end := min(off+chunk, len(frame))
		pkt := ctrl.PktAllocF(end-off, end-off, mac.PktFlagRx)
		if pkt == nil || pkt.Seg.Size-mac.RxPayloadOffset < end-off {
			if pkt != nil {
				ctrl.PktFreeF(pkt)
			}
			e.freeAll(ctrl, head, parts)
			e.dropped.Add(1)
			return false
		}
		seg := pkt.Seg
		copy(seg.Storage[seg.LoadOff:], frame[off:end])
		seg.Len = end - off
		if head == nil {
			// first segment length excludes the Ethernet header
			seg.Len -= header.EthernetMinimumSize
			head = pkt
		} else {
			tail.Next = seg
			parts = append(parts, pkt)
		}
		tail = seg
	}

	head.PktLen = len(frame)
	head.AckFunc = e.rxAck
	head.AckParam = e
	head.Flags |= mac.PktFlagQueued

	e.mu.Lock()
	if len(parts) > 0 {
		head.Flags |= mac.PktFlagSplit
		e.parts[head] = parts
	}
	e.rxq = append(e.rxq, head)
	e.mu.Unlock()
	e.received.Add(1)

	e.signal(mac.EventRxDone | mac.EventRxPktPend)
	return true
}

func (e *Endpoint) freeAll(ctrl *mac.ModuleCtrl, head *mac.Packet, parts []*mac.Packet) {
	for _, p := range parts {
		p.Seg.Next = nil
		ctrl.PktFreeF(p)
	}
	if head != nil {
		head.Seg.Next = nil
		ctrl.PktFreeF(head)
	}
}

// PacketRx implements mac.Driver.PacketRx.
func (e *Endpoint) PacketRx(h mac.Handle) *mac.Packet {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.rxq) == 0 {
		return nil
	}
	pkt := e.rxq[0]
	e.rxq[0] = nil
	e.rxq = e.rxq[1:]
	return pkt
}

// rxAck takes a received packet back from the glue and returns all of its
// descriptors.
func (e *Endpoint) rxAck(pkt *mac.Packet, _ any) bool {
	e.freeRx(pkt)
	return true
}

func (e *Endpoint) freeRx(pkt *mac.Packet) {
	e.mu.Lock()
	ctrl := e.ctrl
	parts := e.parts[pkt]
	delete(e.parts, pkt)
	e.mu.Unlock()
	e.freeAll(ctrl, pkt, parts)
}
