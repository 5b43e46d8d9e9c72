package mac

import (
	"github.com/qxcheng/macglue/pkg/buffer"
	"github.com/qxcheng/macglue/pkg/ilist"
)

// PacketFlags describe a packet descriptor.
type PacketFlags uint16

const (
	PktFlagStatic PacketFlags = 1 << iota
	PktFlagTx
	PktFlagSplit
	PktFlagQueued
	PktFlagRx
	PktFlagUnicast
	PktFlagBroadcast
	PktFlagMulticast
)

// SegFlags describe a data segment.
type SegFlags uint16

const (
	SegFlagStatic SegFlags = 1 << iota
	SegFlagRxStick
	SegFlagUserPayload
)

// Owner tags which descriptor pool a packet belongs to.
type Owner uint8

const (
	OwnerNone Owner = iota
	OwnerRx
	OwnerTx
)

func (o Owner) String() string {
	switch o {
	case OwnerRx:
		return "rx"
	case OwnerTx:
		return "tx"
	}
	return "none"
}

// Segment is one contiguous piece of a packet. Storage is the memory the
// segment lives in; offsets index into it. The gap region occupies the bytes
// immediately before BufferOff.
type Segment struct {
	Storage   []byte
	BufferOff int
	LoadOff   int
	Len       int
	Size      int
	Flags     SegFlags
	Next      *Segment
}

// Payload returns the valid data of the segment.
func (s *Segment) Payload() []byte {
	return s.Storage[s.LoadOff : s.LoadOff+s.Len]
}

// Buffer returns the usable area starting at BufferOff.
func (s *Segment) Buffer() []byte {
	return s.Storage[s.BufferOff : s.BufferOff+s.Size]
}

// Reset detaches the segment from any storage.
func (s *Segment) Reset() {
	*s = Segment{}
}

// AckFunc is called by whoever finishes with a packet. It returns true when
// the packet no longer needs to be tracked as queued.
type AckFunc func(pkt *Packet, param any) bool

// Packet is a MAC packet descriptor. Descriptors are owned by the glue pools;
// the identity fields are set once when the pool is built.
type Packet struct {
	ilist.Entry

	Seg   *Segment
	Flags PacketFlags

	// Transport is the upper-stack buffer backing segment 0, or nil.
	Transport *buffer.Packet

	AckFunc  AckFunc
	AckParam any
	AckRes   AckResult

	// PktLen is the total length reported by the driver on receive.
	PktLen int

	Owner Owner
	Index uint16
	Gen   uint32
}

// Segments returns the number of segments attached to pkt.
func (p *Packet) Segments() int {
	n := 0
	for s := p.Seg; s != nil; s = s.Next {
		n++
	}
	return n
}

// Ack invokes the packet acknowledgment function, if any.
func (p *Packet) Ack() bool {
	if p.AckFunc == nil {
		return false
	}
	return p.AckFunc(p, p.AckParam)
}
