package mac

import (
	"encoding/binary"
	"errors"
)

// DataSegmentGap is the space the MAC driver reserves for itself in front of
// every segment buffer.
const DataSegmentGap = 34

// GapDescriptorSize is the encoded size of a GapDescriptor.
const GapDescriptorSize = 12

// GapSize is the full gap in front of a segment buffer: descriptor plus
// driver area, rounded up to word alignment.
const GapSize = (GapDescriptorSize + DataSegmentGap + 3) &^ 3

// GapOffset is where the gap starts, relative to the segment buffer.
const GapOffset = -GapSize

// RxPayloadOffset places the IP header on a word boundary after the 14 byte
// Ethernet header.
const RxPayloadOffset = 2

const gapMagic uint32 = 0x47415044

var (
	ErrGapBounds = errors.New("mac: gap region outside allocation")
	ErrGapMagic  = errors.New("mac: gap descriptor not present")
)

// GapDescriptor is the back-pointer stored in the gap region. It names the
// pool slot that owns the segment.
type GapDescriptor struct {
	Owner Owner
	Index uint16
	Gen   uint32
}

// GapRange returns the gap region bounds for a segment buffer at bufferOff.
func GapRange(bufferOff int) (start, end int) {
	return bufferOff + GapOffset, bufferOff
}

// GapFits reports whether the gap before bufferOff lies within storage of
// length n.
func GapFits(bufferOff, n int) bool {
	start, end := GapRange(bufferOff)
	return start >= 0 && end <= n
}

// PutGap writes d into the gap region of seg.
func PutGap(seg *Segment, d GapDescriptor) error {
	if !GapFits(seg.BufferOff, len(seg.Storage)) {
		return ErrGapBounds
	}
	start, _ := GapRange(seg.BufferOff)
	b := seg.Storage[start : start+GapDescriptorSize]
	binary.LittleEndian.PutUint32(b[0:], gapMagic)
	b[4] = byte(d.Owner)
	b[5] = 0
	binary.LittleEndian.PutUint16(b[6:], d.Index)
	binary.LittleEndian.PutUint32(b[8:], d.Gen)
	return nil
}

// GetGap reads the back-pointer from the gap region of seg.
func GetGap(seg *Segment) (GapDescriptor, error) {
	if !GapFits(seg.BufferOff, len(seg.Storage)) {
		return GapDescriptor{}, ErrGapBounds
	}
	start, _ := GapRange(seg.BufferOff)
	b := seg.Storage[start : start+GapDescriptorSize]
	if binary.LittleEndian.Uint32(b[0:]) != gapMagic {
		return GapDescriptor{}, ErrGapMagic
	}
	return GapDescriptor{
		Owner: Owner(b[4]),
		Index: binary.LittleEndian.Uint16(b[6:]),
		Gen:   binary.LittleEndian.Uint32(b[8:]),
	}, nil
}

// ClearGap wipes the descriptor so stale back-pointers are not followed.
func ClearGap(seg *Segment) {
	if !GapFits(seg.BufferOff, len(seg.Storage)) {
		return
	}
	start, _ := GapRange(seg.BufferOff)
	clear(seg.Storage[start : start+GapDescriptorSize])
}
