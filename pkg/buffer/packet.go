package buffer

import "github.com/qxcheng/macglue/pkg/ilist"

// Packet is an upper-stack packet buffer. Its data window is
// [prepend, append) within a fixed storage area; the room before the window
// is used for headers. Packets may be chained; the first packet of a chain
// carries the total length.
type Packet struct {
	ilist.Entry

	data    []byte
	prepend int
	append  int
	length  int
	next    *Packet

	// Interface is the index of the interface the packet came in on or is
	// going out of.
	Interface int

	pool  *Pool
	index int
	free  bool
}

// Storage returns the full backing storage of the packet.
func (p *Packet) Storage() []byte {
	return p.data
}

// PrependOffset returns the offset of the first valid byte.
func (p *Packet) PrependOffset() int {
	return p.prepend
}

// AppendOffset returns the offset one past the last valid byte.
func (p *Packet) AppendOffset() int {
	return p.append
}

// Data returns the valid bytes of this element of the chain.
func (p *Packet) Data() View {
	return View(p.data[p.prepend:p.append])
}

// Len returns the number of valid bytes in this element.
func (p *Packet) Len() int {
	return p.append - p.prepend
}

// TotalLength returns the length recorded for the whole chain.
func (p *Packet) TotalLength() int {
	return p.length
}

// SetTotalLength records the length of the whole chain.
func (p *Packet) SetTotalLength(n int) {
	p.length = n
}

// Reset sets an empty window starting at off.
func (p *Packet) Reset(off int) bool {
	if off < 0 || off > len(p.data) {
		return false
	}
	p.prepend, p.append, p.length = off, off, 0
	p.next = nil
	return true
}

// SetWindow sets the valid bytes to [off, off+n). It does not touch the
// total length.
func (p *Packet) SetWindow(off, n int) bool {
	if off < 0 || n < 0 || off+n > len(p.data) {
		return false
	}
	p.prepend, p.append = off, off+n
	return true
}

// PushHeader grows the window by n bytes at the front and returns the new
// header bytes, or nil if there is not enough room.
func (p *Packet) PushHeader(n int) []byte {
	if n > p.prepend {
		return nil
	}
	p.prepend -= n
	p.length += n
	return p.data[p.prepend : p.prepend+n : p.prepend+n]
}

// TrimHeader shrinks the window by n bytes at the front.
func (p *Packet) TrimHeader(n int) bool {
	if n > p.Len() {
		return false
	}
	p.prepend += n
	p.length -= n
	return true
}

// Append copies b after the window and returns how many bytes fit.
func (p *Packet) Append(b []byte) int {
	n := copy(p.data[p.append:], b)
	p.append += n
	p.length += n
	return n
}

// NextPacket returns the next element of the chain.
func (p *Packet) NextPacket() *Packet {
	return p.next
}

// SetNextPacket links n after p in the chain.
func (p *Packet) SetNextPacket(n *Packet) {
	p.next = n
}

// Pool returns the pool the packet was allocated from.
func (p *Packet) Pool() *Pool {
	return p.pool
}

// Chain returns the number of elements in the chain starting at p.
func (p *Packet) Chain() int {
	n := 0
	for it := p; it != nil; it = it.next {
		n++
	}
	return n
}

// Views returns a VectorisedView over the data of the whole chain.
func (p *Packet) Views() VectorisedView {
	var views []View
	size := 0
	for it := p; it != nil; it = it.next {
		if it.Len() == 0 {
			continue
		}
		views = append(views, it.Data())
		size += it.Len()
	}
	return NewVectorisedView(size, views)
}
