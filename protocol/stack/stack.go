// Package stack is the upper side of the glue: one NIC per glue interface,
// Ethernet framing on send and ethertype dispatch on receive.
package stack

import (
	"fmt"

	"github.com/qxcheng/macglue/pkg/buffer"
	"github.com/qxcheng/macglue/pkg/log"
	tcpip "github.com/qxcheng/macglue/protocol"
	"github.com/qxcheng/macglue/protocol/link/glue"
)

// Options configure a Stack.
type Options struct {
	// Names are the NIC names by interface index. Missing names default to
	// "mac<index>".
	Names  []string
	Logger log.Logger
}

// Stack 是胶水层之上的网络栈入口，持有所有网卡
type Stack struct {
	g     *glue.Glue
	log   log.Logger
	nics  []*NIC
	stats tcpip.Stats
}

// New creates a NIC for every glue interface and installs the stack as the
// glue receiver.
func New(g *glue.Glue, opts Options) *Stack {
	l := opts.Logger
	if l == nil {
		l = log.Discard()
	}
	s := &Stack{
		g:     g,
		log:   l.WithField("component", "stack"),
		stats: tcpip.Stats{}.FillIn(),
	}
	for ix := 0; ix < g.Interfaces(); ix++ {
		name := fmt.Sprintf("mac%d", ix)
		if ix < len(opts.Names) && opts.Names[ix] != "" {
			name = opts.Names[ix]
		}
		n := &NIC{stack: s, ix: ix, name: name}
		n.id = RegisterLinkEndpoint(n)
		s.nics = append(s.nics, n)
	}
	g.SetReceiver(s.deliver)
	return s
}

// NIC returns the NIC of interface ix, or nil.
func (s *Stack) NIC(ix int) *NIC {
	if ix < 0 || ix >= len(s.nics) {
		return nil
	}
	return s.nics[ix]
}

// NICs returns every NIC in interface order.
func (s *Stack) NICs() []*NIC {
	return append([]*NIC(nil), s.nics...)
}

// Stats returns the stack counters.
func (s *Stack) Stats() tcpip.Stats {
	return s.stats
}

// Close unregisters the NICs.
func (s *Stack) Close() {
	for _, n := range s.nics {
		UnregisterLinkEndpoint(n.id)
	}
}

// deliver is the glue receiver; it runs on the glue task goroutine.
func (s *Stack) deliver(pkt *buffer.Packet) {
	n := s.NIC(pkt.Interface)
	if n == nil {
		s.log.Warnf("frame for unknown interface %d", pkt.Interface)
		s.stats.MalformedRcvdPackets.Increment()
		s.drop(pkt)
		return
	}
	n.handleFrame(pkt)
}

func (s *Stack) drop(pkt *buffer.Packet) {
	if err := buffer.Release(pkt); err != nil {
		s.log.WithError(err).Warnf("release failed")
		s.stats.TransportReleaseErrors.Increment()
	}
}
