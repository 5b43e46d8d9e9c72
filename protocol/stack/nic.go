package stack

import (
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/qxcheng/macglue/pkg/buffer"
	tcpip "github.com/qxcheng/macglue/protocol"
	"github.com/qxcheng/macglue/protocol/header"
	"github.com/qxcheng/macglue/protocol/link/glue"
)

// NIC 代表胶水层上的一个网卡，实现 LinkEndpoint
type NIC struct {
	stack *Stack
	id    tcpip.LinkEndpointID // 注册后得到的唯一标识号
	ix    int                  // 胶水层的接口下标
	name  string

	mu         sync.RWMutex
	dispatcher NetworkDispatcher
}

var _ LinkEndpoint = (*NIC)(nil)

// ID returns the registry id of the NIC.
func (n *NIC) ID() tcpip.LinkEndpointID {
	return n.id
}

// Index returns the glue interface index.
func (n *NIC) Index() int {
	return n.ix
}

// Name returns the NIC name.
func (n *NIC) Name() string {
	return n.name
}

// MTU implements LinkEndpoint.MTU. It is zero until the interface is up.
func (n *NIC) MTU() uint32 {
	return uint32(n.stack.g.MTU(n.ix))
}

// Capabilities implements LinkEndpoint.Capabilities.
func (n *NIC) Capabilities() LinkEndpointCapabilities {
	var caps LinkEndpointCapabilities
	if n.stack.g.Capabilities(n.ix)&glue.CapChecksumOffload == glue.CapChecksumOffload {
		caps |= CapabilityChecksumOffload
	}
	return caps
}

// MaxHeaderLength implements LinkEndpoint.MaxHeaderLength.
func (n *NIC) MaxHeaderLength() uint16 {
	return glue.TxHeaderRoom
}

// LinkAddress implements LinkEndpoint.LinkAddress.
func (n *NIC) LinkAddress() tcpip.LinkAddress {
	return n.stack.g.MACAddress(n.ix)
}

// Attach implements LinkEndpoint.Attach.
func (n *NIC) Attach(dispatcher NetworkDispatcher) *tcpip.Error {
	if dispatcher == nil {
		return tcpip.ErrBadParameter
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dispatcher != nil {
		return tcpip.ErrDuplicateDispatcher
	}
	n.dispatcher = dispatcher
	return nil
}

// IsAttached implements LinkEndpoint.IsAttached.
func (n *NIC) IsAttached() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dispatcher != nil
}

// WritePacket implements LinkEndpoint.WritePacket.
func (n *NIC) WritePacket(dst tcpip.LinkAddress, protocol tcpip.NetworkProtocolNumber, pkt *buffer.Packet) *tcpip.Error {
	if pkt == nil {
		return tcpip.ErrBadParameter
	}
	g := n.stack.g
	mtu := g.MTU(n.ix)
	if mtu == 0 {
		n.stack.drop(pkt)
		return tcpip.ErrInterfaceNotReady
	}
	if chainLength(pkt) > mtu {
		n.stack.drop(pkt)
		return tcpip.ErrMessageTooLong
	}

	hdr := pkt.PushHeader(header.EthernetMinimumSize)
	if hdr == nil {
		n.stack.drop(pkt)
		return tcpip.ErrNoBufferSpace
	}
	header.Ethernet(hdr).Encode(&header.EthernetFields{
		SrcAddr: g.MACAddress(n.ix),
		DstAddr: dst,
		Type:    protocol,
	})
	pkt.Interface = n.ix

	err := g.Transmit(pkt)
	switch err {
	case nil:
		n.stack.stats.TX.Packets.Increment()
		return nil
	case tcpip.ErrBadParameter, tcpip.ErrUninitialized, tcpip.ErrBadInterfaceIndex,
		tcpip.ErrNoSuchInterface, tcpip.ErrInterfaceNotReady:
		// 胶水层没有接手，由这里释放
		pkt.TrimHeader(header.EthernetMinimumSize)
		n.stack.drop(pkt)
	}
	n.stack.stats.TX.Rejected.Increment()
	return err
}

// handleFrame decodes the Ethernet header of a received chain and hands the
// rest to the dispatcher.
func (n *NIC) handleFrame(pkt *buffer.Packet) {
	var eth layers.Ethernet
	if pkt.Len() < header.EthernetMinimumSize || eth.DecodeFromBytes(pkt.Data(), gopacket.NilDecodeFeedback) != nil {
		n.stack.stats.MalformedRcvdPackets.Increment()
		n.stack.drop(pkt)
		return
	}

	protocol := tcpip.NetworkProtocolNumber(eth.EthernetType)
	switch protocol {
	case header.IPv4ProtocolNumber, header.IPv6ProtocolNumber,
		header.ARPProtocolNumber, header.RARPProtocolNumber:
	default:
		n.stack.stats.UnknownProtocolRcvdPackets.Increment()
		n.stack.drop(pkt)
		return
	}

	n.mu.RLock()
	d := n.dispatcher
	n.mu.RUnlock()
	if d == nil {
		n.stack.stats.RX.DroppedPackets.Increment()
		n.stack.drop(pkt)
		return
	}

	pkt.TrimHeader(header.EthernetMinimumSize)
	n.stack.stats.RX.ProcessedPackets.Increment()
	d.DeliverNetworkPacket(n, tcpip.LinkAddress(eth.DstMAC), tcpip.LinkAddress(eth.SrcMAC), protocol, pkt)
}

// chainLength is the recorded total length, or the sum of the elements when
// none was recorded.
func chainLength(pkt *buffer.Packet) int {
	if n := pkt.TotalLength(); n > 0 {
		return n
	}
	return pkt.Views().Size()
}
