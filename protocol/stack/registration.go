package stack

import (
	"sync"

	"github.com/qxcheng/macglue/pkg/buffer"
	tcpip "github.com/qxcheng/macglue/protocol"
)

// 网络层 //////////////////////////////////////////////////////////////////////

// NetworkDispatcher 将包发给合适的网络层端点。pkt 的链路层头已去掉，
// 调用之后 pkt 归 dispatcher 所有，用完须 buffer.Release。
type NetworkDispatcher interface {
	DeliverNetworkPacket(linkEP LinkEndpoint, dstLinkAddr, srcLinkAddr tcpip.LinkAddress, protocol tcpip.NetworkProtocolNumber, pkt *buffer.Packet)
}

// DispatcherFunc adapts a function to NetworkDispatcher.
type DispatcherFunc func(linkEP LinkEndpoint, dst, src tcpip.LinkAddress, protocol tcpip.NetworkProtocolNumber, pkt *buffer.Packet)

// DeliverNetworkPacket implements NetworkDispatcher.
func (f DispatcherFunc) DeliverNetworkPacket(linkEP LinkEndpoint, dst, src tcpip.LinkAddress, protocol tcpip.NetworkProtocolNumber, pkt *buffer.Packet) {
	f(linkEP, dst, src, protocol, pkt)
}

// 链路层 //////////////////////////////////////////////////////////////////////

type LinkEndpointCapabilities uint

const (
	CapabilityChecksumOffload LinkEndpointCapabilities = 1 << iota
	CapabilityResolutionRequired
	CapabilitySaveRestore
	CapabilityDisconnectOk
	CapabilityLoopback
)

// LinkEndpoint 是网络层用来发包的链路层端点。
type LinkEndpoint interface {
	// MTU 是此端点的最大传输单位，不含链路层头。
	MTU() uint32

	// Capabilities 返回链路层端点支持的功能集。
	Capabilities() LinkEndpointCapabilities

	// MaxHeaderLength 返回上层构造包时须在前面预留的空间。
	MaxHeaderLength() uint16

	// LinkAddress 本地链路层地址
	LinkAddress() tcpip.LinkAddress

	// WritePacket 在 pkt 前加上链路层头并发出。无论成功与否，pkt
	// 都不再归调用者所有。
	WritePacket(dst tcpip.LinkAddress, protocol tcpip.NetworkProtocolNumber, pkt *buffer.Packet) *tcpip.Error

	// Attach 将链路层端点附加到网络层调度器。
	Attach(dispatcher NetworkDispatcher) *tcpip.Error

	// IsAttached 是否已经添加了网络层调度器
	IsAttached() bool
}

// 全局链路层端点表，ID 从 1 开始分配
var linkRegistry = struct {
	sync.RWMutex
	next tcpip.LinkEndpointID
	eps  map[tcpip.LinkEndpointID]LinkEndpoint
}{next: 1, eps: map[tcpip.LinkEndpointID]LinkEndpoint{}}

// RegisterLinkEndpoint 登记 linkEP 并返回分配给它的 ID
func RegisterLinkEndpoint(linkEP LinkEndpoint) tcpip.LinkEndpointID {
	linkRegistry.Lock()
	id := linkRegistry.next
	linkRegistry.next++
	linkRegistry.eps[id] = linkEP
	linkRegistry.Unlock()
	return id
}

// FindLinkEndpoint returns the endpoint registered under id, or nil.
func FindLinkEndpoint(id tcpip.LinkEndpointID) LinkEndpoint {
	linkRegistry.RLock()
	defer linkRegistry.RUnlock()
	return linkRegistry.eps[id]
}

// UnregisterLinkEndpoint forgets id. Unknown IDs are ignored.
func UnregisterLinkEndpoint(id tcpip.LinkEndpointID) {
	linkRegistry.Lock()
	delete(linkRegistry.eps, id)
	linkRegistry.Unlock()
}
