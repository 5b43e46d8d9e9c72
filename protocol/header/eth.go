package header

import (
	"encoding/binary"

	tcpip "github.com/qxcheng/macglue/protocol"
)

// 以太网头内各字段的起始位置
const (
	ethDstOff  = 0
	ethSrcOff  = 6
	ethTypeOff = 12
)

const (
	EthernetMinimumSize = 14 // 以太网头长度
	EthernetAddressSize = 6
)

// Ethertypes dispatched by the stack.
const (
	IPv4ProtocolNumber tcpip.NetworkProtocolNumber = 0x0800
	ARPProtocolNumber  tcpip.NetworkProtocolNumber = 0x0806
	RARPProtocolNumber tcpip.NetworkProtocolNumber = 0x8035
	IPv6ProtocolNumber tcpip.NetworkProtocolNumber = 0x86dd
)

// EthernetBroadcastAddress is ff:ff:ff:ff:ff:ff.
const EthernetBroadcastAddress = tcpip.LinkAddress("\xff\xff\xff\xff\xff\xff")

// EthernetFields 是编码以太网头所需的字段
type EthernetFields struct {
	SrcAddr tcpip.LinkAddress
	DstAddr tcpip.LinkAddress
	Type    tcpip.NetworkProtocolNumber
}

// Ethernet views the first EthernetMinimumSize bytes of a frame.
type Ethernet []byte

// DestinationAddress 目的 MAC
func (b Ethernet) DestinationAddress() tcpip.LinkAddress {
	return tcpip.LinkAddress(b[ethDstOff : ethDstOff+EthernetAddressSize])
}

// SourceAddress 源 MAC
func (b Ethernet) SourceAddress() tcpip.LinkAddress {
	return tcpip.LinkAddress(b[ethSrcOff : ethSrcOff+EthernetAddressSize])
}

// Type 上层协议号
func (b Ethernet) Type() tcpip.NetworkProtocolNumber {
	return tcpip.NetworkProtocolNumber(binary.BigEndian.Uint16(b[ethTypeOff:]))
}

// Encode fills the header from e.
func (b Ethernet) Encode(e *EthernetFields) {
	copy(b[ethDstOff:ethDstOff+EthernetAddressSize], e.DstAddr)
	copy(b[ethSrcOff:ethSrcOff+EthernetAddressSize], e.SrcAddr)
	binary.BigEndian.PutUint16(b[ethTypeOff:], uint16(e.Type))
}
