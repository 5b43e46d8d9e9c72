// Package tcpip holds the types shared by the glue layer and the stack above
// it: error values, link addresses and statistics counters.
package tcpip

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
)

// Error 自定义错误相关 ///////////////

// Error represents an error in the glue layer or the stack above it. Errors
// are compared by identity against the values below.
type Error struct {
	msg         string
	ignoreStats bool
}

func (e *Error) String() string {
	return e.msg
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.msg
}

// IgnoreStats reports whether the error should not be counted as a failure.
func (e *Error) IgnoreStats() bool {
	return e.ignoreStats
}

// Transmit results.
var (
	ErrUninitialized       = &Error{msg: "glue not initialized"}
	ErrBadInterfaceIndex   = &Error{msg: "interface index out of range"}
	ErrNoSuchInterface     = &Error{msg: "no such interface"}
	ErrInterfaceNotReady   = &Error{msg: "interface not ready", ignoreStats: true}
	ErrPoolExhausted       = &Error{msg: "packet pool exhausted"}
	ErrTxRejected          = &Error{msg: "transmit rejected by driver"}
	ErrGapError            = &Error{msg: "gap region outside packet buffer"}
	ErrBadParameter        = &Error{msg: "bad parameter"}
	ErrMessageTooLong      = &Error{msg: "message too long"}
	ErrNoBufferSpace       = &Error{msg: "no buffer space available"}
	ErrUnknownProtocol     = &Error{msg: "unknown protocol"}
	ErrBadLinkEndpoint     = &Error{msg: "bad link layer endpoint"}
	ErrDuplicateDispatcher = &Error{msg: "dispatcher already attached", ignoreStats: true}
)

// Initialization results.
var (
	ErrNoInitData        = &Error{msg: "no initialization data"}
	ErrTooManyInterfaces = &Error{msg: "interface count out of range"}
	ErrBadInitParam      = &Error{msg: "bad initialization parameter"}
	ErrBadMACAddress     = &Error{msg: "bad MAC address"}
	ErrMACInitFail       = &Error{msg: "MAC initialize failed"}
	ErrMACOpenFail       = &Error{msg: "MAC open failed"}
	ErrMACEventFail      = &Error{msg: "MAC event mask failed"}
	ErrMACStatusFail     = &Error{msg: "MAC reported failure status"}
)

// 链路层 //////////////////////////////////////////////////////////////

// LinkAddress is a 6 byte MAC address held as a string.
type LinkAddress string

// LinkAddressSize is the length of an Ethernet address.
const LinkAddressSize = 6

// String formats a as colon separated hex.
func (a LinkAddress) String() string {
	switch len(a) {
	case LinkAddressSize:
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
	default:
		return fmt.Sprintf("%x", []byte(a))
	}
}

// IsZero reports whether a is all zero. A zero address asks the driver to
// use its factory address.
func (a LinkAddress) IsZero() bool {
	return strings.Trim(string(a), "\x00") == ""
}

// ParseMACAddress parses "aa:bb:cc:dd:ee:ff" or "aa-bb-cc-dd-ee-ff". Each
// group must be exactly two hex digits and there must be exactly six. The
// empty string yields the zero address.
func ParseMACAddress(s string) (LinkAddress, error) {
	if s == "" {
		return LinkAddress(make([]byte, LinkAddressSize)), nil
	}
	tokens := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(tokens) != LinkAddressSize {
		return "", ErrBadMACAddress
	}
	b := make([]byte, 0, LinkAddressSize)
	for _, tok := range tokens {
		if len(tok) != 2 {
			return "", ErrBadMACAddress
		}
		hi, ok1 := unhex(tok[0])
		lo, ok2 := unhex(tok[1])
		if !ok1 || !ok2 {
			return "", ErrBadMACAddress
		}
		b = append(b, hi<<4|lo)
	}
	return LinkAddress(b), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// 网络层 /////////////////////////////////////////////////////////////

// LinkEndpointID identifies a registered link endpoint.
type LinkEndpointID uint64

// NetworkProtocolNumber is the ethertype of a network protocol.
type NetworkProtocolNumber uint32

// 统计相关 //////////////////////////////////////////////////////////////////////

// StatCounter tracks a monotonically increasing counter.
type StatCounter struct {
	count uint64
}

// Increment adds one to the counter.
func (s *StatCounter) Increment() {
	s.IncrementBy(1)
}

// IncrementBy increments the counter by v.
func (s *StatCounter) IncrementBy(v uint64) {
	atomic.AddUint64(&s.count, v)
}

// Value returns the current value of the counter.
func (s *StatCounter) Value() uint64 {
	return atomic.LoadUint64(&s.count)
}

// RxStats collects receive path counters of the glue.
type RxStats struct {
	// AllocBuffers is the number of RX buffers handed to the driver.
	AllocBuffers *StatCounter

	// LenErrors counts driver requests larger than a descriptor segment.
	LenErrors *StatCounter

	// AllocPktErrors counts RX descriptor pool exhaustion.
	AllocPktErrors *StatCounter

	// AllocBufferErrors counts upper-stack buffer pool exhaustion.
	AllocBufferErrors *StatCounter

	// BufferLenErrors counts upper-stack buffers too small for a frame.
	BufferLenErrors *StatCounter

	// ReleaseErrors counts failures releasing upper-stack buffers.
	ReleaseErrors *StatCounter

	// ChainedPackets counts received packets with more than one segment.
	ChainedPackets *StatCounter

	// DroppedPackets counts received packets that were discarded.
	DroppedPackets *StatCounter

	// ProcessedPackets counts packets handed to the receiver.
	ProcessedPackets *StatCounter
}

// TxStats collects transmit path counters of the glue.
type TxStats struct {
	Packets           *StatCounter
	Rejected          *StatCounter
	AllocPktErrors    *StatCounter
	InterfaceErrors   *StatCounter
	BadAcks           *StatCounter
	AckPackets        *StatCounter
	Orphans           *StatCounter
	TransportReleases *StatCounter
}

// Stats 胶水层的统计数据，所有字段都是可选的
type Stats struct {
	RX RxStats
	TX TxStats

	// GapErrors counts segments whose gap region falls outside the buffer.
	GapErrors *StatCounter

	// TransportReleaseErrors counts failed releases of upper-stack buffers
	// on the transmit side.
	TransportReleaseErrors *StatCounter

	// Events counts driver event notifications.
	Events *StatCounter

	// RxEvents and ErrorEvents count processed event classes.
	RxEvents    *StatCounter
	ErrorEvents *StatCounter

	// UnknownProtocolRcvdPackets counts frames with an unhandled ethertype.
	UnknownProtocolRcvdPackets *StatCounter

	// MalformedRcvdPackets counts frames that failed to decode.
	MalformedRcvdPackets *StatCounter
}

// FillIn returns a copy of s with nil fields initialized to new StatCounters.
func (s Stats) FillIn() Stats {
	fillIn(reflect.ValueOf(&s).Elem())
	return s
}

func fillIn(v reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		v := v.Field(i)
		switch v.Kind() {
		case reflect.Ptr:
			if s, ok := v.Addr().Interface().(**StatCounter); ok {
				if *s == nil {
					*s = &StatCounter{}
				}
			}
		case reflect.Struct:
			fillIn(v)
		}
	}
}

// Snapshot flattens s into a name to value map, using dotted field paths.
func (s Stats) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	snapshot(reflect.ValueOf(s), "", out)
	return out
}

func snapshot(v reflect.Value, prefix string, out map[string]uint64) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		name := t.Field(i).Name
		if prefix != "" {
			name = prefix + "." + name
		}
		switch f.Kind() {
		case reflect.Ptr:
			if c, ok := f.Interface().(*StatCounter); ok && c != nil {
				out[name] = c.Value()
			}
		case reflect.Struct:
			snapshot(f, name, out)
		}
	}
}
