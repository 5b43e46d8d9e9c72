// Package mac defines the contract between a MAC driver and the glue layer
// that feeds it packets: driver handles, packet descriptors and segments,
// events, status and result codes, and the control block of callbacks the
// driver uses to allocate, free and acknowledge packets.
package mac

import "fmt"

// ModuleID identifies a MAC driver implementation.
type ModuleID int

const (
	ModuleNone ModuleID = iota
	ModuleEthMAC
	ModuleGMAC
	ModuleWiFi
	ModuleLoopback
)

func (m ModuleID) String() string {
	switch m {
	case ModuleEthMAC:
		return "ethmac"
	case ModuleGMAC:
		return "gmac"
	case ModuleWiFi:
		return "wifi"
	case ModuleLoopback:
		return "loopback"
	}
	return fmt.Sprintf("module(%d)", int(m))
}

// ObjectHandle is returned by Driver.Initialize. InvalidObject marks failure.
type ObjectHandle uintptr

// Handle is returned by Driver.Open. InvalidHandle marks failure.
type Handle uintptr

const (
	InvalidObject ObjectHandle = 0
	InvalidHandle Handle       = 0
)

// Intent is the access mode requested by Open.
type Intent int

const (
	IntentReadWrite Intent = iota
	IntentRead
	IntentWrite
)

// Status is the driver module status. Negative values are failures.
type Status int

const (
	StatusErrorExtended Status = -10
	StatusError         Status = -1
	StatusUninitialized Status = 0
	StatusBusy          Status = 1
	StatusReady         Status = 2
)

func (s Status) String() string {
	switch {
	case s == StatusReady:
		return "ready"
	case s == StatusBusy:
		return "busy"
	case s == StatusUninitialized:
		return "uninitialized"
	case s < 0:
		return fmt.Sprintf("error(%d)", int(s))
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is the outcome of a driver operation.
type Result int

const (
	ResOK            Result = 0
	ResPending       Result = 1
	ResTypeErr       Result = -1
	ResIsBusy        Result = -2
	ResInitFail      Result = -3
	ResEventInitFail Result = -5
	ResOpNotSupp     Result = -6
	ResOpErr         Result = -7
	ResAllocErr      Result = -8
	ResInstanceErr   Result = -9
	ResPacketErr     Result = -10
	ResQueueTxFull   Result = -11
)

var resultNames = map[Result]string{
	ResOK:            "ok",
	ResPending:       "pending",
	ResTypeErr:       "type error",
	ResIsBusy:        "busy",
	ResInitFail:      "init failed",
	ResEventInitFail: "event init failed",
	ResOpNotSupp:     "operation not supported",
	ResOpErr:         "operation error",
	ResAllocErr:      "allocation error",
	ResInstanceErr:   "instance error",
	ResPacketErr:     "packet error",
	ResQueueTxFull:   "tx queue full",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// Event is a bit set of driver notifications.
type Event uint32

const (
	EventNone       Event = 0
	EventRxPktPend  Event = 0x0001
	EventRxOverflow Event = 0x0002
	EventRxBufNA    Event = 0x0004
	EventTxDone     Event = 0x0008
	EventRxDone     Event = 0x0010
	EventTxAbort    Event = 0x0020
	EventTxBusErr   Event = 0x0040
	EventRxBusErr   Event = 0x0080

	EventConnEstablished Event = 0x4000
	EventConnLost        Event = 0x8000

	EventRxTxErrors = EventRxOverflow | EventRxBufNA | EventTxAbort | EventTxBusErr | EventRxBusErr

	// AllEvents is the mask the glue enables on every interface.
	AllEvents = EventRxDone | EventTxDone | EventRxTxErrors

	// RxEvents trigger packet extraction.
	RxEvents = EventRxDone | EventRxOverflow | EventRxBufNA

	// DeferredEvents wake the task goroutine.
	DeferredEvents = EventRxPktPend | EventRxDone | EventTxDone
)

// ProcessFlags reported in Parameters tell whether the driver needs its
// Process hook called from the task loop.
type ProcessFlags uint16

const (
	ProcessNone ProcessFlags = 0
	ProcessRx   ProcessFlags = 0x0001
	ProcessTx   ProcessFlags = 0x0002
)

// LinkMTUDefault is used when the driver does not report an MTU.
const LinkMTUDefault = 1500

// Parameters are the run-time parameters of an opened driver.
type Parameters struct {
	Address      [6]byte
	ProcessFlags ProcessFlags
	LinkMTU      int
	Checksum     bool
}

// AckResult is passed by the driver when it is done with a TX packet.
type AckResult int

const (
	AckTxOK      AckResult = 1
	AckNone      AckResult = 0
	AckBufferErr AckResult = -1
	AckLinkDown  AckResult = -2
	AckTxErr     AckResult = -5
	AckProtoErr  AckResult = -7
)
