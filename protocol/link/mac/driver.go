package mac

// SynchRequest is a synchronization request a driver may issue through the
// control block.
type SynchRequest int

const (
	SynchRequestNone SynchRequest = iota
	SynchRequestObjCreate
	SynchRequestObjDelete
	SynchRequestObjLock
	SynchRequestObjUnlock
	SynchRequestCritEnter
	SynchRequestCritLeave
)

// ControlFlags tell the driver how the glue lays out its buffers.
type ControlFlags uint16

const (
	ControlPayloadOffset2 ControlFlags = 1 << iota
	ControlNoSmartAlloc
	ControlNoLinkCheck
)

// ModuleCtrl is the control block handed to a driver on Initialize. Every
// callback may be invoked from any goroutine.
type ModuleCtrl struct {
	NIfs  int
	NetIx int

	MallocF func(n int) []byte
	CallocF func(n, size int) []byte
	FreeF   func(b []byte)

	// PktAllocF returns an RX packet with a segment able to hold pktLen
	// bytes, or nil.
	PktAllocF func(pktLen, segLoadLen int, flags PacketFlags) *Packet
	PktFreeF  func(pkt *Packet)
	// PktAckF is called when the driver is done transmitting pkt.
	PktAckF func(pkt *Packet, res AckResult, id ModuleID)

	SynchF func(req SynchRequest) bool

	EventF     func(ev Event, param any)
	EventParam any

	ControlFlags  ControlFlags
	GapDcptOffset int
	GapDcptSize   int
	DataOffset    int

	PhysAddress [6]byte
}

// ModuleInit is the initialization data for one driver instance.
type ModuleInit struct {
	Ctrl *ModuleCtrl
	// Data is the driver specific configuration blob.
	Data []byte
	Irq  int
	// RxMaxFrame is the largest frame the driver will receive.
	RxMaxFrame int
}

// Driver is the MAC driver object. Handles returned by Initialize and Open
// are passed back on every later call.
type Driver interface {
	ID() ModuleID
	Name() string

	Initialize(id ModuleID, init *ModuleInit) ObjectHandle
	Deinitialize(obj ObjectHandle)
	Status(obj ObjectHandle) Status
	Tasks(obj ObjectHandle)

	Open(id ModuleID, intent Intent) Handle
	Close(h Handle)

	LinkCheck(h Handle) bool
	ParametersGet(h Handle, p *Parameters) Result

	PacketTx(h Handle, pkt *Packet) Result
	PacketRx(h Handle) *Packet
	Process(h Handle) Result

	EventMaskSet(h Handle, ev Event, enable bool) bool
	EventAcknowledge(h Handle, ev Event) bool
	EventPendingGet(h Handle) Event
}
