// Package loopback provides a MAC driver that loops transmitted frames back
// as received ones. Frames can also be injected directly. It follows the
// driver contract closely enough to exercise every glue callback and is used
// by tests and the demo program.
package loopback

import (
	"sync"
	"sync/atomic"

	tcpip "github.com/qxcheng/macglue/protocol"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// AckMode selects when transmitted packets are acknowledged.
type AckMode int

const (
	// AckImmediate acknowledges inside PacketTx.
	AckImmediate AckMode = iota
	// AckOnTasks acknowledges on the next Tasks call.
	AckOnTasks
	// AckManual leaves acknowledgment to AckPending.
	AckManual
)

// DefaultAddress is the factory address reported when none is configured.
const DefaultAddress = tcpip.LinkAddress("\x02\x00\x00\x00\x00\x01")

// scratch memory taken from the glue heap on Initialize
const scratchSize = 256

// Options configure an Endpoint.
type Options struct {
	ID      mac.ModuleID
	Name    string
	Address tcpip.LinkAddress
	MTU     int

	ProcessFlags mac.ProcessFlags

	// ReadyAfter is the number of Status polls after which the driver
	// reports ready.
	ReadyAfter int
	// FailStatus makes Status report an error.
	FailStatus bool
	FailInit   bool
	FailOpen   bool
	FailEvents bool

	// RxSegmentSize splits received frames into segments of at most this
	// many bytes. Zero keeps every frame in one segment.
	RxSegmentSize int

	// TxResult, when not ResOK, is returned by every PacketTx.
	TxResult mac.Result
	// TxAckResult is passed with every acknowledgment. Zero means AckTxOK.
	TxAckResult mac.AckResult
	TxAck       AckMode

	// NoLoop drops transmitted frames instead of receiving them.
	NoLoop bool
}

// Stats are the endpoint counters.
type Stats struct {
	Transmitted uint64
	Received    uint64
	Dropped     uint64
	Processed   uint64
	Acked       uint64
}

// Endpoint is a loopback MAC driver.
type Endpoint struct {
	opts Options

	mu        sync.Mutex
	ctrl      *mac.ModuleCtrl
	scratch   []byte
	inited    bool
	opened    bool
	polls     int
	eventMask mac.Event
	pending   mac.Event
	rxq       []*mac.Packet
	parts     map[*mac.Packet][]*mac.Packet
	txq       []*mac.Packet
	lastFrame []byte

	linkDown atomic.Bool

	transmitted atomic.Uint64
	received    atomic.Uint64
	dropped     atomic.Uint64
	processed   atomic.Uint64
	acked       atomic.Uint64
}

var _ mac.Driver = (*Endpoint)(nil)

// New creates a loopback endpoint.
func New(opts Options) *Endpoint {
	if opts.ID == mac.ModuleNone {
		opts.ID = mac.ModuleLoopback
	}
	if opts.Name == "" {
		opts.Name = "loopback"
	}
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	if opts.MTU == 0 {
		opts.MTU = mac.LinkMTUDefault
	}
	if opts.TxAckResult == mac.AckNone {
		opts.TxAckResult = mac.AckTxOK
	}
	return &Endpoint{opts: opts, parts: make(map[*mac.Packet][]*mac.Packet)}
}

// ID implements mac.Driver.ID.
func (e *Endpoint) ID() mac.ModuleID { return e.opts.ID }

// Name implements mac.Driver.Name.
func (e *Endpoint) Name() string { return e.opts.Name }

// Initialize implements mac.Driver.Initialize.
func (e *Endpoint) Initialize(id mac.ModuleID, init *mac.ModuleInit) mac.ObjectHandle {
	if e.opts.FailInit || init == nil || init.Ctrl == nil {
		return mac.InvalidObject
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctrl = init.Ctrl
	if e.ctrl.CallocF != nil {
		e.scratch = e.ctrl.CallocF(1, scratchSize)
	}
	e.inited = true
	e.polls = 0
	return mac.ObjectHandle(1)
}

// Deinitialize implements mac.Driver.Deinitialize. Queued packets are
// returned to the glue.
func (e *Endpoint) Deinitialize(obj mac.ObjectHandle) {
	e.mu.Lock()
	ctrl := e.ctrl
	rxq, txq := e.rxq, e.txq
	e.rxq, e.txq = nil, nil
	scratch := e.scratch
	e.scratch = nil
	e.inited = false
	e.mu.Unlock()

	if ctrl == nil {
		return
	}
	for _, pkt := range rxq {
		e.freeRx(pkt)
	}
	for _, pkt := range txq {
		ctrl.PktAckF(pkt, mac.AckLinkDown, e.opts.ID)
	}
	if scratch != nil && ctrl.FreeF != nil {
		ctrl.FreeF(scratch)
	}
}

// Status implements mac.Driver.Status.
func (e *Endpoint) Status(obj mac.ObjectHandle) mac.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return mac.StatusUninitialized
	}
	if e.opts.FailStatus {
		return mac.StatusError
	}
	e.polls++
	if e.polls >= e.opts.ReadyAfter {
		return mac.StatusReady
	}
	return mac.StatusBusy
}

// Tasks implements mac.Driver.Tasks.
func (e *Endpoint) Tasks(obj mac.ObjectHandle) {
	if e.opts.TxAck == AckOnTasks {
		e.AckPending()
	}
}

// Open implements mac.Driver.Open.
func (e *Endpoint) Open(id mac.ModuleID, intent mac.Intent) mac.Handle {
	if e.opts.FailOpen {
		return mac.InvalidHandle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = true
	return mac.Handle(1)
}

// Close implements mac.Driver.Close.
func (e *Endpoint) Close(h mac.Handle) {
	e.mu.Lock()
	e.opened = false
	e.mu.Unlock()
}

// Opened reports whether the endpoint is open.
func (e *Endpoint) Opened() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

// Initialized reports whether the endpoint is initialized.
func (e *Endpoint) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inited
}

// SetLinkDown changes the link state reported by LinkCheck.
func (e *Endpoint) SetLinkDown(down bool) {
	e.linkDown.Store(down)
}

// LinkCheck implements mac.Driver.LinkCheck.
func (e *Endpoint) LinkCheck(h mac.Handle) bool {
	return !e.linkDown.Load()
}

// ParametersGet implements mac.Driver.ParametersGet.
func (e *Endpoint) ParametersGet(h mac.Handle, p *mac.Parameters) mac.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr := e.opts.Address
	if e.ctrl != nil && e.ctrl.PhysAddress != [6]byte{} {
		addr = tcpip.LinkAddress(e.ctrl.PhysAddress[:])
	}
	copy(p.Address[:], addr)
	p.LinkMTU = e.opts.MTU
	p.ProcessFlags = e.opts.ProcessFlags
	p.Checksum = e.opts.ID == mac.ModuleGMAC
	return mac.ResOK
}

// Process implements mac.Driver.Process.
func (e *Endpoint) Process(h mac.Handle) mac.Result {
	e.processed.Add(1)
	return mac.ResOK
}

// EventMaskSet implements mac.Driver.EventMaskSet.
func (e *Endpoint) EventMaskSet(h mac.Handle, ev mac.Event, enable bool) bool {
	if e.opts.FailEvents {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if enable {
		e.eventMask |= ev
	} else {
		e.eventMask &^= ev
	}
	return true
}

// EventPendingGet implements mac.Driver.EventPendingGet.
func (e *Endpoint) EventPendingGet(h mac.Handle) mac.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending & e.eventMask
}

// EventAcknowledge implements mac.Driver.EventAcknowledge.
func (e *Endpoint) EventAcknowledge(h mac.Handle, ev mac.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending &^= ev
	return true
}

// Stats returns the endpoint counters.
func (e *Endpoint) Stats() Stats {
	return Stats{
		Transmitted: e.transmitted.Load(),
		Received:    e.received.Load(),
		Dropped:     e.dropped.Load(),
		Processed:   e.processed.Load(),
		Acked:       e.acked.Load(),
	}
}

// LastFrame returns a copy of the last transmitted frame.
func (e *Endpoint) LastFrame() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.lastFrame...)
}

// PendingAcks returns the number of transmitted packets not yet
// acknowledged.
func (e *Endpoint) PendingAcks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.txq)
}

func (e *Endpoint) signal(ev mac.Event) {
	e.mu.Lock()
	e.pending |= ev
	enabled := e.eventMask&ev != 0
	ctrl := e.ctrl
	e.mu.Unlock()

	if enabled && ctrl != nil && ctrl.EventF != nil {
		ctrl.EventF(ev, ctrl.EventParam)
	}
}

// frameOf flattens the payload of every segment.
func frameOf(pkt *mac.Packet) []byte {
	var b []byte
	for s := pkt.Seg; s != nil; s = s.Next {
		b = append(b, s.Payload()...)
	}
	return b
}
