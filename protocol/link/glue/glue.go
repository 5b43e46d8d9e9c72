// Package glue connects MAC drivers to the stack's packet buffers. It owns
// the RX and TX descriptor pools, brings each driver up through a polled
// state machine, moves received frames into buffer chains for the stack and
// submits the stack's buffer chains to the driver without copying.
//
// All state machine work happens on the goroutine calling Tasks or Run.
// Driver callbacks (events, RX allocation, TX acknowledgment) may arrive on
// any goroutine.
package glue

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/qxcheng/macglue/pkg/buffer"
	"github.com/qxcheng/macglue/pkg/bytepool"
	"github.com/qxcheng/macglue/pkg/ilist"
	"github.com/qxcheng/macglue/pkg/log"
	"github.com/qxcheng/macglue/pkg/sleep"
	"github.com/qxcheng/macglue/pkg/tmutex"
	tcpip "github.com/qxcheng/macglue/protocol"
	"github.com/qxcheng/macglue/protocol/header"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

const (
	// MaxInterfaces is the largest number of interfaces one Glue drives.
	MaxInterfaces = 32
	// MaxInitData is the largest driver configuration blob accepted.
	MaxInitData = 60
	// DefaultRxMaxFrame is used when an interface does not set one.
	DefaultRxMaxFrame = 1536
)

// TxHeaderRoom is the room a transmit buffer needs in front of its payload:
// the gap region, the Ethernet header and alignment slack.
const TxHeaderRoom = mac.GapSize + header.EthernetMinimumSize + mac.RxPayloadOffset

// Defaults applied by New to zero Options fields.
const (
	DefaultRxPackets    = 16
	DefaultTxPackets    = 16
	DefaultBuffers      = 32
	DefaultBufferSize   = mac.GapSize + mac.RxPayloadOffset + DefaultRxMaxFrame + 12
	DefaultHeapSize     = 32 * 1024
	DefaultPollSleep    = time.Millisecond
	DefaultTickInterval = 10 * time.Millisecond
)

// NetworkConfig describes one interface.
type NetworkConfig struct {
	// MACAddress in "aa:bb:cc:dd:ee:ff" form. Empty lets the driver use its
	// factory address.
	MACAddress string
	Driver     mac.Driver
	// InitData is the driver specific configuration blob, copied on New.
	InitData   []byte
	Irq        int
	RxMaxFrame int
}

// Options tune a Glue. Zero values select the defaults above.
type Options struct {
	RxPackets int
	TxPackets int

	// Buffers is the stack's packet pool. When nil a pool of BufferCount
	// buffers of BufferSize bytes is created.
	Buffers     *buffer.Pool
	BufferCount int
	BufferSize  int

	HeapSize int

	// DisableChain drops received packets that span more than one segment.
	DisableChain bool

	PollSleep    time.Duration
	TickInterval time.Duration

	Logger log.Logger

	// Fatal receives integrity violations. The default logs and panics.
	Fatal func(error)

	// Receive gets every received buffer chain and owns it afterwards.
	Receive func(*buffer.Packet)
}

// Capabilities are per interface offload flags.
type Capabilities uint32

const (
	CapTxChecksumIPv4 Capabilities = 1 << iota
	CapRxChecksumIPv4
	CapTxChecksumTCP
	CapRxChecksumTCP
	CapTxChecksumUDP
	CapRxChecksumUDP

	CapChecksumOffload = CapTxChecksumIPv4 | CapRxChecksumIPv4 | CapTxChecksumTCP |
		CapRxChecksumTCP | CapTxChecksumUDP | CapRxChecksumUDP
)

// interface flags
const (
	flagInitPending uint32 = 1 << iota
	flagInitDone
	flagEventProcess
)

// macDcpt is the per interface descriptor.
type macDcpt struct {
	ix       int
	cfgAddr  tcpip.LinkAddress
	initData []byte
	irq      int

	// mu guards the driver handles and address; the state machine writes
	// them, Transmit and the accessors read them.
	mu     sync.RWMutex
	driver mac.Driver
	obj    mac.ObjectHandle
	h      mac.Handle
	addr   tcpip.LinkAddress
	mtu    int

	flags atomic.Uint32

	ctrl mac.ModuleCtrl
	init mac.ModuleInit

	activeEvents atomic.Uint32
	eventCount   atomic.Uint32
	totEvents    atomic.Uint64
	errorEvents  atomic.Uint32

	rxMaxFrame int
	maxRxBurst atomic.Int64

	// only touched by the state machine goroutine
	rxPending ilist.SingleList
}

func (d *macDcpt) hasFlag(f uint32) bool {
	return d.flags.Load()&f != 0
}

func (d *macDcpt) setFlag(f uint32) {
	d.flags.Or(f)
}

func (d *macDcpt) clearFlag(f uint32) {
	d.flags.And(^f)
}

// snapshot returns the driver handles and whether the interface is up.
func (d *macDcpt) snapshot() (mac.Driver, mac.Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.driver, d.h, d.hasFlag(flagInitDone)
}

// Glue is the MAC glue instance.
type Glue struct {
	opts  Options
	log   log.Logger
	fatal func(error)

	rxPool  *descPool
	txPool  *descPool
	buffers *buffer.Pool
	heap    *bytepool.Pool

	// crit backs the driver's critical section requests.
	crit tmutex.Mutex

	ifs []*macDcpt

	state     atomic.Int32
	runAction uint32
	closed    atomic.Bool
	ticks     atomic.Uint64

	recv atomic.Pointer[func(*buffer.Packet)]

	stats   tcpip.Stats
	limiter *rate.Limiter

	waker   sleep.Waker
	sleeper sleep.Sleeper
}

// New validates cfg and builds the glue with its pools. Drivers are not
// touched until the first Tasks call.
func New(cfg []NetworkConfig, opts Options) (*Glue, *tcpip.Error) {
	if len(cfg) == 0 {
		return nil, tcpip.ErrNoInitData
	}
	if len(cfg) > MaxInterfaces {
		return nil, tcpip.ErrTooManyInterfaces
	}
	opts = withDefaults(opts)

	g := &Glue{
		opts:    opts,
		log:     opts.Logger.WithField("component", "glue"),
		stats:   tcpip.Stats{}.FillIn(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	g.fatal = opts.Fatal
	if g.fatal == nil {
		g.fatal = func(err error) {
			g.log.Errorf("%v", err)
			panic(err)
		}
	}
	g.crit.Init()

	for i, c := range cfg {
		addr, err := tcpip.ParseMACAddress(c.MACAddress)
		if err != nil {
			g.log.WithField("mac", i).Errorf("bad MAC address %q", c.MACAddress)
			return nil, tcpip.ErrBadMACAddress
		}
		if c.Driver == nil || len(c.InitData) > MaxInitData || c.RxMaxFrame < 0 {
			g.log.WithField("mac", i).Errorf("bad init parameters")
			return nil, tcpip.ErrBadInitParam
		}
		d := &macDcpt{
			ix:         i,
			cfgAddr:    addr,
			initData:   append([]byte(nil), c.InitData...),
			irq:        c.Irq,
			driver:     c.Driver,
			rxMaxFrame: c.RxMaxFrame,
		}
		if d.rxMaxFrame == 0 {
			d.rxMaxFrame = DefaultRxMaxFrame
		}
		g.ifs = append(g.ifs, d)
	}

	g.buffers = opts.Buffers
	if g.buffers == nil {
		g.buffers = buffer.NewPool("glue", opts.BufferCount, opts.BufferSize)
	}
	heap, err := bytepool.New(opts.HeapSize)
	if err != nil {
		return nil, tcpip.ErrBadInitParam
	}
	g.heap = heap

	segCap := g.buffers.PayloadSize() - mac.GapSize - mac.RxPayloadOffset
	if segCap <= 0 {
		return nil, tcpip.ErrBadInitParam
	}
	g.rxPool = newDescPool(mac.OwnerRx, opts.RxPackets, segCap)
	g.txPool = newDescPool(mac.OwnerTx, opts.TxPackets, segCap)

	if opts.Receive != nil {
		g.SetReceiver(opts.Receive)
	}
	g.sleeper.AddWaker(&g.waker, 0)
	g.state.Store(int32(StateIdle))
	g.log.Infof("initialized %d interface(s), rx %d, tx %d descriptors", len(g.ifs), opts.RxPackets, opts.TxPackets)
	return g, nil
}

func withDefaults(o Options) Options {
	if o.RxPackets <= 0 {
		o.RxPackets = DefaultRxPackets
	}
	if o.TxPackets <= 0 {
		o.TxPackets = DefaultTxPackets
	}
	if o.BufferCount <= 0 {
		o.BufferCount = DefaultBuffers
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.HeapSize <= 0 {
		o.HeapSize = DefaultHeapSize
	}
	if o.PollSleep < 0 {
		o.PollSleep = 0
	} else if o.PollSleep == 0 {
		o.PollSleep = DefaultPollSleep
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.Logger == nil {
		o.Logger, _ = log.New(log.Config{})
	}
	return o
}

// SetReceiver installs the function that takes received buffer chains.
func (g *Glue) SetReceiver(fn func(*buffer.Packet)) {
	g.recv.Store(&fn)
}

// Buffers returns the stack packet pool the glue allocates from.
func (g *Glue) Buffers() *buffer.Pool {
	return g.buffers
}

// Interfaces returns the number of configured interfaces.
func (g *Glue) Interfaces() int {
	return len(g.ifs)
}

// Status returns ResultOK once the state machine runs, ResultPending
// before that, and ResultUninitialized for a nil or closed glue.
func (g *Glue) Status() Result {
	if g == nil || g.closed.Load() {
		return ResultUninitialized
	}
	if g.State() == StateRun {
		return ResultOK
	}
	return ResultPending
}

// Ready reports whether interface ix completed bring-up.
func (g *Glue) Ready(ix int) bool {
	if ix < 0 || ix >= len(g.ifs) {
		return false
	}
	return g.ifs[ix].hasFlag(flagInitDone)
}

// MACAddress returns the address of interface ix, or "" if it is not up.
func (g *Glue) MACAddress(ix int) tcpip.LinkAddress {
	if !g.Ready(ix) {
		return ""
	}
	d := g.ifs[ix]
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.addr
}

// MTU returns the link MTU of interface ix, or 0 if it is not up.
func (g *Glue) MTU(ix int) int {
	if !g.Ready(ix) {
		return 0
	}
	d := g.ifs[ix]
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mtu
}

// Capabilities returns the offload flags of interface ix.
func (g *Glue) Capabilities(ix int) Capabilities {
	drv, _, done := g.ifSnapshot(ix)
	if !done || drv == nil {
		return 0
	}
	if drv.ID() == mac.ModuleGMAC {
		return CapChecksumOffload
	}
	return 0
}

func (g *Glue) ifSnapshot(ix int) (mac.Driver, mac.Handle, bool) {
	if ix < 0 || ix >= len(g.ifs) {
		return nil, mac.InvalidHandle, false
	}
	return g.ifs[ix].snapshot()
}

// ErrorEvents returns the accumulated error event bits of interface ix.
func (g *Glue) ErrorEvents(ix int) mac.Event {
	if ix < 0 || ix >= len(g.ifs) {
		return 0
	}
	return mac.Event(g.ifs[ix].errorEvents.Load())
}

// Stats returns the glue counters.
func (g *Glue) Stats() tcpip.Stats {
	return g.stats
}

// Close shuts every interface down and drops pending received packets.
// It must be called from the goroutine that runs Tasks, after Run returns.
// The glue is unusable afterwards.
func (g *Glue) Close() {
	if g.closed.Swap(true) {
		return
	}
	for _, d := range g.ifs {
		for e := d.rxPending.PopFront(); e != nil; e = d.rxPending.PopFront() {
			g.ackRx(e.(*mac.Packet))
		}
		d.clearFlag(flagInitPending | flagInitDone | flagEventProcess)
		g.macKill(d)
	}
	g.sleeper.Done()
	g.log.Infof("closed")
}
