package glue

import (
	"context"
	"fmt"
	"time"

	tcpip "github.com/qxcheng/macglue/protocol"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// State is the bring-up state of the glue.
type State int32

const (
	StateIdle State = iota
	StateInit
	StateWaitReady
	StateRun
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInit:
		return "init"
	case StateWaitReady:
		return "wait-ready"
	case StateRun:
		return "run"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Result is the glue status as seen by the stack.
type Result int

const (
	ResultOK            Result = 0
	ResultPending       Result = 1
	ResultUninitialized Result = -1
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultPending:
		return "pending"
	case ResultUninitialized:
		return "uninitialized"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

const actionSleep uint32 = 1

// State returns the current state.
func (g *Glue) State() State {
	return State(g.state.Load())
}

// Ticks returns how many times Tasks has run.
func (g *Glue) Ticks() uint64 {
	return g.ticks.Load()
}

func (g *Glue) setState(s State) {
	old := State(g.state.Swap(int32(s)))
	if old != s {
		g.log.Debugf("state %s -> %s", old, s)
	}
}

// Tasks advances the state machine by one step. It must always be called
// from the same goroutine. During bring-up it sleeps PollSleep after each
// step.
func (g *Glue) Tasks() {
	if g == nil || g.closed.Load() {
		return
	}
	g.ticks.Add(1)
	g.runAction = 0

	switch g.State() {
	case StateIdle:
		g.stateIdle()
	case StateInit:
		g.stateInit()
	case StateWaitReady:
		g.stateWaitReady()
	case StateRun:
		g.stateRun()
	default:
		g.integrity("tasks", "unknown state %d", g.state.Load())
	}

	if g.runAction&actionSleep != 0 && g.opts.PollSleep > 0 {
		time.Sleep(g.opts.PollSleep)
	}
}

// Run calls Tasks on every tick and whenever the driver signals RX or TX
// completion, until ctx is done.
func (g *Glue) Run(ctx context.Context) error {
	t := time.NewTicker(g.opts.TickInterval)
	defer t.Stop()
	for {
		g.Tasks()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-g.sleeper.C():
			g.sleeper.Fetch(false)
		}
	}
}

func (g *Glue) stateIdle() {
	g.setState(StateInit)
	g.runAction |= actionSleep
}

func (g *Glue) stateInit() {
	for _, d := range g.ifs {
		if err := g.macInit(d); err != nil {
			g.log.WithField("mac", d.ix).WithError(err).Warnf("MAC init failed")
			g.macKill(d)
			continue
		}
		d.setFlag(flagInitPending)
		g.log.WithField("mac", d.ix).Infof("MAC init ok")
	}
	g.setState(StateWaitReady)
	g.runAction |= actionSleep
}

func (g *Glue) stateWaitReady() {
	pending := 0
	for _, d := range g.ifs {
		if !d.hasFlag(flagInitPending) {
			continue
		}
		if !g.macCheckReady(d) {
			pending++
		}
	}

	if pending == 0 {
		for _, d := range g.ifs {
			if !d.hasFlag(flagInitDone) {
				g.macKill(d)
			}
		}
		g.setState(StateRun)
	}
	g.runAction |= actionSleep
}

func (g *Glue) stateRun() {
	for _, d := range g.ifs {
		if !d.hasFlag(flagInitDone) {
			continue
		}
		drv, h := d.driver, d.h
		drv.Tasks(d.obj)

		if d.eventCount.Swap(0) != 0 {
			ev := mac.Event(d.activeEvents.Load()) | drv.EventPendingGet(h)
			d.activeEvents.And(^uint32(ev))
			drv.EventAcknowledge(h, ev)

			if ev&mac.RxEvents != 0 {
				g.stats.RxEvents.Increment()
				g.extractRx(d)
			}
			if ev&mac.EventRxTxErrors != 0 {
				g.stats.ErrorEvents.Increment()
				d.errorEvents.Or(uint32(ev & mac.EventRxTxErrors))
			}
		}

		if d.hasFlag(flagEventProcess) {
			drv.Process(h)
		}
		g.processRx(d)
	}
}

// macCheckReady polls one pending interface. It reports whether the
// interface left the pending state.
func (g *Glue) macCheckReady(d *macDcpt) bool {
	d.driver.Tasks(d.obj)
	st := d.driver.Status(d.obj)
	l := g.log.WithField("mac", d.ix)

	switch {
	case st < 0:
		l.Warnf("MAC failed to come up: %s", st)
		d.clearFlag(flagInitPending)
		return true
	case st != mac.StatusReady:
		return false
	}

	params := mac.Parameters{LinkMTU: mac.LinkMTUDefault}
	if res := d.driver.ParametersGet(d.h, &params); res != mac.ResOK {
		l.Warnf("MAC parameters: %s", res)
	}
	if params.LinkMTU <= 0 {
		params.LinkMTU = mac.LinkMTUDefault
	}
	d.mu.Lock()
	d.addr = tcpip.LinkAddress(params.Address[:])
	d.mtu = params.LinkMTU
	d.mu.Unlock()
	if params.ProcessFlags != mac.ProcessNone {
		d.setFlag(flagEventProcess)
	}
	d.setFlag(flagInitDone)
	d.clearFlag(flagInitPending)
	l.Infof("MAC ready, address %s, MTU %d", d.addr, params.LinkMTU)
	return true
}

// macInit initializes, opens and enables events on one driver.
func (g *Glue) macInit(d *macDcpt) error {
	g.setMacCtrl(d)
	drv := d.driver

	obj := drv.Initialize(drv.ID(), &d.init)
	if obj == mac.InvalidObject {
		return tcpip.ErrMACInitFail
	}
	d.mu.Lock()
	d.obj = obj
	d.mu.Unlock()

	h := drv.Open(drv.ID(), mac.IntentReadWrite)
	if h == mac.InvalidHandle {
		return tcpip.ErrMACOpenFail
	}
	d.mu.Lock()
	d.h = h
	d.mu.Unlock()

	if !drv.EventMaskSet(h, mac.AllEvents, true) {
		return tcpip.ErrMACEventFail
	}
	return nil
}

// macKill closes and deinitializes whatever macInit obtained and forgets
// the driver.
func (g *Glue) macKill(d *macDcpt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.driver == nil {
		return
	}
	if d.h != mac.InvalidHandle {
		d.driver.Close(d.h)
		d.h = mac.InvalidHandle
	}
	if d.obj != mac.InvalidObject {
		d.driver.Deinitialize(d.obj)
		d.obj = mac.InvalidObject
	}
	d.driver = nil
}

// setMacCtrl fills the control block handed to the driver.
func (g *Glue) setMacCtrl(d *macDcpt) {
	d.ctrl = mac.ModuleCtrl{
		NIfs:  len(g.ifs),
		NetIx: d.ix,

		MallocF: g.malloc,
		CallocF: g.calloc,
		FreeF:   g.free,

		PktAllocF: func(pktLen, segLoadLen int, flags mac.PacketFlags) *mac.Packet {
			return g.allocRxPacket(d, pktLen, segLoadLen, flags)
		},
		PktFreeF: g.freeRxPacket,
		PktAckF:  g.ackTxPacket,
		SynchF:   g.synch,

		EventF:     g.eventCallback,
		EventParam: d,

		ControlFlags:  mac.ControlPayloadOffset2 | mac.ControlNoSmartAlloc | mac.ControlNoLinkCheck,
		GapDcptOffset: mac.GapOffset,
		GapDcptSize:   mac.GapSize,
		DataOffset:    mac.RxPayloadOffset,
	}
	copy(d.ctrl.PhysAddress[:], d.cfgAddr)
	d.init = mac.ModuleInit{
		Ctrl:       &d.ctrl,
		Data:       d.initData,
		Irq:        d.irq,
		RxMaxFrame: d.rxMaxFrame,
	}
}
