package glue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qxcheng/macglue/pkg/buffer"
	"github.com/qxcheng/macglue/pkg/log"
	tcpip "github.com/qxcheng/macglue/protocol"
	"github.com/qxcheng/macglue/protocol/header"
	"github.com/qxcheng/macglue/protocol/link/loopback"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

type harness struct {
	g      *Glue
	eps    []*loopback.Endpoint
	got    []*buffer.Packet
	faults []error
}

// newHarness builds a glue over eps with sleeping disabled and integrity
// violations recorded instead of panicking.
func newHarness(t *testing.T, opts Options, eps ...*loopback.Endpoint) *harness {
	t.Helper()
	h := &harness{eps: eps}
	cfg := make([]NetworkConfig, len(eps))
	for i, ep := range eps {
		cfg[i] = NetworkConfig{Driver: ep}
	}
	opts.PollSleep = -1
	opts.Logger = log.Discard()
	opts.Fatal = func(err error) { h.faults = append(h.faults, err) }
	if opts.Receive == nil {
		opts.Receive = func(p *buffer.Packet) { h.got = append(h.got, p) }
	}
	g, err := New(cfg, opts)
	require.Nil(t, err)
	h.g = g
	return h
}

// bringUp ticks until the glue runs.
func (h *harness) bringUp(t *testing.T) {
	t.Helper()
	for i := 0; i < 100 && h.g.State() != StateRun; i++ {
		h.g.Tasks()
	}
	require.Equal(t, StateRun, h.g.State())
}

// releaseGot hands every received chain back to its pool.
func (h *harness) releaseGot(t *testing.T) {
	t.Helper()
	for _, p := range h.got {
		require.NoError(t, buffer.Release(p))
	}
	h.got = nil
}

func makeFrame(n int) []byte {
	f := make([]byte, n)
	header.Ethernet(f).Encode(&header.EthernetFields{
		SrcAddr: loopback.DefaultAddress,
		DstAddr: header.EthernetBroadcastAddress,
		Type:    header.IPv4ProtocolNumber,
	})
	for i := header.EthernetMinimumSize; i < n; i++ {
		f[i] = byte(i)
	}
	return f
}

// txBuffer allocates a transmit buffer holding payload behind an Ethernet
// header.
func txBuffer(t *testing.T, g *Glue, payload []byte) *buffer.Packet {
	t.Helper()
	b, err := g.Buffers().Allocate(TxHeaderRoom)
	require.NoError(t, err)
	require.Equal(t, len(payload), b.Append(payload))
	hdr := b.PushHeader(header.EthernetMinimumSize)
	require.NotNil(t, hdr)
	header.Ethernet(hdr).Encode(&header.EthernetFields{
		SrcAddr: loopback.DefaultAddress,
		DstAddr: header.EthernetBroadcastAddress,
		Type:    header.IPv4ProtocolNumber,
	})
	return b
}

func TestNewValidation(t *testing.T) {
	ep := loopback.New(loopback.Options{})
	opts := Options{Logger: log.Discard()}

	_, err := New(nil, opts)
	assert.Equal(t, tcpip.ErrNoInitData, err)

	many := make([]NetworkConfig, MaxInterfaces+1)
	for i := range many {
		many[i].Driver = ep
	}
	_, err = New(many, opts)
	assert.Equal(t, tcpip.ErrTooManyInterfaces, err)

	_, err = New([]NetworkConfig{{Driver: ep, MACAddress: "00:11:22"}}, opts)
	assert.Equal(t, tcpip.ErrBadMACAddress, err)

	_, err = New([]NetworkConfig{{}}, opts)
	assert.Equal(t, tcpip.ErrBadInitParam, err)

	_, err = New([]NetworkConfig{{Driver: ep, InitData: make([]byte, MaxInitData+1)}}, opts)
	assert.Equal(t, tcpip.ErrBadInitParam, err)

	g, err := New([]NetworkConfig{{Driver: ep, InitData: make([]byte, MaxInitData)}}, opts)
	require.Nil(t, err)
	assert.Equal(t, StateIdle, g.State())
	assert.Equal(t, ResultPending, g.Status())
}

func TestStateMachineReadyAfterPolls(t *testing.T) {
	const k = 3
	ep := loopback.New(loopback.Options{ReadyAfter: k})
	h := newHarness(t, Options{}, ep)
	g := h.g

	g.Tasks()
	assert.Equal(t, StateInit, g.State())
	g.Tasks()
	assert.Equal(t, StateWaitReady, g.State())
	assert.True(t, ep.Initialized())
	assert.True(t, ep.Opened())

	for i := 3; i <= k+1; i++ {
		g.Tasks()
		assert.Equal(t, StateWaitReady, g.State(), "tick %d", i)
	}
	g.Tasks()
	assert.Equal(t, StateRun, g.State())
	assert.Equal(t, uint64(k+2), g.Ticks())
	assert.True(t, g.Ready(0))
	assert.Equal(t, ResultOK, g.Status())
	assert.Empty(t, h.faults)
}

func TestInitFailuresAreIsolated(t *testing.T) {
	good := loopback.New(loopback.Options{})
	badOpen := loopback.New(loopback.Options{FailOpen: true})
	badInit := loopback.New(loopback.Options{FailInit: true})
	badEvents := loopback.New(loopback.Options{FailEvents: true})
	badStatus := loopback.New(loopback.Options{FailStatus: true})
	h := newHarness(t, Options{}, good, badOpen, badInit, badEvents, badStatus)
	h.bringUp(t)
	g := h.g

	assert.True(t, g.Ready(0))
	for ix := 1; ix < 5; ix++ {
		assert.False(t, g.Ready(ix), "interface %d", ix)
		assert.Equal(t, tcpip.LinkAddress(""), g.MACAddress(ix))
	}
	// a driver that got as far as Initialize was deinitialized again
	assert.False(t, badOpen.Initialized())
	assert.False(t, badEvents.Initialized())
	assert.False(t, badEvents.Opened())
	assert.False(t, badStatus.Initialized())

	b := txBuffer(t, g, []byte("payload"))
	b.Interface = 1
	assert.Equal(t, tcpip.ErrNoSuchInterface, g.Transmit(b))
	require.NoError(t, buffer.Release(b))
}

func TestAddressAndParameters(t *testing.T) {
	configured := loopback.New(loopback.Options{MTU: 1400})
	factory := loopback.New(loopback.Options{ID: mac.ModuleGMAC, ProcessFlags: mac.ProcessRx})

	opts := Options{PollSleep: -1, Logger: log.Discard()}
	g, err := New([]NetworkConfig{
		{Driver: configured, MACAddress: "02-11-22-33-44-55"},
		{Driver: factory},
	}, opts)
	require.Nil(t, err)
	assert.Equal(t, tcpip.LinkAddress(""), g.MACAddress(0))

	for g.State() != StateRun {
		g.Tasks()
	}
	assert.Equal(t, "02:11:22:33:44:55", g.MACAddress(0).String())
	assert.Equal(t, 1400, g.MTU(0))
	assert.Equal(t, loopback.DefaultAddress, g.MACAddress(1))
	assert.Equal(t, mac.LinkMTUDefault, g.MTU(1))

	assert.Equal(t, Capabilities(0), g.Capabilities(0))
	assert.Equal(t, CapChecksumOffload, g.Capabilities(1))
	assert.Equal(t, Capabilities(0), g.Capabilities(7))

	g.Tasks()
	assert.Equal(t, uint64(1), factory.Stats().Processed)
	assert.Equal(t, uint64(0), configured.Stats().Processed)
}

func TestHeapShimsServeDriver(t *testing.T) {
	ep := loopback.New(loopback.Options{})
	h := newHarness(t, Options{}, ep)
	h.bringUp(t)

	assert.Equal(t, 256, h.g.Heap().Stats().InUse)
	h.g.Close()
	assert.Equal(t, 0, h.g.Heap().Stats().InUse)
	assert.Equal(t, ResultUninitialized, h.g.Status())
	assert.False(t, ep.Initialized())

	var nilGlue *Glue
	assert.Equal(t, ResultUninitialized, nilGlue.Status())
}

func TestSynch(t *testing.T) {
	h := newHarness(t, Options{}, loopback.New(loopback.Options{}))
	g := h.g

	require.True(t, g.synch(mac.SynchRequestCritEnter))
	assert.False(t, g.crit.TryLock())
	require.True(t, g.synch(mac.SynchRequestCritLeave))
	assert.Empty(t, h.faults)

	assert.False(t, g.synch(mac.SynchRequestCritLeave))
	assert.False(t, g.synch(mac.SynchRequestObjCreate))
	assert.False(t, g.synch(mac.SynchRequest(99)))
	require.Len(t, h.faults, 2)
	var ie *IntegrityError
	assert.ErrorAs(t, h.faults[0], &ie)
	assert.Equal(t, "synch", ie.Op)
}

func TestEventCallback(t *testing.T) {
	h := newHarness(t, Options{}, loopback.New(loopback.Options{}))
	g := h.g
	d := g.ifs[0]

	g.eventCallback(mac.EventRxOverflow, d)
	assert.False(t, g.waker.IsAsserted())
	g.eventCallback(mac.EventTxDone, d)
	assert.True(t, g.waker.IsAsserted())

	assert.Equal(t, uint32(2), d.eventCount.Load())
	assert.Equal(t, uint32(mac.EventRxOverflow|mac.EventTxDone), d.activeEvents.Load())
	assert.Equal(t, uint64(2), g.Stats().Events.Value())

	g.eventCallback(mac.EventTxDone, "nope")
	assert.Len(t, h.faults, 1)
}

func TestErrorEventsAccumulate(t *testing.T) {
	ep := loopback.New(loopback.Options{})
	h := newHarness(t, Options{}, ep)
	h.bringUp(t)
	g := h.g

	g.eventCallback(mac.EventRxBufNA, g.ifs[0])
	g.Tasks()
	assert.Equal(t, mac.EventRxBufNA, g.ErrorEvents(0))
	assert.Equal(t, uint64(1), g.Stats().ErrorEvents.Value())
	assert.Equal(t, uint64(1), g.Stats().RxEvents.Value())
	assert.Equal(t, uint32(0), g.ifs[0].activeEvents.Load())
}
