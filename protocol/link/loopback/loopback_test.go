package loopback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qxcheng/macglue/protocol/header"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// host stands in for the glue side of the control block.
type host struct {
	ctrl   mac.ModuleCtrl
	live   map[*mac.Packet]bool
	acks   []mac.AckResult
	events []mac.Event
	heap   int
	crit   int
}

func newHost() *host {
	h := &host{live: make(map[*mac.Packet]bool)}
	h.ctrl = mac.ModuleCtrl{
		CallocF: func(n, size int) []byte {
			h.heap += n * size
			return make([]byte, n*size)
		},
		FreeF: func(b []byte) { h.heap -= len(b) },
		PktAllocF: func(pktLen, _ int, flags mac.PacketFlags) *mac.Packet {
			if pktLen > 512 {
				return nil
			}
			seg := &mac.Segment{
				Storage:   make([]byte, mac.GapSize+mac.RxPayloadOffset+512),
				BufferOff: mac.GapSize,
				LoadOff:   mac.GapSize + mac.RxPayloadOffset,
				Size:      mac.RxPayloadOffset + 512,
			}
			pkt := &mac.Packet{Seg: seg, Flags: flags}
			h.live[pkt] = true
			return pkt
		},
		PktFreeF: func(pkt *mac.Packet) { delete(h.live, pkt) },
		PktAckF: func(pkt *mac.Packet, res mac.AckResult, _ mac.ModuleID) {
			h.acks = append(h.acks, res)
		},
		SynchF: func(req mac.SynchRequest) bool {
			switch req {
			case mac.SynchRequestCritEnter:
				h.crit++
			case mac.SynchRequestCritLeave:
				h.crit--
			}
			return true
		},
		EventF: func(ev mac.Event, _ any) { h.events = append(h.events, ev) },
	}
	return h
}

func open(t *testing.T, e *Endpoint, h *host) {
	t.Helper()
	obj := e.Initialize(e.ID(), &mac.ModuleInit{Ctrl: &h.ctrl})
	require.NotEqual(t, mac.InvalidObject, obj)
	require.NotEqual(t, mac.InvalidHandle, e.Open(e.ID(), mac.IntentReadWrite))
	require.True(t, e.EventMaskSet(1, mac.AllEvents, true))
}

func txPacket(frame []byte) *mac.Packet {
	seg := &mac.Segment{Storage: frame, Len: len(frame), Size: len(frame)}
	return &mac.Packet{Seg: seg}
}

func TestDefaults(t *testing.T) {
	e := New(Options{})
	assert.Equal(t, mac.ModuleLoopback, e.ID())
	assert.Equal(t, "loopback", e.Name())

	var p mac.Parameters
	require.Equal(t, mac.ResOK, e.ParametersGet(1, &p))
	assert.Equal(t, []byte(DefaultAddress), p.Address[:])
	assert.Equal(t, mac.LinkMTUDefault, p.LinkMTU)
	assert.False(t, p.Checksum)
}

func TestReadyAfterPolls(t *testing.T) {
	e := New(Options{ReadyAfter: 2})
	assert.Equal(t, mac.StatusUninitialized, e.Status(1))

	h := newHost()
	open(t, e, h)
	assert.Equal(t, mac.StatusBusy, e.Status(1))
	assert.Equal(t, mac.StatusReady, e.Status(1))
	assert.Equal(t, scratchSize, h.heap)

	e.Close(1)
	e.Deinitialize(1)
	assert.False(t, e.Opened())
	assert.False(t, e.Initialized())
	assert.Zero(t, h.heap)
}

func TestFailureKnobs(t *testing.T) {
	mi := &mac.ModuleInit{Ctrl: &newHost().ctrl}
	assert.Equal(t, mac.InvalidObject, New(Options{FailInit: true}).Initialize(mac.ModuleLoopback, mi))
	assert.Equal(t, mac.InvalidHandle, New(Options{FailOpen: true}).Open(mac.ModuleLoopback, mac.IntentReadWrite))
	assert.False(t, New(Options{FailEvents: true}).EventMaskSet(1, mac.AllEvents, true))
	assert.Equal(t, mac.InvalidObject, New(Options{}).Initialize(mac.ModuleLoopback, nil))

	e := New(Options{FailStatus: true})
	e.Initialize(mac.ModuleLoopback, mi)
	assert.Equal(t, mac.StatusError, e.Status(1))
}

func TestConfiguredAddressWins(t *testing.T) {
	e := New(Options{ID: mac.ModuleGMAC})
	h := newHost()
	h.ctrl.PhysAddress = [6]byte{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	open(t, e, h)

	var p mac.Parameters
	e.ParametersGet(1, &p)
	assert.Equal(t, h.ctrl.PhysAddress, p.Address)
	assert.True(t, p.Checksum)
}

func TestTransmitLoopsBack(t *testing.T) {
	e := New(Options{})
	h := newHost()
	open(t, e, h)

	frame := make([]byte, 100)
	header.Ethernet(frame).Encode(&header.EthernetFields{
		SrcAddr: DefaultAddress,
		DstAddr: header.EthernetBroadcastAddress,
		Type:    header.IPv4ProtocolNumber,
	})
	require.Equal(t, mac.ResOK, e.PacketTx(1, txPacket(frame)))
	assert.Equal(t, []mac.AckResult{mac.AckTxOK}, h.acks)
	assert.Equal(t, frame, e.LastFrame())

	pkt := e.PacketRx(1)
	require.NotNil(t, pkt)
	assert.Nil(t, e.PacketRx(1))
	assert.Equal(t, len(frame)-header.EthernetMinimumSize, pkt.Seg.Len)
	assert.Equal(t, len(frame), pkt.PktLen)
	assert.Equal(t, frame, pkt.Seg.Storage[pkt.Seg.LoadOff:pkt.Seg.LoadOff+len(frame)])
	require.NotNil(t, pkt.AckFunc)

	// RxPktPend is raised but not in the enabled mask
	assert.Equal(t, mac.EventRxDone|mac.EventTxDone, e.EventPendingGet(1))
	assert.True(t, e.EventAcknowledge(1, mac.EventTxDone))
	assert.Equal(t, mac.EventRxDone, e.EventPendingGet(1))
	assert.Equal(t, []mac.Event{mac.EventTxDone, mac.EventRxDone | mac.EventRxPktPend}, h.events)

	pkt.Ack()
	assert.Empty(t, h.live)
	assert.Equal(t, Stats{Transmitted: 1, Received: 1, Acked: 1}, e.Stats())
}

func TestInjectSplitsSegments(t *testing.T) {
	e := New(Options{RxSegmentSize: 40})
	h := newHost()
	open(t, e, h)

	frame := make([]byte, 100)
	for i := range frame {
		frame[i] = byte(i)
	}
	require.True(t, e.Inject(frame))
	assert.Len(t, h.live, 3)

	pkt := e.PacketRx(1)
	require.NotNil(t, pkt)
	assert.NotZero(t, pkt.Flags&mac.PktFlagSplit)
	var lens []int
	var got []byte
	for s := pkt.Seg; s != nil; s = s.Next {
		lens = append(lens, s.Len)
		n := s.Len
		if s == pkt.Seg {
			n += header.EthernetMinimumSize
		}
		got = append(got, s.Storage[s.LoadOff:s.LoadOff+n]...)
	}
	assert.Equal(t, []int{40 - header.EthernetMinimumSize, 40, 20}, lens)
	assert.Equal(t, frame, got)

	pkt.Ack()
	assert.Empty(t, h.live)
}

func TestInjectDrops(t *testing.T) {
	e := New(Options{})
	assert.False(t, e.Inject(make([]byte, 64)), "not initialized")

	h := newHost()
	open(t, e, h)
	assert.False(t, e.Inject(make([]byte, 10)), "runt")
	assert.False(t, e.Inject(make([]byte, 600)), "no buffer")

	e2 := New(Options{RxSegmentSize: 300})
	open(t, e2, h)
	assert.True(t, e2.Inject(make([]byte, 600)))
	assert.Equal(t, uint64(3), e.Stats().Dropped)
	assert.Len(t, h.live, 2)
}

func TestDeferredAcks(t *testing.T) {
	e := New(Options{TxAck: AckManual, NoLoop: true, TxAckResult: mac.AckTxErr})
	h := newHost()
	open(t, e, h)

	for i := 0; i < 3; i++ {
		require.Equal(t, mac.ResOK, e.PacketTx(1, txPacket(make([]byte, 60))))
	}
	assert.Zero(t, h.crit)
	assert.Equal(t, 3, e.PendingAcks())
	assert.Empty(t, h.acks)
	assert.Nil(t, e.PacketRx(1))

	assert.Equal(t, 3, e.AckPending())
	assert.Equal(t, []mac.AckResult{mac.AckTxErr, mac.AckTxErr, mac.AckTxErr}, h.acks)
}

func TestDeinitializeReturnsQueues(t *testing.T) {
	e := New(Options{TxAck: AckOnTasks})
	h := newHost()
	open(t, e, h)

	require.Equal(t, mac.ResOK, e.PacketTx(1, txPacket(make([]byte, 60))))
	require.Equal(t, 1, e.PendingAcks())
	require.Len(t, h.live, 1)

	e.Close(1)
	e.Deinitialize(1)
	assert.Equal(t, []mac.AckResult{mac.AckLinkDown}, h.acks)
	assert.Empty(t, h.live)
	assert.Zero(t, h.heap)
}

func TestTransmitErrors(t *testing.T) {
	h := newHost()
	e := New(Options{TxResult: mac.ResQueueTxFull})
	open(t, e, h)
	assert.Equal(t, mac.ResQueueTxFull, e.PacketTx(1, txPacket(make([]byte, 60))))

	e = New(Options{})
	assert.Equal(t, mac.ResPacketErr, e.PacketTx(1, nil))
	assert.Equal(t, mac.ResInstanceErr, e.PacketTx(1, txPacket(make([]byte, 60))))

	open(t, e, h)
	e.SetLinkDown(true)
	assert.False(t, e.LinkCheck(1))
	assert.Equal(t, mac.ResOpErr, e.PacketTx(1, txPacket(make([]byte, 60))))
	assert.Empty(t, h.acks)
}
