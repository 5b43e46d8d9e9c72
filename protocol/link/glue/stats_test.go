package glue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qxcheng/macglue/pkg/buffer"
	"github.com/qxcheng/macglue/pkg/log"
	"github.com/qxcheng/macglue/protocol/link/loopback"
)

func TestCounters(t *testing.T) {
	ep := loopback.New(loopback.Options{})
	h := newHarness(t, Options{RxPackets: 8, TxPackets: 4, BufferCount: 10}, ep)
	h.bringUp(t)
	g := h.g

	require.Nil(t, g.Transmit(txBuffer(t, g, []byte("ping"))))
	g.Tasks()
	h.releaseGot(t)

	got := g.Counters()
	want := map[string]uint64{
		"TX.Packets":          1,
		"TX.AckPackets":       1,
		"RX.ProcessedPackets": 1,
		"Pool.RX.Capacity":    8,
		"Pool.RX.Free":        8,
		"Pool.TX.Capacity":    4,
		"Pool.TX.Free":        4,
		"Pool.TX.Allocs":      1,
		"Pool.TX.Releases":    1,
		"Buffers.Free":        10,
		"Heap.InUse":          256,
		"MAC0.ErrorEvents":    0,
		"MAC0.MaxRxBurst":     1,
	}
	picked := make(map[string]uint64, len(want))
	for k := range want {
		v, ok := got[k]
		require.True(t, ok, "missing counter %s", k)
		picked[k] = v
	}
	if diff := cmp.Diff(want, picked); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
	assert.NotZero(t, got["MAC0.Events"])
}

func TestCollector(t *testing.T) {
	h := newHarness(t, Options{}, loopback.New(loopback.Options{}), loopback.New(loopback.Options{FailOpen: true}))
	h.bringUp(t)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(h.g, "macglue")))
	mfs, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]int{}
	for _, mf := range mfs {
		byName[mf.GetName()] = len(mf.GetMetric())
	}
	assert.Equal(t, len(h.g.Counters()), byName["macglue_glue_counter"])
	assert.Equal(t, 1, byName["macglue_glue_state"])
	assert.Equal(t, 2, byName["macglue_glue_interface_ready"])

	for _, mf := range mfs {
		if mf.GetName() != "macglue_glue_interface_ready" {
			continue
		}
		ready := map[string]float64{}
		for _, m := range mf.GetMetric() {
			ready[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
		}
		assert.Equal(t, map[string]float64{"0": 1, "1": 0}, ready)
	}
}

func TestRunDeliversUntilCancelled(t *testing.T) {
	ep := loopback.New(loopback.Options{})
	got := make(chan *buffer.Packet, 4)
	g, err := New([]NetworkConfig{{Driver: ep}}, Options{
		PollSleep:    -1,
		TickInterval: time.Millisecond,
		Logger:       log.Discard(),
		Receive:      func(p *buffer.Packet) { got <- p },
	})
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool { return g.Status() == ResultOK }, 2*time.Second, time.Millisecond)

	b, aerr := g.Buffers().Allocate(TxHeaderRoom)
	require.NoError(t, aerr)
	b.Append([]byte("over the loop"))
	b.PushHeader(14)
	require.Nil(t, g.Transmit(b))

	select {
	case p := <-got:
		assert.Equal(t, 14+len("over the loop"), p.TotalLength())
		require.NoError(t, buffer.Release(p))
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	g.Close()
	assert.Equal(t, g.Buffers().Capacity(), g.Buffers().Available())
}
