package mac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGapConstants(t *testing.T) {
	assert.Equal(t, 48, GapSize)
	assert.Equal(t, 0, GapSize%4)
	assert.Equal(t, -48, GapOffset)
}

func TestGapRoundTrip(t *testing.T) {
	seg := &Segment{Storage: make([]byte, 256), BufferOff: GapSize}
	want := GapDescriptor{Owner: OwnerTx, Index: 17, Gen: 0xdeadbeef}
	require.NoError(t, PutGap(seg, want))

	got, err := GetGap(seg)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ClearGap(seg)
	_, err = GetGap(seg)
	assert.ErrorIs(t, err, ErrGapMagic)
}

func TestGapBounds(t *testing.T) {
	cases := []struct {
		name string
		off  int
		size int
		ok   bool
	}{
		{"exact", GapSize, GapSize, true},
		{"room after", GapSize, 1500, true},
		{"short head", GapSize - 1, 1500, false},
		{"past end", 100, 99, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, GapFits(tc.off, tc.size))
			seg := &Segment{Storage: make([]byte, tc.size), BufferOff: tc.off}
			err := PutGap(seg, GapDescriptor{Owner: OwnerRx})
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrGapBounds)
			}
		})
	}
}

func TestPacketSegments(t *testing.T) {
	s2 := &Segment{}
	s1 := &Segment{Next: s2}
	p := &Packet{Seg: s1}
	assert.Equal(t, 2, p.Segments())
	assert.False(t, p.Ack())

	called := false
	p.AckFunc = func(pkt *Packet, param any) bool {
		called = pkt == p && param == "x"
		return true
	}
	p.AckParam = "x"
	assert.True(t, p.Ack())
	assert.True(t, called)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "ready", StatusReady.String())
	assert.Equal(t, "error(-1)", StatusError.String())
	assert.Equal(t, "tx queue full", ResQueueTxFull.String())
	assert.Equal(t, "result(42)", Result(42).String())
	assert.Equal(t, "loopback", ModuleLoopback.String())
	assert.Equal(t, "tx", OwnerTx.String())
}
