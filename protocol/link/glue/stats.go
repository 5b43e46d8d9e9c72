package glue

import "fmt"

// Counters returns every glue counter by name: the Stats fields, pool usage
// and per interface event statistics.
func (g *Glue) Counters() map[string]uint64 {
	out := g.stats.Snapshot()

	out["Pool.RX.Capacity"] = uint64(g.rxPool.capacity())
	out["Pool.RX.Free"] = uint64(g.rxPool.available())
	out["Pool.RX.Allocs"] = g.rxPool.allocs.Load()
	out["Pool.RX.Releases"] = g.rxPool.releases.Load()
	out["Pool.TX.Capacity"] = uint64(g.txPool.capacity())
	out["Pool.TX.Free"] = uint64(g.txPool.available())
	out["Pool.TX.Allocs"] = g.txPool.allocs.Load()
	out["Pool.TX.Releases"] = g.txPool.releases.Load()

	bs := g.buffers.Stats()
	out["Buffers.Free"] = uint64(bs.Free)
	out["Buffers.EmptyRequests"] = bs.EmptyRequests
	out["Buffers.InvalidReleases"] = bs.InvalidReleases

	hs := g.heap.Stats()
	out["Heap.InUse"] = uint64(hs.InUse)
	out["Heap.Failures"] = hs.Failures

	for _, d := range g.ifs {
		p := fmt.Sprintf("MAC%d.", d.ix)
		out[p+"Events"] = d.totEvents.Load()
		out[p+"ErrorEvents"] = uint64(d.errorEvents.Load())
		out[p+"MaxRxBurst"] = uint64(d.maxRxBurst.Load())
	}
	return out
}
