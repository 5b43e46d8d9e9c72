// Package bytepool implements a fixed-size byte arena with first-fit
// allocation. It backs the heap handed to MAC drivers.
package bytepool

import (
	"errors"
	"sort"

	"github.com/qxcheng/macglue/pkg/tmutex"
)

// 分配粒度，与机器字对齐
const align = 4

var (
	// ErrNotOwned is returned by Free for a block that did not come from
	// this pool, or was already freed.
	ErrNotOwned = errors.New("bytepool: block not owned by pool")
	// ErrBadSize is returned by New for a non-positive size.
	ErrBadSize = errors.New("bytepool: bad pool size")
)

type extent struct {
	off, size int
}

// Stats is a snapshot of pool usage.
type Stats struct {
	Size     int
	InUse    int
	Allocs   uint64
	Frees    uint64
	Failures uint64
}

// Pool is a fixed-size byte arena. It is safe for concurrent use.
type Pool struct {
	mu    tmutex.Mutex
	arena []byte
	free  []extent // sorted by off, never adjacent
	used  map[*byte]extent
	stats Stats
}

// New creates a pool managing size bytes.
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, ErrBadSize
	}
	size = roundUp(size)
	p := &Pool{
		arena: make([]byte, size),
		free:  []extent{{0, size}},
		used:  make(map[*byte]extent),
	}
	p.mu.Init()
	p.stats.Size = size
	return p, nil
}

func roundUp(n int) int {
	return (n + align - 1) &^ (align - 1)
}

// Alloc returns a block of n bytes, or nil if n is zero or the pool cannot
// satisfy the request. Block contents are unspecified.
func (p *Pool) Alloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	want := roundUp(n)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.free {
		if e.size < want {
			continue
		}
		blk := extent{e.off, want}
		if e.size == want {
			p.free = append(p.free[:i], p.free[i+1:]...)
		} else {
			p.free[i] = extent{e.off + want, e.size - want}
		}
		b := p.arena[blk.off : blk.off+n : blk.off+want]
		p.used[&b[0]] = blk
		p.stats.InUse += want
		p.stats.Allocs++
		return b
	}
	p.stats.Failures++
	return nil
}

// Calloc returns a zeroed block of n*size bytes.
func (p *Pool) Calloc(n, size int) []byte {
	if n <= 0 || size <= 0 || n > int(^uint(0)>>1)/size {
		return nil
	}
	b := p.Alloc(n * size)
	clear(b)
	return b
}

// Free returns b to the pool. Freeing nil is a no-op.
func (p *Pool) Free(b []byte) error {
	if cap(b) == 0 {
		return nil
	}
	key := &b[:1][0]

	p.mu.Lock()
	defer p.mu.Unlock()

	blk, ok := p.used[key]
	if !ok {
		return ErrNotOwned
	}
	delete(p.used, key)
	p.stats.InUse -= blk.size
	p.stats.Frees++

	i := sort.Search(len(p.free), func(i int) bool { return p.free[i].off > blk.off })
	p.free = append(p.free, extent{})
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = blk

	// 与后继合并，再与前驱合并
	if i+1 < len(p.free) && p.free[i].off+p.free[i].size == p.free[i+1].off {
		p.free[i].size += p.free[i+1].size
		p.free = append(p.free[:i+1], p.free[i+2:]...)
	}
	if i > 0 && p.free[i-1].off+p.free[i-1].size == p.free[i].off {
		p.free[i-1].size += p.free[i].size
		p.free = append(p.free[:i], p.free[i+1:]...)
	}
	return nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Largest returns the size of the largest free extent.
func (p *Pool) Largest() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := 0
	for _, e := range p.free {
		if e.size > m {
			m = e.size
		}
	}
	return m
}
