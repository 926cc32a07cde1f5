// Package palloc hands out fixed-size blocks from a preallocated arena.
//
// The thread system takes one block per control block. Blocks never move, so
// a pointer stays valid until the block is freed; a Handle adds a generation
// so a stale reference to a reused block can be detected.
package palloc

import (
	"errors"

	"ember/kernel/debug"
)

// ErrExhausted is returned when every block is in use.
var ErrExhausted = errors.New("palloc: out of blocks")

// Flags modify Get.
type Flags uint8

const (
	// Zero clears the block before returning it.
	Zero Flags = 1 << iota
	// Assert panics instead of failing when the pool is exhausted.
	Assert
)

// Handle names one allocation of one block.
type Handle struct {
	index int32
	gen   uint32
}

// Valid reports whether h was ever issued. The zero Handle is invalid.
func (h Handle) Valid() bool { return h.gen != 0 }

type block[T any] struct {
	v     T
	gen   uint32
	inUse bool
}

// Pool is a fixed-capacity arena of T.
//
// Pool is not synchronized: the kernel calls it with interrupts disabled or
// from the only running thread.
type Pool[T any] struct {
	blocks []block[T]
	index  map[*T]int32
	free   []int32
	used   int
}

// New creates a pool of n blocks.
func New[T any](n int) *Pool[T] {
	p := &Pool[T]{
		blocks: make([]block[T], n),
		index:  make(map[*T]int32, n),
		free:   make([]int32, 0, n),
	}
	for i := n - 1; i >= 0; i-- {
		p.index[&p.blocks[i].v] = int32(i)
		p.free = append(p.free, int32(i))
	}
	return p
}

// Get takes a free block. It returns ErrExhausted when none is left, unless
// flags has Assert.
func (p *Pool[T]) Get(flags Flags) (*T, error) {
	if len(p.free) == 0 {
		if flags&Assert != 0 {
			debug.Panicf("palloc_get: out of blocks")
		}
		return nil, ErrExhausted
	}

	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	b := &p.blocks[i]
	b.inUse = true
	b.gen++
	if b.gen == 0 {
		b.gen = 1
	}
	if flags&Zero != 0 {
		var zero T
		b.v = zero
	}
	p.used++
	return &b.v, nil
}

// Free returns v's block to the pool. v must have come from Get on this pool
// and must not be freed twice.
func (p *Pool[T]) Free(v *T) {
	i, ok := p.index[v]
	debug.Assert(ok, "block %p does not belong to this pool", v)

	b := &p.blocks[i]
	debug.Assert(b.inUse, "block %d freed twice", i)

	b.inUse = false
	p.free = append(p.free, i)
	p.used--
}

// Handle returns the handle of the live allocation v.
func (p *Pool[T]) Handle(v *T) Handle {
	i, ok := p.index[v]
	debug.Assert(ok, "block %p does not belong to this pool", v)
	b := &p.blocks[i]
	debug.Assert(b.inUse, "handle of free block %d", i)
	return Handle{index: i, gen: b.gen}
}

// Lookup returns the block named by h, or false once that allocation has
// been freed (even if the block was reused since).
func (p *Pool[T]) Lookup(h Handle) (*T, bool) {
	if !h.Valid() || h.index < 0 || int(h.index) >= len(p.blocks) {
		return nil, false
	}
	b := &p.blocks[h.index]
	if !b.inUse || b.gen != h.gen {
		return nil, false
	}
	return &b.v, true
}

// InUse returns the number of allocated blocks.
func (p *Pool[T]) InUse() int { return p.used }

// Cap returns the pool's capacity.
func (p *Pool[T]) Cap() int { return len(p.blocks) }
