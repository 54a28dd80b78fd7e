// Package barrier implements the reusable counting barrier that backs
// SyncThreads inside an emulated thread block.
//
// A Barrier counts arrivals per generation. When the last of the expected
// parties arrives, every waiter of that generation is released together and
// the generation advances, so a fast party that reaches the next sync point
// is counted against the next round and never against a stale one.
//
// Usage errors that would otherwise hang the block are reported in-band where
// they can be detected: a party that leaves the block while the remaining
// parties are all waiting breaks the barrier with ErrDivergence.
package barrier

import (
	"errors"
	"sync"
)

var (
	// ErrBroken is the default cause used by Break.
	ErrBroken = errors.New("barrier: broken")

	// ErrDivergence reports that the parties of a block did not all reach
	// the same sequence of sync points.
	ErrDivergence = errors.New("barrier: threads of the block diverged at a sync point")
)

// Barrier is a generation-counted counting barrier.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	arrived    int
	left       int
	generation uint64
	cause      error
}

// New returns a barrier for the given number of parties.
func New(parties int) *Barrier {
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until every party has called Wait for the current generation.
// It returns nil once the round completes, or the cause the barrier was
// broken with.
func (b *Barrier) Wait() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cause != nil {
		return b.cause
	}

	gen := b.generation
	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.generation++
		b.cond.Broadcast()
		return nil
	}
	if b.left > 0 && b.arrived+b.left == b.parties {
		b.breakLocked(ErrDivergence)
		return b.cause
	}

	for gen == b.generation && b.cause == nil {
		b.cond.Wait()
	}
	if gen != b.generation {
		// The round completed before the barrier was broken.
		return nil
	}
	return b.cause
}

// Leave records that a party finished without further sync points.
func (b *Barrier) Leave() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.left++
	if b.cause == nil && b.arrived > 0 && b.arrived+b.left == b.parties {
		b.breakLocked(ErrDivergence)
	}
}

// Break releases every current and future waiter with cause. The first
// cause wins. A nil cause is replaced by ErrBroken.
func (b *Barrier) Break(cause error) {
	if cause == nil {
		cause = ErrBroken
	}
	b.mu.Lock()
	b.breakLocked(cause)
	b.mu.Unlock()
}

func (b *Barrier) breakLocked(cause error) {
	if b.cause == nil {
		b.cause = cause
	}
	b.cond.Broadcast()
}

// Reset prepares the barrier for a new set of parties. It must not be
// called while any party is waiting. The generation counter is preserved.
func (b *Barrier) Reset(parties int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.parties = parties
	b.arrived = 0
	b.left = 0
	b.cause = nil
}

// Err returns the cause the barrier was broken with, if any.
func (b *Barrier) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cause
}

// Generation returns the number of completed rounds.
func (b *Barrier) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}
