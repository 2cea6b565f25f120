package arena

import (
	"sync"

	nlrm "github.com/launix-de/NonLockingReadMap"
)

// Pool hands out fresh arena references to successive Msg builds and
// reclaims them per §4.5's shared-resource discipline: "build one Msg,
// drain it via writev, drop it, then gc() before constructing the next
// batch." Pool never resets an arena still referenced by a live Node;
// instead it retires it into a new generation.
//
// live tracks, for diagnostics and tests, which generation indices
// still have at least one outstanding reference — a direct reuse of
// NonLockingReadMap's NonBlockingBitMap, the same read-mostly
// concurrent bitmap storage/transaction.go uses for its per-shard
// overlay visibility bitmap.
type Pool struct {
	mu          sync.Mutex
	slabSize    int
	gcLimit     int
	generations []*Arena
	live        nlrm.NonBlockingBitMap
	current     int
}

// NewPool creates a pool whose arenas use slabSize-byte slabs and are
// reset or retired by GC once their allocated size exceeds gcLimit.
func NewPool(slabSize, gcLimit int) *Pool {
	p := &Pool{slabSize: slabSize, gcLimit: gcLimit}
	p.generations = append(p.generations, New(slabSize))
	p.live.Set(0, true)
	return p
}

// Fresh returns the pool's current arena, referenced once on behalf of
// the caller (typically a netmsg.Msg). The caller must Unref it
// exactly once when done.
func (p *Pool) Fresh() *Arena {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.generations[p.current]
	a.Ref()
	return a
}

// GC does nothing while the current arena's allocated size is at or
// under the configured limit. Once it is over the limit, GC resets the
// arena in place if it has no references beyond the pool's own
// bookkeeping slot; otherwise it retires the current arena (marking it
// no longer "current" but leaving it alive for whoever still holds a
// reference) and starts a fresh generation. Per §5, callers must only
// invoke GC when no Msg still holds live nodes built from this pool's
// current generation.
func (p *Pool) GC() {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.generations[p.current]
	if a.Size() <= p.gcLimit {
		return
	}
	if a.RefCount() <= 1 {
		a.Reset()
		return
	}
	p.live.Set(uint32(p.current), false)
	next := New(p.slabSize)
	p.generations = append(p.generations, next)
	p.current++
	p.live.Set(uint32(p.current), true)
}

// LiveGenerations reports which generation indices still show a live
// bit set. Diagnostic only; correctness never depends on it, the
// refcount on each Arena does.
func (p *Pool) LiveGenerations() []uint32 {
	var out []uint32
	p.live.Iterate(func(i uint32) { out = append(out, i) })
	return out
}

// Generations reports how many arena generations this pool has ever
// allocated; tests use it to confirm GC retires rather than corrupts a
// still-referenced arena.
func (p *Pool) Generations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.generations)
}
