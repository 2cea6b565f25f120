/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package arena implements a reference-counted bump allocator used as
// the backing store for netmsg buffers. Growth appends a new slab
// instead of reallocating the existing one, so every []byte handed out
// by Alloc stays valid for the lifetime of the arena — a plain growing
// []byte would invalidate earlier allocations the moment it reallocates,
// which is fatal once an iovec points at that memory.
package arena

import "sync/atomic"

type slab struct {
	buf []byte
	pos int
}

// Arena is a bump-allocation region. Alloc never fails with an error;
// it grows by appending a fresh slab. Reset releases all but the first
// slab and rewinds the bump pointer, the bulk-release operation the
// GLOSSARY calls out for arenas.
type Arena struct {
	slabSize int
	slabs    []*slab
	refs     atomic.Int32
}

// New creates an arena whose slabs are sized slabSize (a single
// allocation larger than slabSize gets its own oversized slab). The
// returned Arena starts with a refcount of 1, held by the caller.
func New(slabSize int) *Arena {
	if slabSize <= 0 {
		slabSize = 64 * 1024
	}
	a := &Arena{slabSize: slabSize}
	a.slabs = append(a.slabs, &slab{buf: make([]byte, slabSize)})
	a.refs.Store(1)
	return a
}

// Alloc reserves n bytes and returns a slice over them. The slice
// remains valid until the arena is Reset or garbage collected by Go
// once every reference is dropped.
func (a *Arena) Alloc(n int) []byte {
	last := a.slabs[len(a.slabs)-1]
	if last.pos+n > len(last.buf) {
		size := a.slabSize
		if n > size {
			size = n
		}
		last = &slab{buf: make([]byte, size)}
		a.slabs = append(a.slabs, last)
	}
	b := last.buf[last.pos : last.pos+n : last.pos+n]
	last.pos += n
	return b
}

// Ref increments the arena's reference count. A netmsg.Msg holds exactly
// one reference per arena generation it allocates from, taken on its
// first node or AddAlloc and released by Clear.
func (a *Arena) Ref() { a.refs.Add(1) }

// Unref decrements the reference count. It does not free Go memory
// itself (the garbage collector does that once nothing points at the
// slabs); it exists so Pool.GC can tell whether an arena is still
// externally referenced before reclaiming it.
func (a *Arena) Unref() int32 { return a.refs.Add(-1) }

// RefCount reports the current reference count.
func (a *Arena) RefCount() int32 { return a.refs.Load() }

// Size returns the total bytes allocated from the arena so far, summed
// across every slab.
func (a *Arena) Size() int {
	var n int
	for _, s := range a.slabs {
		n += s.pos
	}
	return n
}

// Reset rewinds the arena to an empty state, keeping only the first
// slab (resized to its capacity, position zeroed) and dropping later
// slabs for the Go GC to reclaim. Callers must ensure no outstanding
// slice returned by Alloc is still in use — the same discipline §5
// requires of Pool.GC.
func (a *Arena) Reset() {
	if len(a.slabs) == 0 {
		return
	}
	first := a.slabs[0]
	first.pos = 0
	a.slabs = a.slabs[:1]
}
