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

// Package netmsg implements the scatter-gather outbound message buffer:
// chunked iovec nodes backed by an arena, external reference tracking,
// mark/rewind checkpointing, and a writev drain loop with partial-send
// bookkeeping.
package netmsg

import (
	"unsafe"

	"github.com/launix-de/octolog/arena"
	"github.com/launix-de/octolog/logx"
)

// nodeCapacity is the per-node iov/ref array size.
const nodeCapacity = 64

// Ref is a tagged reference word: LSB=1 selects an externally-owned
// bulk-unref handle, LSB=0 a reference-counted object pointer. The same
// slot stores both kinds, so the bit is load-bearing (§9).
type Ref uint64

func (r Ref) external() bool { return r&1 == 1 }

// Hooks lets the host react to the refcount transitions NetMsg drives.
// UnrefExternal is called once per dropped node with every external ref
// that node carried, not once per iov (§4.5).
type Hooks interface {
	UnrefExternal(refs []Ref)
	RefObject(ref Ref)
	UnrefObject(ref Ref)
}

// NopHooks discards every callback; useful in tests that don't care
// about reference lifecycle.
type NopHooks struct{}

func (NopHooks) UnrefExternal([]Ref) {}
func (NopHooks) RefObject(Ref)       {}
func (NopHooks) UnrefObject(Ref)     {}

// ioSlice is a (base, len) pair stored as a raw pointer rather than a
// Go slice header so that N2 coalescing can extend len in place without
// fighting the three-index-slice capacity cap arena.Alloc hands out.
type ioSlice struct {
	base unsafe.Pointer
	len  int
}

func sliceOf(b []byte) ioSlice {
	if len(b) == 0 {
		return ioSlice{}
	}
	return ioSlice{base: unsafe.Pointer(&b[0]), len: len(b)}
}

func (s ioSlice) bytes() []byte {
	if s.len == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(s.base), s.len)
}

func (s ioSlice) end() unsafe.Pointer {
	return unsafe.Pointer(uintptr(s.base) + uintptr(s.len))
}

func contiguous(prev ioSlice, next []byte) bool {
	if prev.len == 0 || len(next) == 0 {
		return false
	}
	return prev.end() == unsafe.Pointer(&next[0])
}

type nodeRef struct {
	ref    Ref
	hasRef bool
}

// Node is one heap-boxed chunk of up to nodeCapacity iovs. Nodes are
// allocated on the Go heap with stable addresses (no relocation on
// append), satisfying last_iov's pointer-stability requirement (§9).
type Node struct {
	iov   [nodeCapacity]ioSlice
	refs  [nodeCapacity]nodeRef
	n     int
	arena *arena.Arena
}

func (nd *Node) full() bool { return nd.n >= nodeCapacity }

// Msg accumulates an outbound byte stream as a scatter list.
type Msg struct {
	bytes    int64
	pool     *arena.Pool
	arena    *arena.Arena
	tbuf     *arena.TBuf
	nodes    []*Node
	haveLast bool
	lastIov  ioSlice
	hooks    Hooks
	log      logx.Sink
}

// New creates an empty Msg drawing arena-backed allocations from pool.
// hooks may be nil, in which case NopHooks is used. log may be nil, in
// which case logx.Default is used.
func New(pool *arena.Pool, hooks Hooks, log logx.Sink) *Msg {
	if hooks == nil {
		hooks = NopHooks{}
	}
	if log == nil {
		log = logx.Default
	}
	return &Msg{pool: pool, hooks: hooks, log: log}
}

// Bytes returns the total queued byte count (N1).
func (m *Msg) Bytes() int64 { return m.bytes }

func (m *Msg) ensureNode() *Node {
	if m.arena == nil {
		m.arena = m.pool.Fresh()
	}
	if len(m.nodes) == 0 || m.nodes[len(m.nodes)-1].full() {
		m.nodes = append(m.nodes, &Node{arena: m.arena})
		m.haveLast = false
	}
	return m.nodes[len(m.nodes)-1]
}

// Add appends base. If base begins exactly where the current fast-merge
// iov ends, it extends that iov in place (N2); otherwise it pushes a
// fresh iov, allocating a new node if the current one is full.
func (m *Msg) Add(base []byte) {
	m.guarded("Add", func() {
		m.addLocked(base)
	})
}

func (m *Msg) addLocked(base []byte) {
	if len(base) == 0 {
		return
	}
	if m.haveLast && contiguous(m.lastIov, base) {
		nd := m.nodes[len(m.nodes)-1]
		nd.iov[nd.n-1].len += len(base)
		m.lastIov = nd.iov[nd.n-1]
		m.bytes += int64(len(base))
		return
	}
	nd := m.ensureNode()
	s := sliceOf(base)
	nd.iov[nd.n] = s
	nd.n++
	m.lastIov = s
	m.haveLast = true
	m.bytes += int64(len(base))
}

// AddAlloc reserves n bytes from the current arena generation's TBuf,
// appends them as an iov, and returns the writable memory for the
// caller to fill in place.
func (m *Msg) AddAlloc(n int) (buf []byte) {
	m.guarded("AddAlloc", func() {
		buf = m.addAllocLocked(n)
	})
	return
}

func (m *Msg) addAllocLocked(n int) []byte {
	if m.arena == nil {
		m.arena = m.pool.Fresh()
	}
	if m.tbuf == nil {
		m.tbuf = arena.NewTBuf(m.arena, n)
	}
	buf := m.tbuf.Reserve(n)
	m.addLocked(buf)
	return buf
}

// AddDup copies src into arena-owned memory and appends it.
func (m *Msg) AddDup(src []byte) {
	m.guarded("AddDup", func() {
		dst := m.addAllocLocked(len(src))
		copy(dst, src)
	})
}

// AddRef always creates a fresh iov paired with ref; per N2 it never
// coalesces with a ref-free predecessor, and it never becomes the next
// fast-merge target either (N3).
func (m *Msg) AddRef(ref Ref, base []byte) {
	m.guarded("AddRef", func() {
		m.addRefLocked(ref, base)
	})
}

func (m *Msg) addRefLocked(ref Ref, base []byte) {
	nd := m.ensureNode()
	s := sliceOf(base)
	nd.iov[nd.n] = s
	nd.refs[nd.n] = nodeRef{ref: ref, hasRef: true}
	nd.n++
	m.bytes += int64(len(base))
	m.haveLast = false
}

// AddObj is AddRef plus an immediate refcount increment via
// Hooks.RefObject. ref's LSB must be 0 (object pointer, not an external
// handle) — the assertion in §9 that the slot's tag bit is meaningful.
func (m *Msg) AddObj(ref Ref, base []byte) {
	if ref.external() {
		panic("netmsg: AddObj requires an object-pointer ref (ref&1 must be 0)")
	}
	m.guarded("AddObj", func() {
		m.hooks.RefObject(ref)
		m.addRefLocked(ref, base)
	})
}

// Clear drops every node, decrementing every live reference exactly
// once, and releases the Msg's hold on its arena generation.
func (m *Msg) Clear() {
	m.guarded("Clear", func() {
		m.clearLocked()
	})
}

func (m *Msg) clearLocked() {
	for _, nd := range m.nodes {
		m.dropNode(nd)
	}
	m.nodes = nil
	m.bytes = 0
	m.haveLast = false
	if m.arena != nil {
		m.arena.Unref()
		m.arena = nil
	}
	m.tbuf = nil
}

func (m *Msg) dropNode(nd *Node) {
	var externals []Ref
	for i := 0; i < nd.n; i++ {
		if !nd.refs[i].hasRef {
			continue
		}
		r := nd.refs[i].ref
		if r.external() {
			externals = append(externals, r)
		} else {
			m.hooks.UnrefObject(r)
		}
	}
	if len(externals) > 0 {
		m.hooks.UnrefExternal(externals)
	}
}

// unrefOne decrements a single ref removed by a partial trim (Rewind
// cutting inside a still-live node, or writev consuming part of it),
// as opposed to a whole node being dropped via dropNode.
func (m *Msg) unrefOne(r Ref) {
	if r.external() {
		m.hooks.UnrefExternal([]Ref{r})
	} else {
		m.hooks.UnrefObject(r)
	}
}
