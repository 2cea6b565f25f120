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

package netmsg

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxIovPerCall caps how many iovs a single writev(2) call flattens,
// matching the kernel's own practical ceiling (§4.5).
const maxIovPerCall = 1024

// Writev drains as much of the queued bytes as fd accepts. EINTR is
// retried internally. An error before any progress is propagated as-is;
// after partial progress, the bytes actually sent are returned alongside
// the error so the caller can see both. Once every queued byte has
// drained, Clear is invoked.
func (m *Msg) Writev(fd int) (n int, err error) {
	m.guarded("Writev", func() {
		n, err = m.writevLocked(fd)
	})
	return
}

func (m *Msg) writevLocked(fd int) (int, error) {
	if m.bytes == 0 {
		return 0, nil
	}

	for {
		vecs := m.flatten(maxIovPerCall)
		n, err := unix.Writev(fd, vecs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if n <= 0 {
				return 0, err
			}
			m.advance(int64(n))
			return n, err
		}
		m.advance(int64(n))
		return n, nil
	}
}

func (m *Msg) flatten(max int) [][]byte {
	vecs := make([][]byte, 0, max)
	for _, nd := range m.nodes {
		for i := 0; i < nd.n; i++ {
			vecs = append(vecs, nd.iov[i].bytes())
			if len(vecs) == max {
				return vecs
			}
		}
	}
	return vecs
}

// advance pops whole nodes consumed by n bytes from the front of the
// queue and rewrites the partially-consumed boundary iov in place.
func (m *Msg) advance(n int64) {
	remaining := n
	for remaining > 0 && len(m.nodes) > 0 {
		nd := m.nodes[0]
		consumed := m.advanceNode(nd, remaining)
		remaining -= consumed
		if nd.n == 0 {
			m.nodes = m.nodes[1:]
		} else {
			break
		}
	}
	m.bytes -= n
	if m.bytes == 0 {
		m.clearLocked()
	}
}

// advanceNode consumes up to n bytes from the front of nd's iov list,
// decrementing the ref of any fully-consumed ref-bearing iov, rewriting
// a partially-consumed boundary iov's base/len in place, and
// compacting the remaining entries down to index 0.
func (m *Msg) advanceNode(nd *Node, n int64) int64 {
	var consumed int64
	i := 0
	for i < nd.n && n > 0 {
		s := nd.iov[i]
		if int64(s.len) <= n {
			consumed += int64(s.len)
			n -= int64(s.len)
			if nd.refs[i].hasRef {
				m.unrefOne(nd.refs[i].ref)
			}
			i++
			continue
		}
		nd.iov[i] = ioSlice{base: unsafe.Pointer(uintptr(s.base) + uintptr(n)), len: s.len - int(n)}
		consumed += n
		n = 0
	}

	kept := nd.n - i
	copy(nd.iov[:kept], nd.iov[i:nd.n])
	copy(nd.refs[:kept], nd.refs[i:nd.n])
	for j := kept; j < nd.n; j++ {
		nd.iov[j] = ioSlice{}
		nd.refs[j] = nodeRef{}
	}
	nd.n = kept
	return consumed
}
