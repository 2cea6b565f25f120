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

// Mark is a checkpoint over a Msg's append operations, restorable via
// Rewind. An empty Mark (valid=false) means "no nodes existed yet".
type Mark struct {
	valid   bool
	nodeIdx int
	iovLen  int
	hadLast bool
	lastLen int
}

// GetMark snapshots the current append position.
func (m *Msg) GetMark() Mark {
	if len(m.nodes) == 0 {
		return Mark{}
	}
	idx := len(m.nodes) - 1
	nd := m.nodes[idx]
	mk := Mark{valid: true, nodeIdx: idx, iovLen: nd.n, hadLast: m.haveLast}
	if m.haveLast {
		mk.lastLen = m.lastIov.len
	}
	return mk
}

// Rewind drops every node appended after mk, trims the node that
// contained mk back to its recorded iov count (restoring the trailing
// iov's pre-mark length even if later Adds extended it in place), and
// decrements every external reference added in the interval exactly
// once (P7).
func (m *Msg) Rewind(mk Mark) {
	m.guarded("Rewind", func() {
		m.rewindLocked(mk)
	})
}

func (m *Msg) rewindLocked(mk Mark) {
	if !mk.valid {
		m.clearLocked()
		return
	}

	for i := len(m.nodes) - 1; i > mk.nodeIdx; i-- {
		m.dropNode(m.nodes[i])
	}
	m.nodes = m.nodes[:mk.nodeIdx+1]

	nd := m.nodes[mk.nodeIdx]
	for i := mk.iovLen; i < nd.n; i++ {
		m.bytes -= int64(nd.iov[i].len)
		if nd.refs[i].hasRef {
			m.unrefOne(nd.refs[i].ref)
			nd.refs[i] = nodeRef{}
		}
		nd.iov[i] = ioSlice{}
	}
	nd.n = mk.iovLen

	m.haveLast = false
	if mk.hadLast && mk.iovLen > 0 {
		s := nd.iov[mk.iovLen-1]
		m.bytes -= int64(s.len) - int64(mk.lastLen)
		s.len = mk.lastLen
		nd.iov[mk.iovLen-1] = s
		m.lastIov = s
		m.haveLast = true
	}
}
