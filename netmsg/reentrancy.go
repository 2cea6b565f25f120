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

import "github.com/jtolds/gls"

// A Msg is single-writer, single-drainer: nothing calls back into one
// of its own methods from inside another (a RefObject/UnrefObject hook
// that turns around and appends to the same Msg, say). gls carries a
// per-goroutine tag across the call so a violation is caught and
// logged instead of corrupting nodes/bytes silently — the same pattern
// xlog.Writer uses for Append/Confirm.
const msgGuardKey = "netmsg.msg"

var msgGuardMgr = gls.NewContextManager()

func (m *Msg) guarded(op string, body func()) {
	if v, already := msgGuardMgr.GetValue(msgGuardKey); already {
		if v == m {
			m.log.Errorf("netmsg: reentrant %s call", op)
		}
	}
	msgGuardMgr.SetValues(gls.Values{msgGuardKey: m}, body)
}
