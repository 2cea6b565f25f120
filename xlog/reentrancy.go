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

package xlog

import "github.com/jtolds/gls"

// Append and Confirm are documented as single-writer, non-reentrant
// (§5): nothing calls back into a Writer's own methods from inside one
// of its operations. gls carries a per-goroutine tag across the call so
// a violation — typically a logging hook or follow callback that calls
// back into the writer it's running under — is caught and logged
// instead of corrupting wet_rows silently.
const writerGuardKey = "xlog.writer"

var writerGuardMgr = gls.NewContextManager()

func (w *Writer) guarded(op string, body func()) {
	if v, already := writerGuardMgr.GetValue(writerGuardKey); already {
		if v == w {
			w.log.Errorf("xlog: reentrant %s call on %s", op, w.path)
		}
	}
	writerGuardMgr.SetValues(gls.Values{writerGuardKey: w}, body)
}
