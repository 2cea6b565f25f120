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

import (
	"errors"
	"fmt"
)

// ErrUnexpectedEOF is returned by ReadRow when the marker (or the row
// it introduces) is cut short mid-read — a torn tail, not a clean
// end-of-stream.
var ErrUnexpectedEOF = errors.New("xlog: unexpected eof (torn tail)")

// ErrHeaderNotWritten is returned by Append when WriteHeader has not
// run yet.
var ErrHeaderNotWritten = errors.New("xlog: header not written")

// ErrPoisoned is returned by Append when the writer is in the
// truncate_before_write state left by a failed Confirm; the caller
// must call RecoverTruncate before appending again.
var ErrPoisoned = errors.New("xlog: writer poisoned; call RecoverTruncate before the next append")

// InvalidMarkerError is returned when a row's leading marker is
// neither ROW_MARKER nor EOF_MARKER.
type InvalidMarkerError struct{ Got uint32 }

func (e *InvalidMarkerError) Error() string {
	return fmt.Sprintf("xlog: invalid row marker %#08x", e.Got)
}

// FlushFailedError wraps the underlying I/O error from a failed
// Confirm. The writer is left in the poisoned truncate_before_write
// state; RecoverTruncate must run before the next Append.
type FlushFailedError struct{ Err error }

func (e *FlushFailedError) Error() string {
	return fmt.Sprintf("xlog: confirm flush failed: %v", e.Err)
}

func (e *FlushFailedError) Unwrap() error { return e.Err }
