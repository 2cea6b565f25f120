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

// Package xlog implements the streaming reader and group-commit writer
// for a single xlog/snap file: the row framing, torn-tail tolerance,
// and the durability state machine that sits on top of package row.
package xlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"time"

	"github.com/launix-de/octolog/logx"
	"github.com/launix-de/octolog/row"
	"github.com/launix-de/octolog/watcher"
	"github.com/launix-de/octolog/xlogdir"
)

// ROW_MARKER and EOF_MARKER are the little-endian u32 preambles that
// introduce a row or mark a clean close, respectively (§6).
const (
	RowMarker uint32 = 0xba0babed
	EOFMarker uint32 = 0x10adab1e
)

// Reader streams rows out of a single xlog/snap file, tolerating a torn
// tail left by a crash mid-write.
type Reader struct {
	f      *os.File
	br     *bufio.Reader
	path   string
	Header xlogdir.HeaderBlock
	eof    bool // last ReadRow call hit a boundary (clean or terminal)
	terminal bool // EOF_MARKER seen, or a fatal read error: no further ReadRow calls will succeed
	log    logx.Sink
	w      *watcher.Watcher
}

// Open opens path, validates its filetype literal against wantFiletype
// ("XLOG\n" or "SNAP\n") and its version against xlogdir.Version, and
// parses the header block. log may be nil, in which case logx.Default
// is used.
func Open(path, wantFiletype string, log logx.Sink) (*Reader, error) {
	if log == nil {
		log = logx.Default
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	hb, err := xlogdir.ParseHeaderBlock(br)
	if err != nil {
		f.Close()
		return nil, err
	}
	if hb.Filetype != wantFiletype {
		f.Close()
		return nil, xlogdir.ErrInvalidFiletype
	}
	if hb.Version != xlogdir.Version {
		f.Close()
		return nil, xlogdir.ErrInvalidVersion
	}
	return &Reader{f: f, br: br, path: path, Header: hb, log: log}, nil
}

// Close stops any active follow watcher and closes the underlying file.
func (r *Reader) Close() error {
	if r.w != nil {
		r.w.Stop()
	}
	return r.f.Close()
}

// EOF reports whether the last ReadRow call observed a stream boundary,
// clean or terminal. In follow mode a clean (non-terminal) boundary is
// transient: a subsequent stat-change-triggered ReadRow call resumes
// reading rather than repeating (nil, nil) forever (§4.3's "a subsequent
// stat change prompts re-read").
func (r *Reader) EOF() bool { return r.eof }

// ReadRow reads the next row. It returns (row, nil) normally, (nil,
// nil) at a clean end of stream, or (nil, err) on a torn tail, invalid
// marker, or a row-level integrity failure (see package row). An
// EOF_MARKER, a torn tail, or any row-level error is terminal: every
// subsequent call returns (nil, nil) without touching the file again. A
// clean boundary with no marker at all (the file simply has no more
// bytes yet, because its writer hasn't confirmed further rows) is not
// terminal — the next call tries the underlying reader again, which is
// what lets Follow's callback resume a paused read after the file grows.
func (r *Reader) ReadRow() (*row.Row, error) {
	if r.terminal {
		return nil, nil
	}

	var markerBuf [4]byte
	n, err := io.ReadFull(r.br, markerBuf[:])
	if err != nil {
		r.eof = true
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, nil
		}
		r.terminal = true
		return nil, ErrUnexpectedEOF
	}
	r.eof = false

	switch marker := binary.LittleEndian.Uint32(markerBuf[:]); marker {
	case EOFMarker:
		r.eof = true
		r.terminal = true
		return nil, nil
	case RowMarker:
		rw, err := row.Read(r.br)
		if err != nil {
			r.eof = true
			r.terminal = true
			if errors.Is(err, row.ErrShortRead) {
				return nil, ErrUnexpectedEOF
			}
			return nil, err
		}
		return rw, nil
	default:
		r.eof = true
		r.terminal = true
		return nil, &InvalidMarkerError{Got: marker}
	}
}

// Follow enables follow mode: callback fires whenever the file's size
// or mtime changes, polled at rescanDelay/10. Calling Follow while
// already active is a no-op; passing a nil callback stops the watcher.
func (r *Reader) Follow(rescanDelay time.Duration, callback func()) error {
	if callback == nil {
		if r.w != nil {
			r.w.Stop()
		}
		return nil
	}
	if r.w != nil && r.w.IsActive() {
		return nil
	}
	if r.w == nil {
		r.w = watcher.New(r.log)
	}
	interval := rescanDelay / 10
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if err := r.w.Init(callback, r.path, interval); err != nil {
		return err
	}
	r.w.Start()
	return nil
}
