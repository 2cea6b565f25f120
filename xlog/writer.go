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
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dc0d/onexit"
	units "github.com/docker/go-units"
	"golang.org/x/sys/unix"

	"github.com/launix-de/octolog/checkpoint"
	"github.com/launix-de/octolog/logx"
	"github.com/launix-de/octolog/row"
	"github.com/launix-de/octolog/xlogdir"
)

// rangeSyncThreshold is the confirmed-but-not-range-synced byte budget
// (§4.4) before a best-effort sync_file_range(WRITE) is issued.
const rangeSyncThreshold = 128 * 1024

// fadviseKeepTail is the trailing window (plus offset%4096, added at
// the call site) that FadviseDontNeed leaves resident.
const fadviseKeepTail = 128 * 1024

// Config carries the writer-wide settings §4.4 calls out: the category
// stamped onto category=00 rows, the mandatory header values, and the
// buffered-writer size (parsed the way the rest of the stack parses
// human-readable byte sizes, e.g. "64KiB").
type Config struct {
	Category        row.Category
	Product         string
	ProductVersion  string
	WriteBufferSize string // e.g. "64KiB"; defaults to 64KiB if empty/unparseable
	RescanDelay     time.Duration

	// Checkpoint, if set, is notified with (shard_id, lsn, scn, filename)
	// after every successful Confirm. Best-effort: a failure is logged
	// and never propagated, the same policy as a sync_file_range or
	// fadvise failure.
	Checkpoint checkpoint.Registry
}

// DefaultConfig returns the writer defaults named in §4.3/§4.4.
func DefaultConfig() Config {
	return Config{
		Product:         "octolog",
		ProductVersion:  xlogdir.Version[:len(xlogdir.Version)-1],
		WriteBufferSize: "64KiB",
		RescanDelay:     5 * time.Second,
	}
}

// Writer is a buffered, group-commit append path for one xlog/snap
// file. It is not safe for concurrent use by more than one goroutine at
// a time (§5); Append/Confirm guard against accidental reentrancy via
// package-level gls tagging (see reentrancy.go).
type Writer struct {
	dir  *xlogdir.Dir
	f    *os.File
	bw   *bufio.Writer
	log  logx.Sink

	startLSN       int64
	path           string // canonical (post-rename) path
	inprogressPath string

	category       row.Category
	product        string
	productVersion string
	checkpoint     checkpoint.Registry

	nextLSN             int64
	offset              int64
	syncOffset          int64
	wetRows             []int64
	lastShardID         uint16
	lastSCN             int64
	headerWritten       bool
	inprogress          bool
	truncateBeforeWrite bool
	closed              bool
}

// NewWriter creates a new .inprogress file in dir starting at lsn.
// WriteHeader must be called before the first Append.
func NewWriter(dir *xlogdir.Dir, cfg Config, lsn int64, log logx.Sink) (*Writer, error) {
	if log == nil {
		log = logx.Default
	}
	if cfg.Product == "" {
		cfg = DefaultConfig()
	}

	name := fmt.Sprintf("%020d.%s", lsn, dir.Suffix())
	inprogressName := name + ".inprogress"
	inprogressPath := filepath.Join(dir.Path(), inprogressName)

	f, err := os.OpenFile(inprogressPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	bufSize := 64 * 1024
	if cfg.WriteBufferSize != "" {
		if n, err := units.RAMInBytes(cfg.WriteBufferSize); err == nil && n > 0 {
			bufSize = int(n)
		} else if err != nil {
			log.Warningf("xlog: ignoring unparseable write buffer size %q: %v", cfg.WriteBufferSize, err)
		}
	}

	w := &Writer{
		dir:            dir,
		f:              f,
		bw:             bufio.NewWriterSize(f, bufSize),
		log:            log,
		startLSN:       lsn,
		path:           filepath.Join(dir.Path(), name),
		inprogressPath: inprogressPath,
		category:       cfg.Category,
		product:        cfg.Product,
		productVersion: cfg.ProductVersion,
		checkpoint:     cfg.Checkpoint,
		lastSCN:        row.NoSCN,
		nextLSN:        lsn,
		inprogress:     true,
	}
	onexit.Register(func() { w.closeBestEffort() })
	return w, nil
}

// WriteHeader writes the filetype literal, version, mandatory
// Created-by/<Product>-version headers, any caller-supplied extra
// headers, then the blank line terminating the header block. It is a
// no-op if the header was already written.
func (w *Writer) WriteHeader(extra map[string]string) error {
	if w.headerWritten {
		return nil
	}
	if _, err := w.bw.WriteString(w.dir.Filetype()); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(xlogdir.Version); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.bw, "Created-by: %s\n", w.product); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.bw, "%s-version: %s\n", w.product, w.productVersion); err != nil {
		return err
	}
	for k, v := range extra {
		if _, err := fmt.Fprintf(w.bw, "%s: %s\n", k, v); err != nil {
			return err
		}
	}
	if _, err := w.bw.WriteString("\n"); err != nil {
		return err
	}
	// The header block starts the file, so its length is what bufio has
	// already handed to the file plus what it still buffers.
	pos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	w.offset = pos + int64(w.bw.Buffered())
	w.headerWritten = true
	return nil
}

// Append assigns LSN/SCN/timestamp, stamps the category if unset,
// updates both CRCs, and writes ROW_MARKER||header||payload to the
// buffered writer. The row is not durable until the next successful
// Confirm.
func (w *Writer) Append(r *row.Row) (lsn int64, err error) {
	w.guarded("Append", func() {
		lsn, err = w.appendLocked(r)
	})
	return
}

func (w *Writer) appendLocked(r *row.Row) (int64, error) {
	if !w.headerWritten {
		return 0, ErrHeaderNotWritten
	}
	if w.truncateBeforeWrite {
		return 0, ErrPoisoned
	}

	if r.Category() == row.CategoryInvalid {
		r.SetTagCategory(w.category)
	}
	lsn := w.nextLSN + int64(len(w.wetRows))
	r.LSN = lsn
	if r.SCN == 0 {
		r.SCN = lsn
	}
	r.Tm = float64(time.Now().UnixNano()) / 1e9
	r.UpdateCRC()

	var marker [4]byte
	binary.LittleEndian.PutUint32(marker[:], RowMarker)
	if _, err := w.bw.Write(marker[:]); err != nil {
		return 0, err
	}
	n, err := r.Write(w.bw)
	if err != nil {
		return 0, err
	}
	w.wetRows = append(w.wetRows, int64(len(marker)+n))
	w.lastShardID = r.ShardID
	w.lastSCN = r.SCN
	return lsn, nil
}

// RecoverTruncate clears the poisoned truncate_before_write state left
// by a failed Confirm: it ftruncates the file back to the last
// confirmed offset, seeks there, and discards whatever wet rows had
// partially landed. It must be called before the next Append succeeds.
func (w *Writer) RecoverTruncate() error {
	w.bw.Reset(w.f) // abandon any buffered bytes held for a Confirm retry
	if err := w.f.Truncate(w.offset); err != nil {
		return err
	}
	if _, err := w.f.Seek(w.offset, io.SeekStart); err != nil {
		return err
	}
	w.wetRows = w.wetRows[:0]
	w.truncateBeforeWrite = false
	return nil
}

// Confirm is the group-commit durability barrier: flush the buffered
// writer, then fsync. On success, wet rows become durable: next_lsn and
// offset advance and wet_rows drains. On failure, the writer degrades to
// the fstat-verified confirmed prefix and enters truncate_before_write;
// see RecoverTruncate. Confirm returns the LSN of the last durable row.
func (w *Writer) Confirm() (lastLSN int64, err error) {
	w.guarded("Confirm", func() {
		lastLSN, err = w.confirmLocked()
	})
	return
}

func (w *Writer) confirmLocked() (int64, error) {
	if len(w.wetRows) == 0 {
		return w.nextLSN - 1, nil
	}

	flushErr := w.bw.Flush()
	if flushErr == nil {
		flushErr = w.f.Sync()
	}
	if flushErr != nil {
		w.degradeOnFlushFailure()
		return 0, &FlushFailedError{Err: flushErr}
	}

	var total int64
	for _, n := range w.wetRows {
		total += n
	}
	w.nextLSN += int64(len(w.wetRows))
	w.offset += total
	w.wetRows = w.wetRows[:0]

	if w.checkpoint != nil {
		w.recordCheckpoint()
	}

	if w.offset-w.syncOffset > rangeSyncThreshold {
		if err := unix.SyncFileRange(int(w.f.Fd()), w.syncOffset, w.offset-w.syncOffset, unix.SYNC_FILE_RANGE_WRITE); err != nil {
			w.log.Warningf("xlog: sync_file_range failed on %s: %v", w.path, err)
		} else {
			w.syncOffset = w.offset
		}
	}
	return w.nextLSN - 1, nil
}

// recordCheckpoint mirrors the last confirmed row's position into the
// configured registry. Best-effort and asynchronous: a registry write
// never delays or fails a Confirm (§9's FsyncFailed/RangeSyncFailed
// policy extended to this off-durability-path mirror).
func (w *Writer) recordCheckpoint() {
	shardID, scn, lsn, path := w.lastShardID, w.lastSCN, w.nextLSN-1, w.path
	reg := w.checkpoint
	go func() {
		if err := reg.Record(context.Background(), shardID, lsn, scn, path); err != nil {
			w.log.Warningf("xlog: checkpoint record failed for %s: %v", path, err)
		}
	}()
}

// degradeOnFlushFailure fstats the file to find out how many wet-row
// bytes actually reached disk, keeps that prefix of wet_rows as
// candidates for a Confirm retry, and enters truncate_before_write
// (§4.4 step 2-3).
func (w *Writer) degradeOnFlushFailure() {
	st, statErr := w.f.Stat()
	if statErr != nil {
		w.log.Warningf("xlog: fstat after flush failure on %s: %v", w.path, statErr)
		w.wetRows = w.wetRows[:0]
		w.truncateBeforeWrite = true
		return
	}

	landed := st.Size() - w.offset
	var kept []int64
	var sum int64
	for _, n := range w.wetRows {
		if sum+n > landed {
			break
		}
		sum += n
		kept = append(kept, n)
	}
	w.wetRows = kept
	w.truncateBeforeWrite = true
}

// FadviseDontNeed advises the kernel to drop page cache for everything
// but the trailing fadviseKeepTail+offset%4096 window. Best-effort:
// failures are logged, never returned.
func (w *Writer) FadviseDontNeed() {
	keep := int64(fadviseKeepTail) + w.offset%4096
	if w.offset <= keep {
		return
	}
	if err := unix.Fadvise(int(w.f.Fd()), 0, w.offset-keep, unix.FADV_DONTNEED); err != nil {
		w.log.Warningf("xlog: fadvise(DONTNEED) failed on %s: %v", w.path, err)
	}
}

// Finalize flushes and fsyncs the file, then renames it from its
// .inprogress name to its canonical name and fsyncs the directory so
// the rename survives a crash (§9). It is a no-op if already finalized.
func (w *Writer) Finalize() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		w.log.Warningf("xlog: fsync before finalize failed on %s: %v", w.path, err)
	}
	if !w.inprogress {
		return nil
	}
	if err := os.Rename(w.inprogressPath, w.path); err != nil {
		return err
	}
	w.inprogress = false
	if err := w.dir.Sync(); err != nil {
		w.log.Warningf("xlog: directory fsync after rename failed for %s: %v", w.path, err)
	}
	w.dir.NotifyFinalized(xlogdir.Entry{LSN: w.startLSN, Path: w.path})
	return nil
}

// Close writes EOF_MARKER (best-effort), flushes, fsyncs, and closes
// the file. It is idempotent and safe to call from the onexit hook
// registered in NewWriter.
func (w *Writer) Close() error {
	return w.closeBestEffort()
}

func (w *Writer) closeBestEffort() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.headerWritten {
		var marker [4]byte
		binary.LittleEndian.PutUint32(marker[:], EOFMarker)
		if _, err := w.bw.Write(marker[:]); err != nil {
			w.log.Warningf("xlog: failed writing eof marker on %s: %v", w.path, err)
		}
		if err := w.bw.Flush(); err != nil {
			w.log.Warningf("xlog: flush on close failed for %s: %v", w.path, err)
		}
		if err := w.f.Sync(); err != nil {
			w.log.Warningf("xlog: fsync on close failed for %s: %v", w.path, err)
		}
	}
	return w.f.Close()
}

// Path returns the writer's canonical (post-finalize) path.
func (w *Writer) Path() string { return w.path }

// NextLSN returns the LSN the next Append will assign (absent any
// already-pending wet rows).
func (w *Writer) NextLSN() int64 { return w.nextLSN + int64(len(w.wetRows)) }

// Offset returns the durable file length: the header block plus every
// row confirmed by the most recent successful Confirm.
func (w *Writer) Offset() int64 { return w.offset }
