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

// Package xlogdir manages a directory of xlog or snap files: locking
// the directory against concurrent instances, scanning it for existing
// files, and indexing those files by LSN (primary) and per-shard SCN
// (secondary) so xlog readers and the recovery path can locate the
// right file without a linear directory walk every time.
package xlogdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	nlrm "github.com/launix-de/NonLockingReadMap"

	"github.com/launix-de/octolog/logx"
)

// ErrLocked is returned by Lock when another process already holds the
// directory's exclusive advisory lock.
var ErrLocked = errors.New("xlogdir: directory already locked by another process")

// Mirror uploads a finalized file to cold storage. Dir does not care
// which backend implements it (archive.S3Mirror, archive.CephMirror); it
// only ever calls Upload after a file is durably renamed into place.
type Mirror interface {
	Upload(ctx context.Context, localPath string) error
}

// Dir owns one directory's worth of xlog or snap files.
type Dir struct {
	path     string
	suffix   Suffix
	filetype string
	dirFile  *os.File
	log      logx.Sink

	lsnIndex nlrm.NonLockingReadMap[lsnItem, int64]

	scnMu    sync.Mutex
	scnIndex map[uint16]*btree.BTreeG[scnEntry]

	mirror Mirror

	// InstanceID is a random id minted when the Dir is opened. Nothing in
	// this module writes it into file headers; it does not affect
	// indexing or lookup.
	InstanceID uuid.UUID
}

// SetMirror attaches a cold-storage mirror. Archival is strictly
// after-the-fact: NotifyFinalized kicks it off in a goroutine and never
// makes Confirm/Finalize wait on or fail from an upload error.
func (d *Dir) SetMirror(m Mirror) { d.mirror = m }

// NewWAL opens (creating if necessary) a directory of xlog write-ahead
// files. log may be nil, in which case logx.Default is used.
func NewWAL(path string, log logx.Sink) (*Dir, error) {
	return open(path, SuffixXLog, FileTypeXLog, log)
}

// NewSnap opens (creating if necessary) a directory of snap files.
func NewSnap(path string, log logx.Sink) (*Dir, error) {
	return open(path, SuffixSnap, FileTypeSnap, log)
}

func open(path string, suffix Suffix, filetype string, log logx.Sink) (*Dir, error) {
	if log == nil {
		log = logx.Default
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Dir{
		path:       path,
		suffix:     suffix,
		filetype:   filetype,
		dirFile:    f,
		log:        log,
		lsnIndex:   nlrm.New[lsnItem, int64](),
		scnIndex:   make(map[uint16]*btree.BTreeG[scnEntry]),
		InstanceID: uuid.New(),
	}, nil
}

// Path returns the managed directory's path.
func (d *Dir) Path() string { return d.path }

// Filetype returns the literal ("XLOG\n" or "SNAP\n") new files in this
// directory must carry.
func (d *Dir) Filetype() string { return d.filetype }

// Suffix returns the file extension ("xlog" or "snap") this Dir manages.
func (d *Dir) Suffix() Suffix { return d.suffix }

// Lock takes an exclusive, non-blocking advisory lock on the directory
// via flock(2), guarding against a second instance pointed at the same
// data directory. It returns ErrLocked, not a blocking wait, when the
// lock is already held — matching the teacher's settings.go preference
// for failing fast over silently blocking on file locks.
func (d *Dir) Lock() error {
	err := unix.Flock(int(d.dirFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrLocked
		}
		return err
	}
	return nil
}

// Unlock releases the lock taken by Lock.
func (d *Dir) Unlock() error {
	return unix.Flock(int(d.dirFile.Fd()), unix.LOCK_UN)
}

// Sync fsyncs the directory's own inode (needed after a rename into the
// directory, so the rename survives a crash).
func (d *Dir) Sync() error {
	return d.dirFile.Sync()
}

// Close releases the directory file descriptor.
func (d *Dir) Close() error {
	return d.dirFile.Close()
}

// NotifyFinalized indexes e immediately, without a directory rescan.
// The xlog writer calls this right after renaming a finished file into
// place, so GreatestLSN/FindWithLSN see it without waiting on the next
// ScanDir.
func (d *Dir) NotifyFinalized(e Entry) {
	d.lsnIndex.Set(&lsnItem{entry: e})
	if d.mirror != nil {
		path := e.Path
		go func() {
			if err := d.mirror.Upload(context.Background(), path); err != nil {
				d.log.Warningf("xlogdir: archive upload failed for %s: %v", path, err)
			}
		}()
	}
}

// ScanDir lists the directory and indexes every finalized file
// (anything not carrying the in-progress suffix) by its start LSN,
// parsed from the filename "<lsn>.<suffix>".
func (d *Dir) ScanDir() error {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return err
	}
	want := "." + string(d.suffix)
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if strings.HasSuffix(name, ".inprogress") {
			continue // still owned by a writer; not yet visible
		}
		base := strings.TrimSuffix(name, want)
		if base == name {
			continue // different suffix, not ours
		}
		lsn, err := strconv.ParseInt(base, 10, 64)
		if err != nil {
			d.log.Warningf("xlogdir: skipping unparseable file name %s", name)
			continue
		}
		d.lsnIndex.Set(&lsnItem{entry: Entry{LSN: lsn, Path: filepath.Join(d.path, name)}})
	}
	return nil
}

// GreatestLSN returns the highest indexed start LSN, or ok=false if the
// directory has not been scanned or is empty.
func (d *Dir) GreatestLSN() (lsn int64, ok bool) {
	items := d.lsnIndex.GetAll()
	if len(items) == 0 {
		return 0, false
	}
	return (*items[len(items)-1]).entry.LSN, true
}

// FindWithLSN returns the entry whose start LSN is the greatest one
// not exceeding lsn. Per the directory's edge policy, a query below
// every known LSN falls back to the last (greatest-LSN) entry rather
// than failing, since the caller's goal is "open something and let the
// row-level reader sort out what's actually needed".
func (d *Dir) FindWithLSN(lsn int64) (Entry, bool) {
	items := d.lsnIndex.GetAll() // ascending by LSN (NonLockingReadMap.Set keeps it sorted)
	if len(items) == 0 {
		return Entry{}, false
	}
	idx := sort.Search(len(items), func(i int) bool {
		return (*items[i]).entry.LSN > lsn
	})
	if idx == 0 {
		return (*items[len(items)-1]).entry, true
	}
	return (*items[idx-1]).entry, true
}

// SameDir reports whether a and b name the same directory, comparing
// inodes when both are statable and falling back to a cleaned string
// comparison otherwise.
func SameDir(a, b string) bool {
	fa, erra := os.Stat(a)
	fb, errb := os.Stat(b)
	if erra == nil && errb == nil {
		return os.SameFile(fa, fb)
	}
	return filepath.Clean(a) == filepath.Clean(b)
}
