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

// Package watcher binds a file-stat polling loop, the mechanism the
// xlog reader's follow mode is built on, with an fsnotify fast path
// layered on top so growth is usually noticed well before the next
// poll tick. Polling never goes away: fsnotify events can be coalesced
// or dropped under load, and NFS/overlay mounts commonly don't deliver
// them at all, so the poll loop is the mechanism of record and
// fsnotify is only a latency shortcut.
package watcher

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/launix-de/octolog/logx"
)

// Watcher calls back whenever the watched path's size or modification
// time changes. Init owns a heap copy of path; calling Init again frees
// the previous one (by simply overwriting the field — Go's GC takes
// care of the rest, unlike the teacher's manual free()).
type Watcher struct {
	mu       sync.Mutex
	path     string
	interval time.Duration
	callback func()
	log      logx.Sink

	active bool
	stopCh chan struct{}
	doneCh chan struct{}

	fsw *fsnotify.Watcher
}

// New creates a Watcher. log may be nil, in which case logx.Default is
// used.
func New(log logx.Sink) *Watcher {
	if log == nil {
		log = logx.Default
	}
	return &Watcher{log: log}
}

// Init configures the watcher. Calling Init while active stops the
// previous run first. A nil callback is equivalent to calling Stop.
func (w *Watcher) Init(callback func(), path string, interval time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		w.stopLocked()
	}
	w.path = path
	w.interval = interval
	w.callback = callback
	return nil
}

// IsActive reports whether the poll loop is currently running.
func (w *Watcher) IsActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Start begins polling. Calling Start on an already-active watcher, or
// with no callback configured, is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active || w.callback == nil {
		return
	}
	w.active = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	if fsw, err := fsnotify.NewWatcher(); err == nil {
		if err := fsw.Add(w.path); err == nil {
			w.fsw = fsw
		} else {
			fsw.Close()
		}
	}

	go w.run(w.path, w.interval, w.callback, w.fsw, w.stopCh, w.doneCh)
}

// Stop halts polling. It is idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

func (w *Watcher) stopLocked() {
	if !w.active {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
	w.active = false
}

func (w *Watcher) run(path string, interval time.Duration, callback func(), fsw *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	var lastSize int64
	var lastMtime time.Time
	if st, err := os.Stat(path); err == nil {
		lastSize = st.Size()
		lastMtime = st.ModTime()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		st, err := os.Stat(path)
		if err != nil {
			return
		}
		if st.Size() != lastSize || !st.ModTime().Equal(lastMtime) {
			lastSize = st.Size()
			lastMtime = st.ModTime()
			callback()
		}
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if fsw != nil {
		events = fsw.Events
		errs = fsw.Errors
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			check()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			check()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warningf("watcher: fsnotify error on %s: %v", path, err)
		}
	}
}
