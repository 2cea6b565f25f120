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

// Package logx is the logging shim the xlog and netmsg cores consume
// (§6 of the spec: "out of scope except as an interface the core
// consumes"). It never dictates a global logger the way the teacher's
// package-level fmt.Println calls do; every component takes a Sink
// explicitly so it stays testable without capturing stdout.
package logx

import (
	"fmt"

	"github.com/golang/glog"
)

// Sink is the logging interface every XLog/XLogDir/NetMsg component
// accepts. Best-effort failures (FsyncFailed, RangeSyncFailed, archive
// upload errors, checkpoint registry errors) go through Warningf;
// torn-tail/CRC diagnostics go through Errorf; routine lifecycle events
// (file opened, rotated, rescanned) go through Infof.
type Sink interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// glogSink backs Sink with github.com/golang/glog, the one structured
// logging library carried anywhere in the example pack (an indirect
// dependency of distr1-distri's go.mod).
type glogSink struct{}

// Default is the glog-backed Sink used when no Sink is supplied.
var Default Sink = glogSink{}

func (glogSink) Infof(format string, args ...interface{})    { glog.Infof(format, args...) }
func (glogSink) Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }
func (glogSink) Errorf(format string, args ...interface{})   { glog.Errorf(format, args...) }

// Nop discards every call; useful for components that are not given an
// explicit Sink and should stay silent (e.g. property tests).
type Nop struct{}

func (Nop) Infof(string, ...interface{})    {}
func (Nop) Warningf(string, ...interface{}) {}
func (Nop) Errorf(string, ...interface{})   {}

// Recording is a test Sink that captures formatted lines instead of
// writing them anywhere, so tests can assert on "FsyncFailed was
// logged, not propagated" style policies (§7) without scraping stderr.
type Recording struct {
	Info, Warning, Error []string
}

func (r *Recording) Infof(format string, args ...interface{}) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}
func (r *Recording) Warningf(format string, args ...interface{}) {
	r.Warning = append(r.Warning, fmt.Sprintf(format, args...))
}
func (r *Recording) Errorf(format string, args ...interface{}) {
	r.Error = append(r.Error, fmt.Sprintf(format, args...))
}
