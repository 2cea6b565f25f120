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

// Package archive mirrors finalized xlog/snap files to cold storage
// (S3 or Ceph/RADOS), compressing on the way out. It never sees a file
// before the writer has renamed it into its canonical, durable name —
// archival observes already-durable bytes and never gates Confirm or
// Finalize.
package archive

import (
	"context"
	"strings"
)

// Mirror uploads one finalized file to cold storage under a
// content-addressed-by-name object key. It satisfies xlogdir.Mirror.
type Mirror interface {
	Upload(ctx context.Context, localPath string) error
}

// compressionFor picks the codec by file suffix (see SPEC_FULL's
// Domain Stack, lz4/xz entry): xlog files are archived often, so favor
// lz4's speed; snap files are archived rarely, so favor xz's ratio.
type codec int

const (
	codecNone codec = iota
	codecLZ4
	codecXZ
)

func compressionFor(localPath string) codec {
	switch {
	case strings.HasSuffix(localPath, ".xlog"):
		return codecLZ4
	case strings.HasSuffix(localPath, ".snap"):
		return codecXZ
	default:
		return codecNone
	}
}

// objectKey derives the remote object name from a local path and
// prefix: <prefix>/<basename>, with the compression codec's extension
// appended so a listing shows what decompressor a restore needs.
func objectKey(prefix, localPath string) string {
	base := localPath
	if i := strings.LastIndexByte(localPath, '/'); i >= 0 {
		base = localPath[i+1:]
	}
	key := base
	switch compressionFor(localPath) {
	case codecLZ4:
		key += ".lz4"
	case codecXZ:
		key += ".xz"
	}
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}
