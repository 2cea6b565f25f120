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

// Package crc32c computes the Castagnoli variant of CRC-32 used to
// checksum row headers and payloads in the xlog record format. The
// register starts at zero and the result is not inverted at the end, so
// values differ from the iSCSI-style CRC32C that hash/crc32 returns
// directly (for "hello": 0xdf03cd79 here, 0x9a71bb4c there).
package crc32c

import "hash/crc32"

var table = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the CRC32C of data.
func Checksum(data []byte) uint32 {
	// hash/crc32 inverts the register on the way in and out; inverting
	// around it yields the zero-seeded, non-inverted form.
	return ^crc32.Update(^uint32(0), table, data)
}

// Writer accumulates a streaming CRC32C over successive Write calls.
// row.Row.UpdateCRC uses it to fold the header checksum over each
// field write in turn, rather than encoding the whole header into a
// byte slice first and checksumming that afterward.
type Writer struct {
	crc uint32
}

// Write implements io.Writer; it never returns an error.
func (w *Writer) Write(p []byte) (int, error) {
	w.crc = ^crc32.Update(^w.crc, table, p)
	return len(p), nil
}

// Sum32 returns the checksum accumulated so far.
func (w *Writer) Sum32() uint32 {
	return w.crc
}

// Reset zeroes the accumulated checksum so the Writer can be reused.
func (w *Writer) Reset() {
	w.crc = 0
}
