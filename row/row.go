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

// Package row implements the 46-byte packed on-disk record header used
// by both xlog write-ahead files and snapshot files. Fields are
// serialized field-by-field with encoding/binary, never via a struct
// cast over the wire bytes — a Go struct does not guarantee the packed,
// padding-free layout the wire format requires (§9).
package row

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/launix-de/octolog/crc32c"
)

// HeaderSize is the fixed size of a row header in bytes.
const HeaderSize = 46

// MaxPayloadLen is the R2 guard against runaway allocation during parse:
// payload length must be strictly less than 2 KiB.
const MaxPayloadLen = 2 * 1024

// Category occupies the top two bits of Tag.
type Category uint16

const (
	CategoryInvalid Category = 0 // 00
	CategorySnap    Category = 1 // 01
	CategoryWAL     Category = 2 // 10
	CategorySys     Category = 3 // 11
)

const (
	categoryShift = 14
	categoryMask  = 0x3 << categoryShift
	kindMask      = 0x3FFF
)

// Kind is the low 14 bits of Tag: the row's record type.
type Kind uint16

const (
	KindSnapInitial Kind = 1
	KindSnapData    Kind = 2
	KindWALData     Kind = 3
	KindSnapFinal   Kind = 4
	KindWALFinal    Kind = 5
	KindRunCRC      Kind = 6
	KindNop         Kind = 7
	KindRaftAppend  Kind = 8
	KindRaftCommit  Kind = 9
	KindRaftVote    Kind = 10
	KindShardCreate Kind = 11
	KindShardAlter  Kind = 12
	KindShardFinal  Kind = 13
	KindTLV         Kind = 14
	// 15..31 sys<n>, 32..16383 user<n> are caller-defined, not named here.
)

// NoSCN is the caller sentinel meaning "no SCN assigned"; append()
// preserves it verbatim instead of defaulting it to the row's LSN.
const NoSCN int64 = -1

// Row is one log record: fixed header plus an opaque payload.
type Row struct {
	HeaderCRC32C uint32
	LSN          int64
	SCN          int64
	Tag          uint16
	ShardID      uint16
	Aux          [6]byte // remote_scn (6 bytes) or run_crc (first 4 bytes)
	Tm           float64
	DataCRC32C   uint32
	Payload      []byte
}

// Category returns the top two tag bits.
func (r *Row) Category() Category {
	return Category((r.Tag & categoryMask) >> categoryShift)
}

// Kind returns the low 14 tag bits.
func (r *Row) Kind() Kind {
	return Kind(r.Tag & kindMask)
}

// SetTagCategory replaces the tag's category bits with cat, leaving the
// kind bits untouched. Per R3, a writer only ever does this when the
// existing category is 00 (CategoryInvalid); that check lives in the
// xlog writer, not here, since set_tag_category itself is unconditional
// per §4.1.
func (r *Row) SetTagCategory(cat Category) {
	r.Tag = (r.Tag &^ uint16(categoryMask)) | uint16(cat)<<categoryShift
}

// Data returns the row's payload.
func (r *Row) Data() []byte { return r.Payload }

// UpdateCRC computes DataCRC32C over Payload, then HeaderCRC32C over
// the header bytes [4:46] (which include the just-updated DataCRC32C
// field). It must be called before Write (§4.1). The header checksum is
// folded over each field write via crc32c.Writer rather than building
// the encoded header first and checksumming it after the fact.
func (r *Row) UpdateCRC() {
	r.DataCRC32C = crc32c.Checksum(r.Payload)

	var hw crc32c.Writer
	binary.Write(&hw, binary.LittleEndian, uint64(r.LSN))
	binary.Write(&hw, binary.LittleEndian, uint64(r.SCN))
	binary.Write(&hw, binary.LittleEndian, r.Tag)
	binary.Write(&hw, binary.LittleEndian, r.ShardID)
	hw.Write(r.Aux[:])
	binary.Write(&hw, binary.LittleEndian, math.Float64bits(r.Tm))
	binary.Write(&hw, binary.LittleEndian, uint32(len(r.Payload)))
	binary.Write(&hw, binary.LittleEndian, r.DataCRC32C)
	r.HeaderCRC32C = hw.Sum32()
}

// encodeHeader writes the full 46-byte header (including whatever is
// currently in HeaderCRC32C) into buf, which must be HeaderSize bytes.
func (r *Row) encodeHeader(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], r.HeaderCRC32C)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(r.LSN))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(r.SCN))
	binary.LittleEndian.PutUint16(buf[20:22], r.Tag)
	binary.LittleEndian.PutUint16(buf[22:24], r.ShardID)
	copy(buf[24:30], r.Aux[:])
	binary.LittleEndian.PutUint64(buf[30:38], math.Float64bits(r.Tm))
	binary.LittleEndian.PutUint32(buf[38:42], uint32(len(r.Payload)))
	binary.LittleEndian.PutUint32(buf[42:46], r.DataCRC32C)
}

// Write serializes the row (header + payload) to w and returns the
// number of bytes written, not including the caller-supplied
// ROW_MARKER preamble (the xlog writer owns that). Header and payload
// go out as two separate Write calls rather than one buffer holding
// both, since the payload is already a materialized byte slice with
// nothing to gain from copying it alongside the header.
func (r *Row) Write(w io.Writer) (int, error) {
	var hdr [HeaderSize]byte
	r.encodeHeader(hdr[:])
	n1, err := w.Write(hdr[:])
	if err != nil {
		return n1, err
	}
	n2, err := w.Write(r.Payload)
	return n1 + n2, err
}

// Errors returned by Read, matching §4.1/§7's taxonomy.
var (
	ErrShortRead       = errors.New("row: short read")
	ErrLenExceedsLimit = errors.New("row: payload length exceeds limit")
)

// HeaderCRCMismatchError carries the expected/actual CRC for diagnostics.
type HeaderCRCMismatchError struct{ Expected, Actual uint32 }

func (e *HeaderCRCMismatchError) Error() string {
	return fmt.Sprintf("row: header crc32c mismatch: expected %#x, got %#x", e.Expected, e.Actual)
}

// DataCRCMismatchError carries the expected/actual CRC for diagnostics.
type DataCRCMismatchError struct{ Expected, Actual uint32 }

func (e *DataCRCMismatchError) Error() string {
	return fmt.Sprintf("row: data crc32c mismatch: expected %#x, got %#x", e.Expected, e.Actual)
}

// Read reads exactly one row (header then payload) from r. It never
// reads the ROW_MARKER preamble; the xlog reader consumes that first
// and calls Read only once it knows a row follows.
func Read(r io.Reader) (*Row, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, ErrShortRead
		}
		return nil, err
	}

	row := &Row{
		HeaderCRC32C: binary.LittleEndian.Uint32(hdr[0:4]),
		LSN:          int64(binary.LittleEndian.Uint64(hdr[4:12])),
		SCN:          int64(binary.LittleEndian.Uint64(hdr[12:20])),
		Tag:          binary.LittleEndian.Uint16(hdr[20:22]),
		ShardID:      binary.LittleEndian.Uint16(hdr[22:24]),
		Tm:           math.Float64frombits(binary.LittleEndian.Uint64(hdr[30:38])),
		DataCRC32C:   binary.LittleEndian.Uint32(hdr[42:46]),
	}
	copy(row.Aux[:], hdr[24:30])
	length := binary.LittleEndian.Uint32(hdr[38:42])

	// R1: header_crc32c covers bytes [4:46] of the header as received.
	if actual := crc32c.Checksum(hdr[4:HeaderSize]); actual != row.HeaderCRC32C {
		return nil, &HeaderCRCMismatchError{Expected: row.HeaderCRC32C, Actual: actual}
	}

	// R2 guard before allocating the payload buffer.
	if length >= MaxPayloadLen {
		return nil, ErrLenExceedsLimit
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrShortRead
	}
	row.Payload = payload

	if actual := crc32c.Checksum(payload); actual != row.DataCRC32C {
		return nil, &DataCRCMismatchError{Expected: row.DataCRC32C, Actual: actual}
	}

	return row, nil
}
