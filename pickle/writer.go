package pickle

import "encoding/binary"

// Writer appends little-endian fixed-width and varint values to an
// internal buffer. Used by tests (cmd/xlogcat's among them) to construct
// synthetic payloads for Reader to decode.
type Writer struct {
	buf []byte
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// PutU8 appends one byte.
func (w *Writer) PutU8(v uint8) { w.buf = append(w.buf, v) }

// PutU16 appends a little-endian uint16.
func (w *Writer) PutU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutU32 appends a little-endian uint32.
func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutU64 appends a little-endian uint64.
func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutI64 appends a little-endian int64.
func (w *Writer) PutI64(v int64) { w.PutU64(uint64(v)) }

// PutBytes appends raw bytes verbatim.
func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }

// PutVarint appends v using the base-128 varint encoding Reader.Varint decodes.
func (w *Writer) PutVarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}
