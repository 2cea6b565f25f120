package row

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/launix-de/octolog/crc32c"
)

func recomputeHeaderCRC(hdr []byte) {
	sum := crc32c.Checksum(hdr[4:HeaderSize])
	binary.LittleEndian.PutUint32(hdr[0:4], sum)
}

func TestWriteReadRoundTrip(t *testing.T) {
	r := &Row{LSN: 1, SCN: 1, Tag: uint16(KindWALData) | uint16(CategoryWAL)<<categoryShift, Payload: []byte("hello")}
	r.UpdateCRC()

	var buf bytes.Buffer
	if _, err := r.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.LSN != 1 || got.SCN != 1 || string(got.Payload) != "hello" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.DataCRC32C != 0xdf03cd79 {
		t.Fatalf("DataCRC32C = %#x, want 0xdf03cd79 (scenario 1)", got.DataCRC32C)
	}
}

func TestCategoryAndKindBits(t *testing.T) {
	r := &Row{Tag: uint16(KindRaftVote)}
	if r.Category() != CategoryInvalid {
		t.Fatalf("Category() = %v, want invalid", r.Category())
	}
	r.SetTagCategory(CategorySys)
	if r.Category() != CategorySys {
		t.Fatalf("Category() = %v, want sys", r.Category())
	}
	if r.Kind() != KindRaftVote {
		t.Fatalf("Kind() = %v, want KindRaftVote (category stamp must not disturb kind bits)", r.Kind())
	}
}

func TestReadDetectsHeaderCRCMismatch(t *testing.T) {
	r := &Row{LSN: 5, Payload: []byte("x")}
	r.UpdateCRC()
	var buf bytes.Buffer
	r.Write(&buf)
	corrupted := buf.Bytes()
	corrupted[10] ^= 0xff // perturb a header field covered by R1

	_, err := Read(bytes.NewReader(corrupted))
	var crcErr *HeaderCRCMismatchError
	if err == nil {
		t.Fatal("expected HeaderCRCMismatchError, got nil")
	}
	if !asHeaderCRCErr(err, &crcErr) {
		t.Fatalf("err = %v (%T), want *HeaderCRCMismatchError", err, err)
	}
}

func asHeaderCRCErr(err error, target **HeaderCRCMismatchError) bool {
	e, ok := err.(*HeaderCRCMismatchError)
	if ok {
		*target = e
	}
	return ok
}

func TestReadDetectsDataCRCMismatch(t *testing.T) {
	r := &Row{LSN: 5, Payload: []byte("payload-bytes")}
	r.UpdateCRC()
	var buf bytes.Buffer
	r.Write(&buf)
	corrupted := buf.Bytes()
	corrupted[HeaderSize] ^= 0xff // perturb the payload only

	_, err := Read(bytes.NewReader(corrupted))
	if _, ok := err.(*DataCRCMismatchError); !ok {
		t.Fatalf("err = %v (%T), want *DataCRCMismatchError", err, err)
	}
}

func TestReadRejectsOversizedLen(t *testing.T) {
	r := &Row{LSN: 1, Payload: make([]byte, MaxPayloadLen-1)}
	r.UpdateCRC()
	var buf bytes.Buffer
	r.Write(&buf)
	hdr := buf.Bytes()
	// bump the encoded length past the limit without changing payload bytes
	hdr[38] = 0xff
	hdr[39] = 0xff
	hdr[40] = 0xff
	hdr[41] = 0x7f
	// header CRC no longer matches, but we want to isolate the len check,
	// so recompute header CRC over the tampered bytes directly.
	recomputeHeaderCRC(hdr)

	_, err := Read(bytes.NewReader(hdr))
	if err != ErrLenExceedsLimit {
		t.Fatalf("err = %v, want ErrLenExceedsLimit", err)
	}
}

func TestReadShortRowIsShortRead(t *testing.T) {
	_, err := Read(bytes.NewReader(make([]byte, 10)))
	if err != ErrShortRead {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
}

func TestUpdateCRCHeaderMatchesPlainChecksum(t *testing.T) {
	r := &Row{LSN: 7, SCN: 9, Tag: uint16(KindWALData), ShardID: 3, Payload: []byte("abcdef")}
	r.UpdateCRC()

	var buf bytes.Buffer
	if _, err := r.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	hdr := buf.Bytes()[:HeaderSize]

	want := crc32c.Checksum(hdr[4:HeaderSize])
	if r.HeaderCRC32C != want {
		t.Fatalf("UpdateCRC's streamed HeaderCRC32C = %#x, want %#x (plain Checksum over the encoded header)", r.HeaderCRC32C, want)
	}
}
