package xlog

import (
	"os"
	"testing"

	"github.com/launix-de/octolog/logx"
	"github.com/launix-de/octolog/row"
	"github.com/launix-de/octolog/xlogdir"
)

func buildScenario1File(t *testing.T) (*xlogdir.Dir, string) {
	t.Helper()
	dir := newTestDir(t)
	w, err := NewWriter(dir, Config{Category: row.CategoryWAL, Product: "octopus", ProductVersion: "1.0"}, 1, logx.Nop{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteHeader(nil); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	r := &row.Row{Tag: uint16(row.KindWALData), Payload: []byte("hello")}
	if _, err := w.Append(r); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := w.Confirm(); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return dir, w.Path()
}

func TestReadAllThenEOF(t *testing.T) {
	_, path := buildScenario1File(t)
	r, err := Open(path, xlogdir.FileTypeXLog, logx.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadRow(); err != nil {
		t.Fatalf("first ReadRow: %v", err)
	}
	got, err := r.ReadRow()
	if err != nil || got != nil {
		t.Fatalf("ReadRow after last row = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestTruncatedTailIsUnexpectedEOF(t *testing.T) {
	_, path := buildScenario1File(t)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	// Truncate mid-row: keep the header block plus enough of the row to
	// prove a row was starting, but cut before it's complete.
	cut := info.Size() - 5
	if err := os.Truncate(path, cut); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	r, err := Open(path, xlogdir.FileTypeXLog, logx.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	_, err = r.ReadRow()
	if err != ErrUnexpectedEOF {
		t.Fatalf("ReadRow on torn tail = %v, want ErrUnexpectedEOF", err)
	}
	if !r.EOF() {
		t.Fatal("EOF() = false after torn-tail error")
	}
}

func TestInvalidMarkerDetected(t *testing.T) {
	_, path := buildScenario1File(t)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	headerLen := len(xlogdir.FileTypeXLog) + len(xlogdir.Version) + len("Created-by: octopus\n") + len("octopus-version: 1.0\n") + len("\n")
	if headerLen >= len(data) {
		t.Fatalf("headerLen computation exceeds file size")
	}
	data[headerLen] ^= 0xff // corrupt the first marker byte

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := Open(path, xlogdir.FileTypeXLog, logx.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	_, err = r.ReadRow()
	if _, ok := err.(*InvalidMarkerError); !ok {
		t.Fatalf("ReadRow on corrupt marker = %v (%T), want *InvalidMarkerError", err, err)
	}
}

func TestReadRowResumesAfterTransientEOF(t *testing.T) {
	dir := newTestDir(t)
	w, err := NewWriter(dir, Config{Category: row.CategoryWAL, Product: "octopus", ProductVersion: "1.0"}, 1, logx.Nop{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteHeader(nil); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := w.Append(&row.Row{Tag: uint16(row.KindWALData), Payload: []byte("one")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := w.Confirm(); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	// Not finalized yet: the file still lives under its .inprogress name.
	r, err := Open(w.inprogressPath, xlogdir.FileTypeXLog, logx.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	got, err := r.ReadRow()
	if err != nil || got == nil || string(got.Payload) != "one" {
		t.Fatalf("first ReadRow = (%v, %v), want row \"one\"", got, err)
	}

	got, err = r.ReadRow()
	if err != nil || got != nil {
		t.Fatalf("ReadRow at transient boundary = (%v, %v), want (nil, nil)", got, err)
	}
	if !r.EOF() {
		t.Fatal("EOF() = false at transient boundary")
	}

	if _, err := w.Append(&row.Row{Tag: uint16(row.KindWALData), Payload: []byte("two")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := w.Confirm(); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	got, err = r.ReadRow()
	if err != nil || got == nil || string(got.Payload) != "two" {
		t.Fatalf("ReadRow after writer appended more = (%v, %v), want row \"two\" (transient EOF must be resumable)", got, err)
	}
}

func TestOpenRejectsWrongFiletype(t *testing.T) {
	_, path := buildScenario1File(t)
	if _, err := Open(path, xlogdir.FileTypeSnap, logx.Nop{}); err != xlogdir.ErrInvalidFiletype {
		t.Fatalf("Open with wrong filetype = %v, want ErrInvalidFiletype", err)
	}
}
