package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/launix-de/octolog/logx"
	"github.com/launix-de/octolog/row"
	"github.com/launix-de/octolog/xlog"
	"github.com/launix-de/octolog/xlogdir"
)

func buildTestFile(t *testing.T) (*xlog.Writer, *xlog.Reader) {
	t.Helper()
	dir, err := xlogdir.NewWAL(t.TempDir(), logx.Nop{})
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	t.Cleanup(func() { dir.Close() })

	w, err := xlog.NewWriter(dir, xlog.Config{Category: row.CategoryWAL, Product: "octopus", ProductVersion: "1.0"}, 1, logx.Nop{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteHeader(nil); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	for _, payload := range []string{"alpha", "beta", "gamma"} {
		if _, err := w.Append(&row.Row{Tag: uint16(row.KindWALData), Payload: []byte(payload)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if _, err := w.Confirm(); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	// Not finalized: the file is still under its .inprogress name.
	r, err := xlog.Open(w.Path()+".inprogress", xlogdir.FileTypeXLog, logx.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return w, r
}

// captureStdout redirects os.Stdout for the duration of f and returns
// everything written to it.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	orig := os.Stdout
	rPipe, wPipe, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	os.Stdout = wPipe
	defer func() { os.Stdout = orig }()

	f()

	wPipe.Close()
	var buf bytes.Buffer
	io.Copy(&buf, rPipe)
	return buf.String()
}

func TestDrainOncePrintsAllAvailableRows(t *testing.T) {
	_, r := buildTestFile(t)

	out := captureStdout(t, func() { drainOnce(r) })
	for _, want := range []string{"lsn=1", "lsn=2", "lsn=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("drainOnce output = %q, want it to contain %q", out, want)
		}
	}
}

func TestDrainOnceStopsAtBoundaryWithoutReReading(t *testing.T) {
	_, r := buildTestFile(t)

	first := captureStdout(t, func() { drainOnce(r) })
	if strings.Count(first, "lsn=") != 3 {
		t.Fatalf("first drainOnce printed %q, want exactly 3 rows", first)
	}

	second := captureStdout(t, func() { drainOnce(r) })
	if second != "" {
		t.Fatalf("second drainOnce (nothing new appended) = %q, want empty", second)
	}
}

func TestRunSeekFindsFirstRowAtOrAboveLSN(t *testing.T) {
	_, r := buildTestFile(t)

	out := captureStdout(t, func() { runSeek(r, "2") })
	if !strings.Contains(out, "lsn=2") {
		t.Fatalf("runSeek(2) output = %q, want it to contain lsn=2", out)
	}
	if strings.Contains(out, "lsn=1") || strings.Contains(out, "lsn=3") {
		t.Fatalf("runSeek(2) output = %q, want only the first matching row", out)
	}
}

func TestRunSeekPastEndReportsNotFound(t *testing.T) {
	_, r := buildTestFile(t)

	out := captureStdout(t, func() { runSeek(r, "99") })
	if !strings.Contains(out, "reached end of stream") {
		t.Fatalf("runSeek(99) output = %q, want an end-of-stream message", out)
	}
}

func TestRunSeekRejectsNonNumericArg(t *testing.T) {
	_, r := buildTestFile(t)

	out := captureStdout(t, func() { runSeek(r, "not-a-number") })
	if !strings.Contains(out, "seek:") {
		t.Fatalf("runSeek(not-a-number) output = %q, want a parse error message", out)
	}
}
