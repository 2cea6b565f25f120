package xlogdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/launix-de/octolog/logx"
)

type recordingMirror struct {
	mu   sync.Mutex
	seen []string
	done chan struct{}
}

func newRecordingMirror() *recordingMirror {
	return &recordingMirror{done: make(chan struct{}, 8)}
}

func (m *recordingMirror) Upload(ctx context.Context, localPath string) error {
	m.mu.Lock()
	m.seen = append(m.seen, localPath)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func writeTestFile(t *testing.T, dir string, lsn int64, headers map[string]string) string {
	t.Helper()
	name := filepath.Join(dir, fmt.Sprintf("%d.xlog", lsn))
	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	fmt.Fprint(f, FileTypeXLog)
	fmt.Fprint(f, Version)
	for k, v := range headers {
		fmt.Fprintf(f, "%s: %s\n", k, v)
	}
	fmt.Fprint(f, "\n")
	return name
}

func TestScanDirIndexesByLSN(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, 100, nil)
	writeTestFile(t, dir, 200, nil)
	writeTestFile(t, dir, 300, nil)

	d, err := NewWAL(dir, logx.Nop{})
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	defer d.Close()
	if err := d.ScanDir(); err != nil {
		t.Fatalf("ScanDir: %v", err)
	}

	if lsn, ok := d.GreatestLSN(); !ok || lsn != 300 {
		t.Fatalf("GreatestLSN() = (%d, %v), want (300, true)", lsn, ok)
	}
}

func TestFindWithLSNFallsBackToLastOnLowQuery(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, 100, nil)
	writeTestFile(t, dir, 200, nil)

	d, _ := NewWAL(dir, logx.Nop{})
	defer d.Close()
	d.ScanDir()

	e, ok := d.FindWithLSN(5)
	if !ok || e.LSN != 200 {
		t.Fatalf("FindWithLSN(5) = (%+v, %v), want fallback to (LSN=200, true)", e, ok)
	}
}

func TestFindWithLSNPicksGreatestNotExceeding(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, 100, nil)
	writeTestFile(t, dir, 200, nil)
	writeTestFile(t, dir, 300, nil)

	d, _ := NewWAL(dir, logx.Nop{})
	defer d.Close()
	d.ScanDir()

	e, ok := d.FindWithLSN(250)
	if !ok || e.LSN != 200 {
		t.Fatalf("FindWithLSN(250) = (%+v, %v), want (LSN=200, true)", e, ok)
	}
}

func TestFindWithSCNFallsBackWhenNoShardHeader(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, 100, nil)
	writeTestFile(t, dir, 200, nil)

	d, _ := NewWAL(dir, logx.Nop{})
	defer d.Close()
	d.ScanDir()
	if err := d.ScanDirSCN(7); err != nil {
		t.Fatalf("ScanDirSCN: %v", err)
	}

	e, ok := d.FindWithSCN(7, 42)
	if !ok || e.LSN != 200 {
		t.Fatalf("FindWithSCN(7, 42) = (%+v, %v), want (LSN=200, true) via fallback", e, ok)
	}
}

func TestFindWithSCNUsesShardHeader(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, 100, map[string]string{"SCN-7": "10"})
	writeTestFile(t, dir, 200, map[string]string{"SCN-7": "20"})
	writeTestFile(t, dir, 300, map[string]string{"SCN-7": "30"})

	d, _ := NewWAL(dir, logx.Nop{})
	defer d.Close()
	d.ScanDir()
	if err := d.ScanDirSCN(7); err != nil {
		t.Fatalf("ScanDirSCN: %v", err)
	}

	if e, ok := d.FindWithSCN(7, 25); !ok || e.LSN != 200 {
		t.Fatalf("FindWithSCN(7, 25) = (%+v, %v), want (LSN=200, true)", e, ok)
	}
	if e, ok := d.FindWithSCN(7, 1); !ok || e.LSN != 300 {
		t.Fatalf("FindWithSCN(7, 1) = (%+v, %v), want fallback to (LSN=300, true)", e, ok)
	}
}

func TestScanDirSkipsInProgressFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, 100, nil)
	if err := os.WriteFile(filepath.Join(dir, "200.xlog.inprogress"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, _ := NewWAL(dir, logx.Nop{})
	defer d.Close()
	d.ScanDir()

	if lsn, ok := d.GreatestLSN(); !ok || lsn != 100 {
		t.Fatalf("GreatestLSN() = (%d, %v), want (100, true); in-progress file must not be indexed", lsn, ok)
	}
}

func TestLockExclusion(t *testing.T) {
	dir := t.TempDir()
	a, _ := NewWAL(dir, logx.Nop{})
	defer a.Close()
	b, _ := NewWAL(dir, logx.Nop{})
	defer b.Close()

	if err := a.Lock(); err != nil {
		t.Fatalf("a.Lock(): %v", err)
	}
	if err := b.Lock(); err != ErrLocked {
		t.Fatalf("b.Lock() = %v, want ErrLocked", err)
	}
	a.Unlock()
}

func TestNotifyFinalizedUploadsToMirror(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, 100, nil)

	d, _ := NewWAL(dir, logx.Nop{})
	defer d.Close()
	mirror := newRecordingMirror()
	d.SetMirror(mirror)

	d.NotifyFinalized(Entry{LSN: 100, Path: path})

	select {
	case <-mirror.done:
	case <-time.After(time.Second):
		t.Fatal("mirror.Upload was not called within 1s of NotifyFinalized")
	}

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.seen) != 1 || mirror.seen[0] != path {
		t.Fatalf("mirror.seen = %v, want [%s]", mirror.seen, path)
	}
}

func TestSameDir(t *testing.T) {
	dir := t.TempDir()
	if !SameDir(dir, dir) {
		t.Fatal("SameDir(dir, dir) = false, want true")
	}
	if SameDir(dir, dir+"-other") {
		t.Fatal("SameDir(dir, dir-other) = true, want false")
	}
}
