package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/launix-de/octolog/logx"
)

func TestWatcherFiresOnGrowth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "growing.xlog")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fired := make(chan struct{}, 8)
	w := New(logx.Nop{})
	if err := w.Init(func() { fired <- struct{}{} }, path, 20*time.Millisecond); err != nil {
		t.Fatalf("Init: %v", err)
	}
	w.Start()
	defer w.Stop()

	if !w.IsActive() {
		t.Fatal("IsActive() = false after Start")
	}

	time.Sleep(30 * time.Millisecond)
	if err := os.WriteFile(path, []byte("ab"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired after file growth")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w := New(logx.Nop{})
	w.Stop()
	w.Stop()
	if w.IsActive() {
		t.Fatal("IsActive() = true after Stop on never-started watcher")
	}
}

func TestStartWithoutCallbackIsNoop(t *testing.T) {
	w := New(logx.Nop{})
	w.Start()
	if w.IsActive() {
		t.Fatal("IsActive() = true, want false: Start with no callback configured must be a no-op")
	}
}
