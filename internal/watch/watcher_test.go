package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(Options{Debounce: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(dir); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "doc.md")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("draft"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case change := <-w.Changes():
		if change.Path != path {
			t.Fatalf("change path = %q, want %q", change.Path, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no change emitted")
	}

	// The burst must collapse into a single notification.
	select {
	case change := <-w.Changes():
		t.Fatalf("burst produced a second change: %+v", change)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherIgnoresUnrelatedExtensions(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(Options{Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(dir); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case change := <-w.Changes():
		t.Fatalf("unexpected change for ignored file: %+v", change)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStartStopLifecycle(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(Options{})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(dir); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(dir); err == nil {
		t.Fatalf("second Start should fail")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := <-w.Changes(); ok {
		t.Fatalf("Changes channel should be closed after Stop")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op: %v", err)
	}
}
