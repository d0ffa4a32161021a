package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_EmitsSettledPGN(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	pgn := filepath.Join(dir, "march.pgn")
	if err := os.WriteFile(pgn, []byte(classicalPGN), 0o644); err != nil {
		t.Fatalf("write pgn: %v", err)
	}
	// Noise the watcher must ignore.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}

	select {
	case got := <-w.Files:
		if got != pgn {
			t.Errorf("emitted %q, want %q", got, pgn)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no file emitted")
	}

	// The debounce collapses a burst of writes into one emission.
	select {
	case extra := <-w.Files:
		t.Errorf("unexpected second emission %q", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_StopClosesChannel(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher(t.TempDir())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()

	if _, ok := <-w.Files; ok {
		t.Error("Files channel still open after Stop")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("Start succeeded on a missing directory")
		w.Stop()
	}
}
