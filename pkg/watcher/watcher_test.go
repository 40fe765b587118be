package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCorpusWatcherReportsNewPDFs(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 10)
	w, err := NewCorpusWatcher(dir, 100*time.Millisecond, func(_ context.Context, path string) error {
		got <- filepath.Base(path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Rules_A2.PDF"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-got:
		if name != "Rules_A2.PDF" {
			t.Errorf("handler got %q", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event for new PDF")
	}

	// 同一次写入的多个事件只触发一次
	select {
	case name := <-got:
		t.Errorf("unexpected extra event for %q", name)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestNewCorpusWatcherMissingDir(t *testing.T) {
	_, err := NewCorpusWatcher(filepath.Join(t.TempDir(), "missing"), 0, func(context.Context, string) error { return nil })
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
