package storage

import (
	"context"
	"testing"
	"time"
)

func TestWatchReportsSaves(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new file repo: %v", err)
	}

	changed := make(chan struct{}, 4)
	w, err := Watch(repo.Path(), func() { changed <- struct{}{} }, nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	if err := repo.Save(context.Background(), sampleReminders()); err != nil {
		t.Fatalf("save: %v", err)
	}
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
