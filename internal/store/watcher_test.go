package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_NotifiesAfterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan struct{}, 1)
	w, err := NewWatcher(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	// Atomic replace, the write pattern Flush uses.
	if err := writeFileAtomic(path, []byte(`{"Audio":{"Volume":0.5}}`)); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestWatcher_CoalescesWriteBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	notifications := make(chan struct{}, 16)
	w, err := NewWatcher(path, func() { notifications <- struct{}{} })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	// A sustained burst of writes spaced well inside the debounce window
	// must not notify until the burst settles, even when a write lands
	// right as the debounce timer is being rearmed.
	for i := 0; i < 20; i++ {
		if err := writeFileAtomic(path, []byte(`{"Audio":{"Volume":0.5}}`)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-notifications:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the settled notification")
	}

	// The burst settled; no stale timer fire may follow.
	select {
	case <-notifications:
		t.Fatal("burst delivered more than one notification")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan struct{}, 1)
	w, err := NewWatcher(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
		t.Fatal("sibling file write should not notify")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values.json")

	w, err := NewWatcher(path, func() {})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
