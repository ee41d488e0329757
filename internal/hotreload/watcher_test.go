package hotreload

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatchFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	w, err := New(zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int32
	if err := w.Watch(path, func() { atomic.AddInt32(&calls, 1) }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Run(ctx)

	if err := os.WriteFile(path, []byte(`[{"id":"r1"}]`), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&calls) > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("onChange callback was not invoked within deadline")
}

func TestWatchIgnoresUnrelatedFilesInSameDirectory(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "rules.json")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(watched, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("seed watched: %v", err)
	}

	w, err := New(zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int32
	if err := w.Watch(watched, func() { atomic.AddInt32(&calls, 1) }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Run(ctx)

	if err := os.WriteFile(other, []byte(`hello`), 0o644); err != nil {
		t.Fatalf("write other: %v", err)
	}
	time.Sleep(debounceWindow + 100*time.Millisecond)

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no callback for unrelated file, got %d calls", calls)
	}
}

func TestScheduleDispatchDebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	w, err := New(zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int32
	if err := w.Watch(path, func() { atomic.AddInt32(&calls, 1) }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	for i := 0; i < 5; i++ {
		w.scheduleDispatch(path)
	}

	time.Sleep(debounceWindow + 150*time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 debounced callback, got %d", got)
	}
}
