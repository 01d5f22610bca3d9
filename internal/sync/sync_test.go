package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/store/memory"
)

// recordingDestination keeps every snapshot it is handed.
type recordingDestination struct {
	name string
	err  error

	mu    gosync.Mutex
	snaps []Snapshot
}

func (d *recordingDestination) Name() string { return d.name }

func (d *recordingDestination) Write(_ context.Context, snap Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snaps = append(d.snaps, snap)
	return d.err
}

func (d *recordingDestination) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.snaps)
}

func (d *recordingDestination) last() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snaps[len(d.snaps)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTakeSnapshot_Counts(t *testing.T) {
	snap, err := TakeSnapshot(context.Background(), seededStore(t))
	if err != nil {
		t.Fatalf("TakeSnapshot: %v", err)
	}
	if snap.Entries != 2 || snap.Events != 2 {
		t.Errorf("counts = %d entries, %d events; want 2, 2", snap.Entries, snap.Events)
	}
	if snap.TakenAt.IsZero() {
		t.Error("TakenAt not set")
	}
	if lines := nonEmptyLines(string(snap.Data)); len(lines) != 6 {
		t.Errorf("got %d lines, want 6", len(lines))
	}
}

func TestSyncOnce_SkipsUnchangedRegister(t *testing.T) {
	ms := seededStore(t)
	dest := &recordingDestination{name: "mock"}
	sched := NewScheduler(ms, []Destination{dest}, time.Hour, quietLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := sched.SyncOnce(ctx); err != nil {
			t.Fatalf("SyncOnce #%d: %v", i+1, err)
		}
	}
	if got := dest.count(); got != 1 {
		t.Fatalf("writes = %d, want 1 for an unchanged register", got)
	}

	if err := ms.UpsertEntry(ctx, manualEntry("5000000010")); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if err := sched.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce after change: %v", err)
	}
	if got := dest.count(); got != 2 {
		t.Fatalf("writes = %d, want 2 after a new entry", got)
	}
	if dest.last().Entries != 3 {
		t.Errorf("entries = %d, want 3", dest.last().Entries)
	}
}

func TestSyncOnce_FailingDestination(t *testing.T) {
	bad := &recordingDestination{name: "bad", err: errors.New("bucket gone")}
	good := &recordingDestination{name: "good"}
	sched := NewScheduler(memory.New(), []Destination{bad, good}, time.Hour, quietLogger())

	err := sched.SyncOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("got %v, want error naming the bad destination", err)
	}
	if good.count() != 1 {
		t.Fatal("good destination should still be written")
	}

	// A failed run is retried even though the register did not change.
	if err := sched.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected the retry to fail again")
	}
	if good.count() != 2 {
		t.Errorf("good writes = %d, want 2", good.count())
	}
}

func TestScheduler_TriggerSyncsBeforeTick(t *testing.T) {
	ms := seededStore(t)
	dest := &recordingDestination{name: "mock"}
	sched := NewScheduler(ms, []Destination{dest}, time.Hour, quietLogger())
	sched.Start()
	defer sched.Stop()

	waitFor(t, "initial sync", func() bool { return dest.count() == 1 })

	if err := ms.UpsertEntry(context.Background(), manualEntry("5000000020")); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	sched.Trigger()
	sched.Trigger()

	waitFor(t, "triggered sync", func() bool { return dest.count() == 2 })
	if dest.last().Entries != 3 {
		t.Errorf("entries = %d, want 3", dest.last().Entries)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	sched := NewScheduler(memory.New(), nil, time.Minute, quietLogger())
	sched.Stop()
}
