package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/talkcomms/internal/database"
	"github.com/TobiSchelling/talkcomms/internal/logging"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLifecycle(t *testing.T) {
	tr := New(nil, logging.Discard())
	run := tr.Create("talk-1", "prepare")
	if run.Status != NotStarted || run.ID == "" {
		t.Fatalf("unexpected new run %+v", run)
	}

	if err := tr.Start(run.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tr.Progress(run.ID, "slides cleaned")
	tr.Progress(run.ID, "transcript cleaned")
	if err := tr.Finish(run.ID); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := tr.Get(run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != Done {
		t.Errorf("status = %s, want done", got.Status)
	}
	if len(got.Progress) != 2 || got.Progress[0] != "slides cleaned" {
		t.Errorf("unexpected progress %v", got.Progress)
	}
}

func TestTerminalIsWriteOnce(t *testing.T) {
	tr := New(nil, logging.Discard())
	run := tr.Create("talk-1", "promote")
	tr.Start(run.ID)
	tr.Fail(run.ID, "Error in stage drafting")

	if err := tr.Finish(run.ID); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
	if err := tr.Progress(run.ID, "late"); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal on progress, got %v", err)
	}
	got, _ := tr.Get(run.ID)
	if got.Status != Error || got.Error != "Error in stage drafting" {
		t.Errorf("unexpected run %+v", got)
	}
}

func TestUnknownRun(t *testing.T) {
	tr := New(nil, logging.Discard())
	if _, err := tr.Get("missing"); !errors.Is(err, ErrUnknownRun) {
		t.Errorf("expected ErrUnknownRun, got %v", err)
	}
	if err := tr.Start("missing"); !errors.Is(err, ErrUnknownRun) {
		t.Errorf("expected ErrUnknownRun, got %v", err)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	tr := New(nil, logging.Discard())
	run := tr.Create("talk-1", "prepare")
	tr.Progress(run.ID, "one")

	snap, _ := tr.Get(run.ID)
	snap.Progress[0] = "mutated"

	again, _ := tr.Get(run.ID)
	if again.Progress[0] != "one" {
		t.Error("snapshot shares storage with tracker")
	}
}

func TestLatestActiveAndRecent(t *testing.T) {
	tr := New(nil, logging.Discard())
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	first := tr.Create("talk-1", "prepare")
	tr.Finish(first.ID)
	second := tr.Create("talk-1", "promote")
	tr.Create("talk-2", "prepare")

	latest, ok := tr.Latest("talk-1")
	if !ok || latest.ID != second.ID {
		t.Errorf("Latest = %+v", latest)
	}
	active, ok := tr.Active("talk-1")
	if !ok || active.ID != second.ID {
		t.Errorf("Active = %+v", active)
	}
	if _, ok := tr.Latest("talk-9"); ok {
		t.Error("expected no run for unknown record")
	}
	if recent := tr.Recent(2); len(recent) != 2 || recent[1].ID != second.ID {
		t.Errorf("unexpected recent %+v", recent)
	}
}

func TestFinishedRunsAreEvicted(t *testing.T) {
	db := openTestDB(t)
	journal := NewDBJournal(db)
	tr := New(journal, logging.Discard())
	tr.retain = 3
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	active := tr.Create("talk-0", "prepare")
	tr.Start(active.ID)
	var done []Run
	for _, id := range []string{"talk-1", "talk-2", "talk-3", "talk-4"} {
		r := tr.Create(id, "prepare")
		tr.Finish(r.ID)
		done = append(done, r)
	}

	if got := len(tr.Recent(0)); got != 3 {
		t.Fatalf("expected 3 runs held, got %d", got)
	}
	if _, err := tr.Get(active.ID); err != nil {
		t.Errorf("active run must never be evicted: %v", err)
	}
	for _, r := range done[:2] {
		if _, err := tr.Get(r.ID); !errors.Is(err, ErrUnknownRun) {
			t.Errorf("expected %s to be evicted, got %v", r.RecordID, err)
		}
		saved, err := journal.Load(context.Background(), r.ID)
		if err != nil || saved == nil || saved.Status != Done {
			t.Errorf("evicted run %s should stay in the journal: %+v, %v", r.RecordID, saved, err)
		}
	}
	for _, r := range done[2:] {
		if _, err := tr.Get(r.ID); err != nil {
			t.Errorf("newest finished run %s should be held: %v", r.RecordID, err)
		}
	}
}

func TestConcurrentProgress(t *testing.T) {
	tr := New(nil, logging.Discard())
	run := tr.Create("talk-1", "prepare")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Progress(run.ID, "tick")
			tr.Get(run.ID)
		}()
	}
	wg.Wait()

	got, _ := tr.Get(run.ID)
	if len(got.Progress) != 50 {
		t.Errorf("expected 50 progress lines, got %d", len(got.Progress))
	}
}

func TestJournalPersistsTransitions(t *testing.T) {
	db := openTestDB(t)
	journal := NewDBJournal(db)
	tr := New(journal, logging.Discard())

	run := tr.Create("talk-1", "promote")
	tr.Start(run.ID)
	tr.Progress(run.ID, "summary done")
	tr.Fail(run.ID, "Error in stage drafting")

	ctx := context.Background()
	got, err := journal.Load(ctx, run.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.Status != Error {
		t.Fatalf("unexpected journaled run %+v", got)
	}
	if len(got.Progress) != 2 || got.Progress[1] != "Error in stage drafting" {
		t.Errorf("unexpected progress %v", got.Progress)
	}

	latest, err := journal.LoadLatest(ctx, "talk-1")
	if err != nil || latest == nil || latest.ID != run.ID {
		t.Errorf("LoadLatest = %+v, %v", latest, err)
	}
	recent, err := journal.LoadRecent(ctx, 10)
	if err != nil || len(recent) != 1 {
		t.Errorf("LoadRecent = %+v, %v", recent, err)
	}
}
