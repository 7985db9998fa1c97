package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWriteAndReadCells(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WriteCells(ctx, "talk-1", map[string]string{
		"Speaker": "Jane Doe",
		"Title":   "Scaling Laws",
	})
	if err != nil {
		t.Fatalf("WriteCells: %v", err)
	}

	got, err := db.ReadCells(ctx, "talk-1", []string{"Speaker", "Title", "Slides"})
	if err != nil {
		t.Fatalf("ReadCells: %v", err)
	}
	if got["Speaker"] != "Jane Doe" || got["Title"] != "Scaling Laws" {
		t.Errorf("unexpected cells %v", got)
	}
	if _, ok := got["Slides"]; ok {
		t.Error("unwritten column should be absent")
	}
}

func TestWriteCellsUpserts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	db.WriteCells(ctx, "talk-1", map[string]string{"Webhook status": "In progress"})
	if err := db.WriteCells(ctx, "talk-1", map[string]string{"Webhook status": "Done"}); err != nil {
		t.Fatalf("WriteCells: %v", err)
	}

	got, _ := db.ReadCells(ctx, "talk-1", nil)
	if got["Webhook status"] != "Done" {
		t.Errorf("expected Done, got %q", got["Webhook status"])
	}
	if len(got) != 1 {
		t.Errorf("expected 1 cell, got %d", len(got))
	}
}

func TestRecordCellsAndListRecords(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	db.WriteCells(ctx, "b", map[string]string{"Title": "B"})
	db.WriteCells(ctx, "a", map[string]string{"Title": "A", "Event": "Conf"})

	ids, err := db.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("unexpected ids %v", ids)
	}

	cells, err := db.RecordCells(ctx, "a")
	if err != nil {
		t.Fatalf("RecordCells: %v", err)
	}
	if len(cells) != 2 || cells[0].Column != "Event" {
		t.Errorf("unexpected cells %+v", cells)
	}
	if cells[0].UpdatedAt.IsZero() {
		t.Error("expected updated_at to be parsed")
	}
}

func TestSaveRunAppendsProgress(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	run := RunRecord{
		ID: "run-1", RecordID: "talk-1", ContentType: "promote",
		Status: "in_progress", Progress: []string{"summary done"},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	run.Status = "error"
	run.Error = "Error in stage drafting"
	run.Progress = append(run.Progress, "drafting failed")
	run.UpdatedAt = now.Add(time.Second)
	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun update: %v", err)
	}

	got, err := db.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("expected run")
	}
	if got.Status != "error" || got.Error != "Error in stage drafting" {
		t.Errorf("unexpected run %+v", got)
	}
	if len(got.Progress) != 2 || got.Progress[1] != "drafting failed" {
		t.Errorf("unexpected progress %v", got.Progress)
	}
}

func TestGetRunUnknown(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown run")
	}
}

func TestLatestRunForRecordAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		rec := "talk-1"
		if id == "r3" {
			rec = "talk-2"
		}
		ts := base.Add(time.Duration(i) * time.Minute)
		db.SaveRun(ctx, RunRecord{ID: id, RecordID: rec, ContentType: "prepare", Status: "done", CreatedAt: ts, UpdatedAt: ts})
	}

	latest, err := db.LatestRunForRecord(ctx, "talk-1")
	if err != nil {
		t.Fatalf("LatestRunForRecord: %v", err)
	}
	if latest == nil || latest.ID != "r2" {
		t.Errorf("expected r2, got %+v", latest)
	}

	runs, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "r3" {
		t.Errorf("unexpected runs %+v", runs)
	}
}
