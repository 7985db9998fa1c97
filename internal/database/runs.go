package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SaveRun upserts the run row and appends any progress lines not yet stored.
// Stored progress is never rewritten.
func (db *DB) SaveRun(ctx context.Context, r RunRecord) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := sq.Insert("runs").
			Columns(runColumns...).
			Values(r.ID, r.RecordID, r.ContentType, r.Status, r.Error,
				r.CreatedAt.UTC().Format(timeLayout), r.UpdatedAt.UTC().Format(timeLayout)).
			Suffix("ON CONFLICT(id) DO UPDATE SET status = excluded.status, error = excluded.error, updated_at = excluded.updated_at").
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("saving run %s: %w", r.ID, err)
		}

		if len(r.Progress) == 0 {
			return nil
		}
		ins := sq.Insert("run_progress").Columns("run_id", "seq", "message")
		for i, msg := range r.Progress {
			ins = ins.Values(r.ID, i, msg)
		}
		ins = ins.Suffix("ON CONFLICT(run_id, seq) DO NOTHING")
		if _, err := ins.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("saving progress for run %s: %w", r.ID, err)
		}
		return nil
	})
}

var runColumns = []string{"id", "record_id", "content_type", "status", "error", "created_at", "updated_at"}

// GetRun returns a run with its progress log, or nil when unknown.
func (db *DB) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	runs, err := db.queryRuns(ctx, sq.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}))
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// LatestRunForRecord returns the most recently created run for recordID, or nil.
func (db *DB) LatestRunForRecord(ctx context.Context, recordID string) (*RunRecord, error) {
	runs, err := db.queryRuns(ctx, sq.Select(runColumns...).From("runs").
		Where(sq.Eq{"record_id": recordID}).
		OrderBy("created_at DESC").
		Limit(1))
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := sq.Select(runColumns...).From("runs").OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return db.queryRuns(ctx, q)
}

func (db *DB) queryRuns(ctx context.Context, q sq.SelectBuilder) ([]RunRecord, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building run query: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var created, updated string
		if err := rows.Scan(&r.ID, &r.RecordID, &r.ContentType, &r.Status, &r.Error, &created, &updated); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		r.UpdatedAt, _ = time.Parse(timeLayout, updated)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range runs {
		progress, err := db.runProgress(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Progress = progress
	}
	return runs, nil
}

func (db *DB) runProgress(ctx context.Context, runID string) ([]string, error) {
	query, args, err := sq.Select("message").From("run_progress").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
