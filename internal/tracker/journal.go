package tracker

import (
	"context"

	"github.com/TobiSchelling/talkcomms/internal/database"
)

// DBJournal stores run snapshots in the local database.
type DBJournal struct {
	db *database.DB
}

func NewDBJournal(db *database.DB) *DBJournal {
	return &DBJournal{db: db}
}

func (j *DBJournal) Save(ctx context.Context, r Run) error {
	return j.db.SaveRun(ctx, database.RunRecord{
		ID:          r.ID,
		RecordID:    r.RecordID,
		ContentType: r.ContentType,
		Status:      string(r.Status),
		Progress:    r.Progress,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	})
}

// Load reads a journaled run, for lookups after a restart.
func (j *DBJournal) Load(ctx context.Context, id string) (*Run, error) {
	rec, err := j.db.GetRun(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	r := fromRecord(*rec)
	return &r, nil
}

// LoadLatest reads the newest journaled run for a record.
func (j *DBJournal) LoadLatest(ctx context.Context, recordID string) (*Run, error) {
	rec, err := j.db.LatestRunForRecord(ctx, recordID)
	if err != nil || rec == nil {
		return nil, err
	}
	r := fromRecord(*rec)
	return &r, nil
}

// LoadRecent reads up to limit journaled runs, newest first.
func (j *DBJournal) LoadRecent(ctx context.Context, limit int) ([]Run, error) {
	recs, err := j.db.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Run, len(recs))
	for i, rec := range recs {
		out[i] = fromRecord(rec)
	}
	return out, nil
}

func fromRecord(rec database.RunRecord) Run {
	return Run{
		ID:          rec.ID,
		RecordID:    rec.RecordID,
		ContentType: rec.ContentType,
		Status:      Status(rec.Status),
		Progress:    rec.Progress,
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}
