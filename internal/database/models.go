package database

import "time"

// Cell is one ledger value addressed by record and column.
type Cell struct {
	RecordID  string
	Column    string
	Value     string
	UpdatedAt time.Time
}

// RunRecord is the persisted form of a pipeline run.
type RunRecord struct {
	ID          string
	RecordID    string
	ContentType string
	Status      string
	Progress    []string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
