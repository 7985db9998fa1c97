// Package ledger reads and writes talk records in the shared tracking table.
package ledger

import (
	"context"

	"github.com/TobiSchelling/talkcomms/internal/database"
)

// Store is a tabular backend addressed by record id and column name.
// ReadRow returns only columns that hold a value.
type Store interface {
	ReadRow(ctx context.Context, recordID string, columns []string) (map[string]string, error)
	WriteRow(ctx context.Context, recordID string, values map[string]string) error
}

// SQLiteStore keeps rows in the local database.
type SQLiteStore struct {
	db *database.DB
}

func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) ReadRow(ctx context.Context, recordID string, columns []string) (map[string]string, error) {
	return s.db.ReadCells(ctx, recordID, columns)
}

func (s *SQLiteStore) WriteRow(ctx context.Context, recordID string, values map[string]string) error {
	return s.db.WriteCells(ctx, recordID, values)
}

// Records lists stored record ids.
func (s *SQLiteStore) Records(ctx context.Context) ([]string, error) {
	return s.db.ListRecords(ctx)
}
