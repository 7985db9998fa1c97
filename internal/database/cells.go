package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const timeLayout = time.RFC3339Nano

// ReadCells returns the values stored for recordID. With no columns every
// stored column is returned. Columns that were never written are absent.
func (db *DB) ReadCells(ctx context.Context, recordID string, columns []string) (map[string]string, error) {
	q := sq.Select("column_name", "value").
		From("ledger_cells").
		Where(sq.Eq{"record_id": recordID})
	if len(columns) > 0 {
		q = q.Where(sq.Eq{"column_name": columns})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building cell query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var col, val string
		if err := rows.Scan(&col, &val); err != nil {
			return nil, err
		}
		out[col] = val
	}
	return out, rows.Err()
}

// RecordCells lists every cell of a record ordered by column name.
func (db *DB) RecordCells(ctx context.Context, recordID string) ([]Cell, error) {
	query, args, err := sq.Select("record_id", "column_name", "value", "updated_at").
		From("ledger_cells").
		Where(sq.Eq{"record_id": recordID}).
		OrderBy("column_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building cell query: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []Cell
	for rows.Next() {
		var c Cell
		var updated string
		if err := rows.Scan(&c.RecordID, &c.Column, &c.Value, &updated); err != nil {
			return nil, err
		}
		c.UpdatedAt, _ = time.Parse(timeLayout, updated)
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// WriteCells upserts values for recordID in a single statement.
func (db *DB) WriteCells(ctx context.Context, recordID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	now := time.Now().UTC().Format(timeLayout)
	ins := sq.Insert("ledger_cells").Columns("record_id", "column_name", "value", "updated_at")
	for _, c := range cols {
		ins = ins.Values(recordID, c, values[c], now)
	}
	ins = ins.Suffix("ON CONFLICT(record_id, column_name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at")

	if _, err := ins.RunWith(db.conn).ExecContext(ctx); err != nil {
		return fmt.Errorf("writing cells for %s: %w", recordID, err)
	}
	return nil
}

// ListRecords returns every record id that has at least one cell.
func (db *DB) ListRecords(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("DISTINCT record_id").From("ledger_cells").OrderBy("record_id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
