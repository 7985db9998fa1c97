package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// pending returns the migrations above version current, in order. The list
// must be strictly increasing.
func pending(list []Migration, current int) ([]Migration, error) {
	var out []Migration
	prev := 0
	for _, m := range list {
		if m.Version <= prev {
			return nil, fmt.Errorf("migration %d (%s) is out of order", m.Version, m.Description)
		}
		prev = m.Version
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out, nil
}

// migrate applies every pending migration, tracking progress in
// PRAGMA user_version. A database stamped by a newer build is refused.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	if latest := latestVersion(); current > latest {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, latest)
	}

	todo, err := pending(migrations, current)
	if err != nil {
		return err
	}
	for _, m := range todo {
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := apply(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	// modernc/sqlite does not honour user_version inside a transaction; the DDL
	// is idempotent, so a crash before this line re-runs the migration.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}
