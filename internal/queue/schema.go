package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch reports a database written with a different queue layout.
// The queue holds undelivered captures, so Open never rewrites such a file.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// initSchema creates the tables on a fresh file, or checks the recorded
// version on an existing one, inside a single transaction.
func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, err := readSchemaVersion(ctx, tx)
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case version > schemaVersion:
		return fmt.Errorf("%w: %s was written by a newer sitesync (version %d, this build reads %d); upgrade sitesync",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	case version < schemaVersion:
		return fmt.Errorf("%w: %s has version %d, expected %d; deliver pending items with the older build before upgrading",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	default:
		return nil
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// readSchemaVersion returns 0 when the database has never been initialized.
func readSchemaVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var tables int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	if err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: schema_version table is empty", ErrSchemaMismatch)
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
