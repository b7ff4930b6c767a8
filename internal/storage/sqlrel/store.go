// Package sqlrel is the relational store backing the index: bulk ingest,
// current-state reconciliation and the filtered query surface, over
// database/sql with a MySQL-protocol driver (go-sql-driver/mysql in
// production, dolthub/driver for an embedded, versioned alternative).
package sqlrel

import (
	"context"
	"database/sql"

	"github.com/orcabus/filemanager/internal/apperrors"
)

// Store wraps a database/sql handle with the operations the ingester and
// query surface need.
type Store struct {
	db *sql.DB
}

// Open connects using the given driver name and data source, runs
// migrations, and returns a ready Store. driverName is typically "mysql"
// or "dolt".
func Open(ctx context.Context, driverName, dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabase, "ping", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an already-open, already-migrated handle without pinging or
// migrating it.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.KindDatabase, "commit transaction", err)
	}
	return nil
}
