package sqlrel

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/orcabus/filemanager/internal/apperrors"
	"github.com/orcabus/filemanager/internal/query"
	"github.com/orcabus/filemanager/internal/types"
)

// Tx exposes the row-level operations the update engine needs inside a
// single transaction: point lookups and mutations it can interleave with
// object-store tag writes before the whole thing commits.
type Tx struct {
	tx *sql.Tx
}

// RunUpdate runs fn within a single transaction, committing only if fn
// returns nil. The update engine does its object-store tag write-back
// inside fn, so a tag-write failure rolls back the row mutation too.
func (s *Store) RunUpdate(ctx context.Context, fn func(*Tx) error) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// GetByID loads a single row by primary key, for update. Returns a
// Database/not-found error if no such row exists.
func (t *Tx) GetByID(ctx context.Context, id uuid.UUID) (*types.S3Object, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM s3_object WHERE id = ?`, id.String())
	o, err := scanRow(row)
	if err != nil {
		return nil, apperrors.Database("select s3_object by id", err)
	}
	return o, nil
}

// SetAttributes overwrites a row's attributes document and returns the
// updated row.
func (t *Tx) SetAttributes(ctx context.Context, id uuid.UUID, attributes []byte) (*types.S3Object, error) {
	if _, err := t.tx.ExecContext(ctx, `UPDATE s3_object SET attributes = ? WHERE id = ?`, attributesString(attributes), id.String()); err != nil {
		return nil, apperrors.Database("update s3_object attributes", err)
	}
	return t.GetByID(ctx, id)
}

// SetIngestID overwrites a row's ingest_id (nil clears it) and returns the
// updated row.
func (t *Tx) SetIngestID(ctx context.Context, id uuid.UUID, ingestID *uuid.UUID) (*types.S3Object, error) {
	if _, err := t.tx.ExecContext(ctx, `UPDATE s3_object SET ingest_id = ? WHERE id = ?`, ingestIDString(ingestID), id.String()); err != nil {
		return nil, apperrors.Database("update s3_object ingest_id", err)
	}
	return t.GetByID(ctx, id)
}

// ListFiltered returns every row matching the given filter.
func (t *Tx) ListFiltered(ctx context.Context, filter query.Filter) ([]*types.S3Object, error) {
	where, args, err := filter.BuildWhere()
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(ctx, `SELECT `+selectColumns+` FROM s3_object WHERE `+where+` ORDER BY bucket, object_key, sequencer ASC`, args...)
	if err != nil {
		return nil, apperrors.Database("select filtered s3_object rows", err)
	}
	defer rows.Close()

	var out []*types.S3Object
	for rows.Next() {
		o, err := scanRow(rows)
		if err != nil {
			return nil, apperrors.Database("scan filtered row", err)
		}
		out = append(out, o)
	}
	return out, apperrors.Database("iterate filtered rows", rows.Err())
}

// ListFiltered runs a filtered list outside of any transaction, for plain
// read callers.
func (s *Store) ListFiltered(ctx context.Context, filter query.Filter) ([]*types.S3Object, error) {
	where, args, err := filter.BuildWhere()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM s3_object WHERE `+where+` ORDER BY bucket, object_key, sequencer ASC`, args...)
	if err != nil {
		return nil, apperrors.Database("select filtered s3_object rows", err)
	}
	defer rows.Close()

	var out []*types.S3Object
	for rows.Next() {
		o, err := scanRow(rows)
		if err != nil {
			return nil, apperrors.Database("scan filtered row", err)
		}
		out = append(out, o)
	}
	return out, apperrors.Database("iterate filtered rows", rows.Err())
}
