package sqlrel

import (
	"context"
	"strings"

	"github.com/orcabus/filemanager/internal/apperrors"
	"github.com/orcabus/filemanager/internal/types"
)

// SelectCurrentByBucketKey returns the current-state row for each matching
// (bucket, key[, version_id]) identity.
func (s *Store) SelectCurrentByBucketKey(ctx context.Context, buckets, keys, versionIDs []string) ([]*types.S3Object, error) {
	return s.selectByBucketKey(ctx, buckets, keys, versionIDs, true)
}

// SelectAllByBucketKey returns every version's events for the matching
// identities, regardless of current-state.
func (s *Store) SelectAllByBucketKey(ctx context.Context, buckets, keys, versionIDs []string) ([]*types.S3Object, error) {
	return s.selectByBucketKey(ctx, buckets, keys, versionIDs, false)
}

func (s *Store) selectByBucketKey(ctx context.Context, buckets, keys, versionIDs []string, currentOnly bool) ([]*types.S3Object, error) {
	if len(buckets) != len(keys) {
		return nil, apperrors.New(apperrors.KindInvalidQuery, "buckets and keys must be the same length")
	}
	if len(versionIDs) != 0 && len(versionIDs) != len(buckets) {
		return nil, apperrors.New(apperrors.KindInvalidQuery, "version_ids must be empty or match buckets length")
	}

	var clauses []string
	var args []any
	for i := range buckets {
		if len(versionIDs) != 0 {
			clauses = append(clauses, "(bucket = ? AND object_key = ? AND version_id = ?)")
			args = append(args, buckets[i], keys[i], versionIDs[i])
		} else {
			clauses = append(clauses, "(bucket = ? AND object_key = ?)")
			args = append(args, buckets[i], keys[i])
		}
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + selectColumns + ` FROM s3_object WHERE (` + strings.Join(clauses, " OR ") + `)`
	if currentOnly {
		query += ` AND is_current_state = TRUE`
	}
	query += ` ORDER BY bucket, object_key, sequencer ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Database("select by bucket/key", err)
	}
	defer rows.Close()

	var out []*types.S3Object
	for rows.Next() {
		o, err := scanRow(rows)
		if err != nil {
			return nil, apperrors.Database("scan row", err)
		}
		out = append(out, o)
	}
	return out, apperrors.Database("iterate rows", rows.Err())
}
