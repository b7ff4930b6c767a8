package sqlrel

import (
	"context"
	"database/sql"
	"sort"

	"github.com/orcabus/filemanager/internal/apperrors"
	"github.com/orcabus/filemanager/internal/types"
)

// zeroSequencer is the synthesized sequencer assigned to a crawl row when
// no existing row for the same version carries a real sequencer.
const zeroSequencer = "0000000000000000"

// crawlSequencerSuffix is appended to the greatest existing sequencer for
// a version so that a crawl row sorts immediately after it.
const crawlSequencerSuffix = "-0100000000000000"

// IngestResult summarizes one batch for telemetry.
type IngestResult struct {
	Inserted           int
	Duplicates         int
	Reordered          int
	BucketKeysAffected int
}

// Ingest runs the five-step reconciliation for one batch within a single
// transaction: upsert, reorder detection, crawl-sequencer synthesis,
// attribute carry-over and current-state reconciliation.
func (s *Store) Ingest(ctx context.Context, events []*types.S3Object) (IngestResult, error) {
	var result IngestResult
	if len(events) == 0 {
		return result, nil
	}

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		inserted, duplicates, err := upsertBatch(ctx, tx, events)
		if err != nil {
			return err
		}
		result.Inserted = inserted
		result.Duplicates = duplicates

		versionKeys := uniqueVersionKeys(events)

		reordered, err := detectReorders(ctx, tx, versionKeys)
		if err != nil {
			return err
		}
		result.Reordered = reordered

		if err := synthesizeCrawlSequencers(ctx, tx, versionKeys); err != nil {
			return err
		}

		if err := carryOverAttributes(ctx, tx, versionKeys); err != nil {
			return err
		}

		bucketKeys := uniqueBucketKeys(events)
		result.BucketKeysAffected = len(bucketKeys)
		if err := reconcileCurrentState(ctx, tx, bucketKeys); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	return result, nil
}

// Step 1 — upsert the batch. Conflict target is (bucket, object_key,
// version_id, sequencer, event_type); on conflict we bump the duplicate
// counter and otherwise leave the existing row untouched.
func upsertBatch(ctx context.Context, tx *sql.Tx, events []*types.S3Object) (inserted, duplicates int, err error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO s3_object (
			id, bucket, object_key, version_id, event_type, sequencer,
			event_time, last_modified_date, size, e_tag, sha256, storage_class,
			archive_status, is_delete_marker, is_current_state, reason,
			ingest_id, attributes, number_duplicate_events, number_reordered
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE number_duplicate_events = number_duplicate_events + ?
	`)
	if err != nil {
		return 0, 0, apperrors.Database("prepare insert s3_object", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range events {
		res, execErr := stmt.ExecContext(ctx,
			e.ID.String(), e.Bucket, e.Key, e.VersionID, e.EventType, e.Sequencer,
			e.EventTime, e.LastModifiedDate, e.Size, e.ETag, e.Sha256, storageClassString(e.StorageClass),
			archiveStatusString(e.ArchiveStatus), e.IsDeleteMarker, false, e.Reason,
			ingestIDString(e.IngestID), attributesString(e.Attributes), e.NumberDuplicateEvents, e.NumberReordered,
			e.NumberDuplicateEvents+1,
		)
		if execErr != nil {
			return 0, 0, apperrors.Database("insert s3_object", execErr)
		}
		affected, _ := res.RowsAffected()
		// MySQL reports 2 affected rows for an ON DUPLICATE KEY UPDATE that
		// modified a row, 1 for a fresh insert.
		if affected >= 2 {
			duplicates++
		} else {
			inserted++
		}
	}
	return inserted, duplicates, nil
}

// Step 2 — reorder detection. For each (bucket, key, version_id) touched
// by the batch, compare arrival order against sequencer order and flag
// every row involved in an inversion. Observability only.
func detectReorders(ctx context.Context, tx *sql.Tx, versionKeys []types.VersionKey) (int, error) {
	total := 0
	for _, vk := range versionKeys {
		rows, err := loadVersionRowsByArrival(ctx, tx, vk)
		if err != nil {
			return total, err
		}
		if len(rows) < 2 {
			continue
		}

		runningMaxIdx := 0
		for i := 1; i < len(rows); i++ {
			if sequencerLess(rows[i].Sequencer, rows[runningMaxIdx].Sequencer) {
				rows[i].NumberReordered++
				rows[runningMaxIdx].NumberReordered++
				total += 2
				if err := bumpReordered(ctx, tx, rows[i].ID.String()); err != nil {
					return total, err
				}
				if err := bumpReordered(ctx, tx, rows[runningMaxIdx].ID.String()); err != nil {
					return total, err
				}
				continue
			}
			if sequencerLess(rows[runningMaxIdx].Sequencer, rows[i].Sequencer) {
				runningMaxIdx = i
			}
		}
	}
	return total, nil
}

func bumpReordered(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `UPDATE s3_object SET number_reordered = number_reordered + 1 WHERE id = ?`, id)
	if err != nil {
		return apperrors.Database("bump number_reordered", err)
	}
	return nil
}

func loadVersionRowsByArrival(ctx context.Context, tx *sql.Tx, vk types.VersionKey) ([]*types.S3Object, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM s3_object
		WHERE bucket = ? AND object_key = ? AND version_id = ?
		ORDER BY arrival_seq ASC
	`, vk.Bucket, vk.Key, vk.VersionID)
	if err != nil {
		return nil, apperrors.Database("select version rows by arrival", err)
	}
	defer rows.Close()

	var out []*types.S3Object
	for rows.Next() {
		o, err := scanRow(rows)
		if err != nil {
			return nil, apperrors.Database("scan version row", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// sequencerLess compares optional sequencers, absent sorting first.
func sequencerLess(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return true
	case b == nil:
		return false
	default:
		return *a < *b
	}
}

// Step 3 — crawl sequencer synthesis.
func synthesizeCrawlSequencers(ctx context.Context, tx *sql.Tx, versionKeys []types.VersionKey) error {
	for _, vk := range versionKeys {
		rows, err := loadVersionRowsByArrival(ctx, tx, vk)
		if err != nil {
			return err
		}

		var maxSequencer *string
		for _, r := range rows {
			if r.Sequencer == nil {
				continue
			}
			if maxSequencer == nil || *maxSequencer < *r.Sequencer {
				maxSequencer = r.Sequencer
			}
		}

		for _, r := range rows {
			if r.Sequencer != nil {
				continue
			}
			var synthesized string
			if maxSequencer != nil {
				synthesized = *maxSequencer + crawlSequencerSuffix
			} else {
				synthesized = zeroSequencer
			}
			if _, err := tx.ExecContext(ctx, `UPDATE s3_object SET sequencer = ? WHERE id = ?`, synthesized, r.ID.String()); err != nil {
				return apperrors.Database("synthesize crawl sequencer", err)
			}
		}
	}
	return nil
}

// Step 5 (applied here, ahead of reconciliation) — attribute carry-over.
// For each version touched by the batch, every row with null attributes
// inherits the non-null attributes of another row for the same version.
func carryOverAttributes(ctx context.Context, tx *sql.Tx, versionKeys []types.VersionKey) error {
	for _, vk := range versionKeys {
		var existing sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT attributes FROM s3_object
			WHERE bucket = ? AND object_key = ? AND version_id = ? AND attributes IS NOT NULL
			LIMIT 1
		`, vk.Bucket, vk.Key, vk.VersionID).Scan(&existing)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return apperrors.Database("select existing attributes", err)
		}
		if !existing.Valid {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE s3_object SET attributes = ?
			WHERE bucket = ? AND object_key = ? AND version_id = ? AND attributes IS NULL
		`, existing.String, vk.Bucket, vk.Key, vk.VersionID); err != nil {
			return apperrors.Database("carry over attributes", err)
		}
	}
	return nil
}

// Step 4 — current-state reconciliation, the live-set fold.
func reconcileCurrentState(ctx context.Context, tx *sql.Tx, bucketKeys []types.BucketKey) error {
	for _, bk := range bucketKeys {
		rows, err := loadBucketKeyRowsOrdered(ctx, tx, bk)
		if err != nil {
			return err
		}

		currentID := computeCurrentStateID(rows)

		if _, err := tx.ExecContext(ctx, `
			UPDATE s3_object SET is_current_state = (id = ?)
			WHERE bucket = ? AND object_key = ?
		`, currentID, bk.Bucket, bk.Key); err != nil {
			return apperrors.Database("reconcile current state", err)
		}
	}
	return nil
}

// computeCurrentStateID folds events ordered by (sequencer, event_type)
// into a live set keyed by version_id, then picks the latest event of the
// live version with the greatest sequencer. Returns "" if no version is
// live.
func computeCurrentStateID(rows []*types.S3Object) string {
	type foldState struct {
		latest *types.S3Object
	}
	live := make(map[string]*foldState)

	for _, r := range rows {
		st, ok := live[r.VersionID]
		if !ok {
			st = &foldState{}
			live[r.VersionID] = st
		}
		st.latest = r
	}

	var current *types.S3Object
	for _, st := range live {
		r := st.latest
		isPermanentDelete := r.EventType == types.EventDeleted && !r.IsDeleteMarker
		if isPermanentDelete {
			continue
		}
		if current == nil || sequencerLess(current.Sequencer, r.Sequencer) {
			current = r
		}
	}

	if current == nil {
		return ""
	}
	return current.ID.String()
}

func loadBucketKeyRowsOrdered(ctx context.Context, tx *sql.Tx, bk types.BucketKey) ([]*types.S3Object, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM s3_object
		WHERE bucket = ? AND object_key = ?
		ORDER BY sequencer ASC, event_type ASC
	`, bk.Bucket, bk.Key)
	if err != nil {
		return nil, apperrors.Database("select bucket/key rows", err)
	}
	defer rows.Close()

	var out []*types.S3Object
	for rows.Next() {
		o, err := scanRow(rows)
		if err != nil {
			return nil, apperrors.Database("scan bucket/key row", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func uniqueVersionKeys(events []*types.S3Object) []types.VersionKey {
	seen := make(map[types.VersionKey]struct{})
	var out []types.VersionKey
	for _, e := range events {
		vk := e.VersionKey()
		if _, ok := seen[vk]; ok {
			continue
		}
		seen[vk] = struct{}{}
		out = append(out, vk)
	}
	return out
}

func uniqueBucketKeys(events []*types.S3Object) []types.BucketKey {
	seen := make(map[types.BucketKey]struct{})
	var out []types.BucketKey
	for _, e := range events {
		bk := e.BucketKey()
		if _, ok := seen[bk]; ok {
			continue
		}
		seen[bk] = struct{}{}
		out = append(out, bk)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ResetCurrentState clears is_current_state for every row of the supplied
// identities within one statement, deduping the identities first.
func (s *Store) ResetCurrentState(ctx context.Context, buckets, keys []string) error {
	if len(buckets) != len(keys) {
		return apperrors.New(apperrors.KindInvalidQuery, "buckets and keys must be the same length")
	}

	type bk struct{ bucket, key string }
	seen := make(map[bk]struct{}, len(buckets))
	for i := range buckets {
		seen[bk{buckets[i], keys[i]}] = struct{}{}
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		for pair := range seen {
			if _, err := tx.ExecContext(ctx, `
				UPDATE s3_object SET is_current_state = FALSE
				WHERE bucket = ? AND object_key = ?
			`, pair.bucket, pair.key); err != nil {
				return apperrors.Database("reset current state", err)
			}
		}
		return nil
	})
}
