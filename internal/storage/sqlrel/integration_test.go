package sqlrel_test

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/orcabus/filemanager/internal/query"
	"github.com/orcabus/filemanager/internal/storage/sqlrel"
	"github.com/orcabus/filemanager/internal/types"
	"github.com/orcabus/filemanager/internal/update"
)

var (
	testStore  *sqlrel.Store
	skipReason string
)

// TestMain provisions one Dolt container for the whole package; tests
// isolate themselves by bucket name.
func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if testing.Short() {
		skipReason = "short mode"
		return m.Run()
	}

	ctx := context.Background()
	container, err := dolt.Run(ctx, "dolthub/dolt-sql-server:1.32.4", dolt.WithDatabase("filemanager"))
	if err != nil {
		skipReason = fmt.Sprintf("dolt container unavailable: %v", err)
		return m.Run()
	}
	defer func() { _ = testcontainers.TerminateContainer(container) }()

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	if err != nil {
		skipReason = fmt.Sprintf("connection string: %v", err)
		return m.Run()
	}

	store, err := sqlrel.Open(ctx, "mysql", dsn)
	if err != nil {
		skipReason = fmt.Sprintf("open store: %v", err)
		return m.Run()
	}
	defer func() { _ = store.Close() }()

	testStore = store
	return m.Run()
}

func requireStore(t *testing.T) *sqlrel.Store {
	t.Helper()
	if testStore == nil {
		t.Skip(skipReason)
	}
	return testStore
}

func event(bucket, key, versionID string, eventType types.EventType, sequencer *string, marker bool) *types.S3Object {
	return &types.S3Object{
		ID:             uuid.New(),
		Bucket:         bucket,
		Key:            key,
		VersionID:      versionID,
		EventType:      eventType,
		Sequencer:      sequencer,
		IsDeleteMarker: marker,
		Reason:         types.ReasonEventBridge,
	}
}

func crawlRow(bucket, key, versionID string) *types.S3Object {
	e := event(bucket, key, versionID, types.EventCreated, nil, false)
	e.Reason = types.ReasonCrawl
	return e
}

func currentRows(t *testing.T, store *sqlrel.Store, bucket, key string) []*types.S3Object {
	t.Helper()
	rows, err := store.SelectCurrentByBucketKey(context.Background(), []string{bucket}, []string{key}, nil)
	require.NoError(t, err)
	return rows
}

func requireCurrentVersion(t *testing.T, store *sqlrel.Store, bucket, key, versionID string) {
	t.Helper()
	rows := currentRows(t, store, bucket, key)
	require.Len(t, rows, 1)
	assert.Equal(t, versionID, rows[0].VersionID)
}

// TestIngestSeedScenarios walks the full lifecycle of one (bucket, key)
// identity step by step against the real store: uploads, a permanent
// delete of a non-current version, a delete marker, an upload over the
// marker, and permanent deletes down to an empty live set.
func TestIngestSeedScenarios(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	const b, k = "seed-bucket", "key"

	ingest := func(events ...*types.S3Object) {
		t.Helper()
		_, err := store.Ingest(ctx, events)
		require.NoError(t, err)
	}

	ingest(
		event(b, k, "V1", types.EventCreated, s("s1"), false),
		event(b, k, "V2", types.EventCreated, s("s2"), false),
		event(b, k, "V3", types.EventCreated, s("s3"), false),
	)
	requireCurrentVersion(t, store, b, k, "V3")

	ingest(event(b, k, "V2", types.EventDeleted, s("s4"), false))
	requireCurrentVersion(t, store, b, k, "V3")

	ingest(
		event(b, k, "V4", types.EventDeleted, s("s5"), true),
		event(b, k, "V5", types.EventCreated, s("s6"), false),
	)
	requireCurrentVersion(t, store, b, k, "V5")

	ingest(event(b, k, "V5", types.EventDeleted, s("s7"), false))
	requireCurrentVersion(t, store, b, k, "V4")
	rows := currentRows(t, store, b, k)
	assert.True(t, rows[0].IsDeleteMarker)

	ingest(
		event(b, k, "V4", types.EventDeleted, s("s8"), false),
		event(b, k, "V3", types.EventDeleted, s("s9"), false),
	)
	requireCurrentVersion(t, store, b, k, "V1")

	ingest(event(b, k, "V1", types.EventDeleted, s("s99"), false))
	assert.Empty(t, currentRows(t, store, b, k))
}

// TestIngestIdempotence re-ingests an identical batch and asserts the only
// difference is the duplicate counter.
func TestIngestIdempotence(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	const b, k = "idempotence-bucket", "key"

	batch := []*types.S3Object{
		event(b, k, "V1", types.EventCreated, s("s1"), false),
		event(b, k, "V2", types.EventCreated, s("s2"), false),
	}
	first, err := store.Ingest(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	second, err := store.Ingest(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Duplicates)

	rows, err := store.SelectAllByBucketKey(ctx, []string{b}, []string{k}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, 1, row.NumberDuplicateEvents)
	}
	requireCurrentVersion(t, store, b, k, "V2")
}

// TestIngestOrderIndependence ingests every arrival permutation of one
// event history, each event as its own batch, and asserts the post-commit
// state is identical across permutations.
func TestIngestOrderIndependence(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	const k = "key"

	build := func(bucket string) []*types.S3Object {
		return []*types.S3Object{
			event(bucket, k, "V1", types.EventCreated, s("s1"), false),
			event(bucket, k, "V2", types.EventCreated, s("s2"), false),
			event(bucket, k, "V2", types.EventDeleted, s("s3"), false),
			event(bucket, k, "V3", types.EventDeleted, s("s4"), true),
		}
	}

	type signature struct {
		VersionID      string
		EventType      types.EventType
		Sequencer      string
		IsDeleteMarker bool
		IsCurrentState bool
	}

	var want []signature
	for i, perm := range permutations(4) {
		bucket := fmt.Sprintf("perm-bucket-%d", i)
		events := build(bucket)
		for _, idx := range perm {
			_, err := store.Ingest(ctx, []*types.S3Object{events[idx]})
			require.NoError(t, err)
		}

		rows, err := store.SelectAllByBucketKey(ctx, []string{bucket}, []string{k}, nil)
		require.NoError(t, err)
		var got []signature
		for _, row := range rows {
			require.NotNil(t, row.Sequencer)
			got = append(got, signature{row.VersionID, row.EventType, *row.Sequencer, row.IsDeleteMarker, row.IsCurrentState})
		}

		if want == nil {
			want = got
			// The live set is {V1, V3-marker}; the marker has the greatest
			// sequencer, so it is the current-state row.
			requireCurrentVersion(t, store, bucket, k, "V3")
			continue
		}
		assert.Equal(t, want, got, "permutation %v diverged", perm)
	}
}

// TestCrawlParity ingests a crawl-only batch and asserts exactly one
// current row per key with a synthesized sequencer.
func TestCrawlParity(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	const b = "crawl-bucket"

	batch := []*types.S3Object{
		crawlRow(b, "k1", "V1"),
		crawlRow(b, "k2", "V1"),
		crawlRow(b, "k3", "V1"),
	}
	_, err := store.Ingest(ctx, batch)
	require.NoError(t, err)

	for _, key := range []string{"k1", "k2", "k3"} {
		rows := currentRows(t, store, b, key)
		require.Len(t, rows, 1, "key %s", key)
		require.NotNil(t, rows[0].Sequencer)
	}
}

// TestCrawlSequencerSortsAfterLiveEvent checks that a crawl row
// for a version that already has a live sequencer is placed immediately
// after it and becomes the current-state row.
func TestCrawlSequencerSortsAfterLiveEvent(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	const b, k = "crawl-after-live-bucket", "key"

	_, err := store.Ingest(ctx, []*types.S3Object{
		event(b, k, "V1", types.EventCreated, s("0055AED6DC"), false),
	})
	require.NoError(t, err)

	crawled := crawlRow(b, k, "V1")
	_, err = store.Ingest(ctx, []*types.S3Object{crawled})
	require.NoError(t, err)

	rows := currentRows(t, store, b, k)
	require.Len(t, rows, 1)
	assert.Equal(t, crawled.ID, rows[0].ID)
	require.NotNil(t, rows[0].Sequencer)
	assert.Equal(t, "0055AED6DC-0100000000000000", *rows[0].Sequencer)
}

// TestAttributeCarryOver re-crawls an identity and asserts the previously
// set attributes document appears on the new crawl row.
func TestAttributeCarryOver(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	const b, k = "carryover-bucket", "key"

	first := crawlRow(b, k, "V1")
	first.Attributes = json.RawMessage(`{"portalRunId": "r1"}`)
	_, err := store.Ingest(ctx, []*types.S3Object{first})
	require.NoError(t, err)

	second := crawlRow(b, k, "V1")
	_, err = store.Ingest(ctx, []*types.S3Object{second})
	require.NoError(t, err)

	rows, err := store.SelectAllByBucketKey(ctx, []string{b}, []string{k}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.JSONEq(t, `{"portalRunId": "r1"}`, string(row.Attributes))
	}
	rows = currentRows(t, store, b, k)
	require.Len(t, rows, 1)
}

func TestResetCurrentState(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	const b, k = "reset-bucket", "key"

	_, err := store.Ingest(ctx, []*types.S3Object{
		event(b, k, "V1", types.EventCreated, s("s1"), false),
	})
	require.NoError(t, err)
	require.Len(t, currentRows(t, store, b, k), 1)

	// Duplicated identities collapse before execution.
	err = store.ResetCurrentState(ctx, []string{b, b}, []string{k, k})
	require.NoError(t, err)
	assert.Empty(t, currentRows(t, store, b, k))
}

// updateStoreAdapter narrows *sqlrel.Store to the update engine's Store
// interface, the way the HTTP collaborator wires the two together.
type updateStoreAdapter struct {
	store *sqlrel.Store
}

func (a updateStoreAdapter) RunUpdate(ctx context.Context, fn func(update.Transaction) error) error {
	return a.store.RunUpdate(ctx, func(tx *sqlrel.Tx) error { return fn(tx) })
}

// TestUpdateEngineAgainstStore runs a JSON-Patch attribute update and a
// filtered collection update through the real transactional path.
func TestUpdateEngineAgainstStore(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	const b, k = "update-bucket", "key"

	_, err := store.Ingest(ctx, []*types.S3Object{
		event(b, k, "V1", types.EventCreated, s("s1"), false),
	})
	require.NoError(t, err)

	rows, err := store.SelectAllByBucketKey(ctx, []string{b}, []string{k}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id := rows[0].ID

	engine := update.New(updateStoreAdapter{store}, nil, update.Policy{})

	patch := update.Patch{{Op: update.OpAdd, Path: "/a", Value: json.RawMessage(`"1"`)}}
	row, err := engine.UpdateAttributesByID(ctx, id, patch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": "1"}`, string(row.Attributes))

	// A failing test op aborts without mutating the row.
	failing := update.Patch{{Op: update.OpTest, Path: "/a", Value: json.RawMessage(`"2"`)}}
	_, err = engine.UpdateAttributesByID(ctx, id, failing)
	require.Error(t, err)
	got, err := store.SelectAllByBucketKey(ctx, []string{b}, []string{k}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": "1"}`, string(got[0].Attributes))

	// Collection update over an attributes JSON-path filter.
	filter := query.Filter{
		Columns:    []query.ColumnMatch{{Column: query.ColumnBucket, Patterns: []string{b}}},
		Attributes: []query.AttributeMatch{{Path: "a", Patterns: []string{"1"}}},
	}
	updated, err := engine.UpdateCollectionAttributes(ctx, filter, update.Patch{
		{Op: update.OpAdd, Path: "/b", Value: json.RawMessage(`"2"`)},
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.JSONEq(t, `{"a": "1", "b": "2"}`, string(updated[0].Attributes))
}

func s(v string) *string { return &v }

// permutations returns every ordering of [0, n).
func permutations(n int) [][]int {
	base := make([]int, n)
	for i := range base {
		base[i] = i
	}
	var out [][]int
	var recurse func(prefix, rest []int)
	recurse = func(prefix, rest []int) {
		if len(rest) == 0 {
			out = append(out, append([]int(nil), prefix...))
			return
		}
		for i := range rest {
			nextPrefix := append(append([]int(nil), prefix...), rest[i])
			nextRest := append(append([]int(nil), rest[:i]...), rest[i+1:]...)
			recurse(nextPrefix, nextRest)
		}
	}
	recurse(nil, base)
	return out
}
