// Package enrich fills in object metadata and ingest-id tagging for
// normalized events by calling out to the object store, fanning out with a
// bounded number of in-flight requests.
package enrich

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/orcabus/filemanager/internal/objectstore"
	objtypes "github.com/orcabus/filemanager/internal/types"
)

// Store is the subset of the object store the enricher depends on.
type Store interface {
	HeadObject(ctx context.Context, bucket, key, versionID string) (*objectstore.HeadResult, error)
	GetObjectTagging(ctx context.Context, bucket, key, versionID string) ([]types.Tag, error)
	PutObjectTagging(ctx context.Context, bucket, key, versionID string, tags []types.Tag) error
}

// DefaultIngestTagName is the object tag key holding the ingest id, unless
// overridden by configuration.
const DefaultIngestTagName = "ingest_id"

// Policy configures the enricher: the ingest-id tag name, whether
// (RequireIngestID) a generated ingest-id is written back to objects that
// don't carry one, and the in-flight request bound.
type Policy struct {
	IngestTagName   string
	RequireIngestID bool
	Concurrency     int
}

// Enricher populates size/e_tag/storage_class/ingest_id on each record by
// querying the object store.
type Enricher struct {
	store  Store
	policy Policy
}

// New builds an Enricher. A Concurrency of zero defaults to 8 concurrent
// in-flight requests.
func New(store Store, policy Policy) *Enricher {
	if policy.IngestTagName == "" {
		policy.IngestTagName = DefaultIngestTagName
	}
	if policy.Concurrency <= 0 {
		policy.Concurrency = 8
	}
	return &Enricher{store: store, policy: policy}
}

// Enrich enriches every record in place, concurrently, bounded by the
// configured concurrency. The first per-object failure cancels the rest
// and is returned; errors are propagated, never swallowed.
func (e *Enricher) Enrich(ctx context.Context, events []*objtypes.S3Object) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.policy.Concurrency)

	for _, event := range events {
		event := event
		g.Go(func() error {
			return e.enrichOne(ctx, event)
		})
	}
	return g.Wait()
}

func (e *Enricher) enrichOne(ctx context.Context, event *objtypes.S3Object) error {
	// A Deleted event has nothing to head or tag: the referenced version is
	// either gone or a delete marker.
	if event.EventType == objtypes.EventDeleted {
		return nil
	}

	head, err := e.store.HeadObject(ctx, event.Bucket, event.Key, event.VersionID)
	if err != nil {
		return err
	}
	event.Size = head.Size
	event.ETag = head.ETag
	event.StorageClass = head.StorageClass
	event.LastModifiedDate = head.LastModifiedDate
	event.ArchiveStatus = head.ArchiveStatus
	event.Sha256 = head.Sha256

	tags, err := e.store.GetObjectTagging(ctx, event.Bucket, event.Key, event.VersionID)
	if err != nil {
		return err
	}

	ingestID, found := findIngestTag(tags, e.policy.IngestTagName)
	switch {
	case found:
		event.IngestID = ingestID
	case e.policy.RequireIngestID:
		generated := uuid.New()
		event.IngestID = &generated
		if err := e.store.PutObjectTagging(ctx, event.Bucket, event.Key, event.VersionID, appendIngestTag(tags, e.policy.IngestTagName, generated)); err != nil {
			return err
		}
	}
	return nil
}

func findIngestTag(tags []types.Tag, tagName string) (*uuid.UUID, bool) {
	for _, tag := range tags {
		if tag.Key == nil || *tag.Key != tagName || tag.Value == nil {
			continue
		}
		id, err := uuid.Parse(*tag.Value)
		if err != nil {
			return nil, false
		}
		return &id, true
	}
	return nil, false
}

func appendIngestTag(tags []types.Tag, tagName string, id uuid.UUID) []types.Tag {
	value := id.String()
	out := make([]types.Tag, 0, len(tags)+1)
	for _, tag := range tags {
		if tag.Key != nil && *tag.Key == tagName {
			continue
		}
		out = append(out, tag)
	}
	key := tagName
	return append(out, types.Tag{Key: &key, Value: &value})
}
