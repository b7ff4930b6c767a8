// Package crawl reconstructs object-creation events from the current
// listing of a bucket, for backfilling or repairing the index without
// relying on replayed notifications.
package crawl

import (
	"context"

	"github.com/orcabus/filemanager/internal/objectstore"
	"github.com/orcabus/filemanager/internal/types"
)

// Lister is the subset of the object store the crawler needs.
type Lister interface {
	ListObjectVersions(ctx context.Context, bucket, prefix string) ([]objectstore.ObjectVersion, error)
}

// Crawler derives synthetic Created events from the current object
// listing of a bucket.
type Crawler struct {
	store Lister
}

// New builds a Crawler over the given object store.
func New(store Lister) *Crawler {
	return &Crawler{store: store}
}

// Crawl lists every latest object version under bucket/prefix and emits one
// record per version.
func (c *Crawler) Crawl(ctx context.Context, bucket, prefix string) ([]*types.S3Object, error) {
	versions, err := c.store.ListObjectVersions(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}

	var out []*types.S3Object
	for _, v := range versions {
		if !v.IsLatest {
			continue
		}
		out = append(out, fromVersion(bucket, v))
	}
	return out, nil
}

func fromVersion(bucket string, v objectstore.ObjectVersion) *types.S3Object {
	obj := types.NewS3Object().
		WithBucket(bucket).
		WithKey(v.Key).
		WithVersionID(v.VersionID).
		WithEventType(types.EventCreated).
		WithSequencer(nil).
		WithIsDeleteMarker(v.IsDeleteMarker)

	obj.Size = v.Size
	obj.ETag = v.ETag
	obj.LastModifiedDate = v.LastModified
	if v.StorageClass != "" {
		sc := types.StorageClass(v.StorageClass)
		obj.StorageClass = &sc
	}

	if v.RestoreExpiryDate != nil {
		obj.Reason = types.ReasonCrawlRestored
	} else {
		obj.Reason = types.ReasonCrawl
	}

	return obj
}
