package crawl_test

import (
	"context"
	"testing"
	"time"

	"github.com/orcabus/filemanager/internal/crawl"
	"github.com/orcabus/filemanager/internal/objectstore"
	"github.com/orcabus/filemanager/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	versions []objectstore.ObjectVersion
}

func (f *fakeLister) ListObjectVersions(ctx context.Context, bucket, prefix string) ([]objectstore.ObjectVersion, error) {
	return f.versions, nil
}

func TestCrawlSkipsNonLatestVersions(t *testing.T) {
	lister := &fakeLister{versions: []objectstore.ObjectVersion{
		{Key: "a", VersionID: "v1", IsLatest: false},
		{Key: "a", VersionID: "v2", IsLatest: true},
	}}
	events, err := crawl.New(lister).Crawl(context.Background(), "bucket", "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "v2", events[0].VersionID)
	assert.Nil(t, events[0].Sequencer)
	assert.Equal(t, types.EventCreated, events[0].EventType)
}

func TestCrawlSetsReasonFromRestoreExpiry(t *testing.T) {
	expiry := time.Now()
	lister := &fakeLister{versions: []objectstore.ObjectVersion{
		{Key: "a", VersionID: "v1", IsLatest: true, RestoreExpiryDate: &expiry},
		{Key: "b", VersionID: "v1", IsLatest: true},
	}}
	events, err := crawl.New(lister).Crawl(context.Background(), "bucket", "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.ReasonCrawlRestored, events[0].Reason)
	assert.Equal(t, types.ReasonCrawl, events[1].Reason)
}
