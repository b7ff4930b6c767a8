package enrich_test

import (
	"context"
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/orcabus/filemanager/internal/enrich"
	"github.com/orcabus/filemanager/internal/objectstore"
	"github.com/orcabus/filemanager/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	tags     map[string][]s3types.Tag
	putCalls int
}

func (f *fakeStore) HeadObject(ctx context.Context, bucket, key, versionID string) (*objectstore.HeadResult, error) {
	size := int64(42)
	return &objectstore.HeadResult{Size: &size}, nil
}

func (f *fakeStore) GetObjectTagging(ctx context.Context, bucket, key, versionID string) ([]s3types.Tag, error) {
	return f.tags[key], nil
}

func (f *fakeStore) PutObjectTagging(ctx context.Context, bucket, key, versionID string, tags []s3types.Tag) error {
	f.putCalls++
	f.tags[key] = tags
	return nil
}

func TestEnrichPopulatesIngestIDFromExistingTag(t *testing.T) {
	id := uuid.New()
	keyName := "ingest_id"
	valName := id.String()
	store := &fakeStore{tags: map[string][]s3types.Tag{
		"k1": {{Key: &keyName, Value: &valName}},
	}}

	events := []*types.S3Object{{Bucket: "b", Key: "k1", VersionID: "v1"}}
	err := enrich.New(store, enrich.Policy{}).Enrich(context.Background(), events)
	require.NoError(t, err)
	require.NotNil(t, events[0].IngestID)
	assert.Equal(t, id, *events[0].IngestID)
	assert.Equal(t, 0, store.putCalls)
	assert.Equal(t, int64(42), *events[0].Size)
}

func TestEnrichSkipsDeletedEvents(t *testing.T) {
	store := &fakeStore{tags: map[string][]s3types.Tag{}}
	events := []*types.S3Object{{Bucket: "b", Key: "k1", VersionID: "v1", EventType: types.EventDeleted}}

	err := enrich.New(store, enrich.Policy{RequireIngestID: true}).Enrich(context.Background(), events)
	require.NoError(t, err)
	assert.Nil(t, events[0].Size)
	assert.Nil(t, events[0].IngestID)
	assert.Equal(t, 0, store.putCalls)
}

func TestEnrichWritesBackGeneratedIngestIDWhenRequired(t *testing.T) {
	store := &fakeStore{tags: map[string][]s3types.Tag{}}
	events := []*types.S3Object{{Bucket: "b", Key: "k1", VersionID: "v1"}}

	err := enrich.New(store, enrich.Policy{RequireIngestID: true}).Enrich(context.Background(), events)
	require.NoError(t, err)
	require.NotNil(t, events[0].IngestID)
	assert.Equal(t, 1, store.putCalls)
}
