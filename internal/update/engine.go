package update

import (
	"context"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/orcabus/filemanager/internal/apperrors"
	"github.com/orcabus/filemanager/internal/objectstore"
	"github.com/orcabus/filemanager/internal/query"
	"github.com/orcabus/filemanager/internal/types"
)

// Transaction is the subset of row-level operations the engine needs
// inside one commit unit. *sqlrel.Tx satisfies this.
type Transaction interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.S3Object, error)
	SetAttributes(ctx context.Context, id uuid.UUID, attributes []byte) (*types.S3Object, error)
	SetIngestID(ctx context.Context, id uuid.UUID, ingestID *uuid.UUID) (*types.S3Object, error)
	ListFiltered(ctx context.Context, filter query.Filter) ([]*types.S3Object, error)
}

// Store runs a function within a single transaction, committing only if
// it returns nil. *sqlrel.Store provides this through a thin adapter over
// its RunUpdate, whose callback takes *sqlrel.Tx rather than Transaction.
type Store interface {
	RunUpdate(ctx context.Context, fn func(tx Transaction) error) error
}

// TagWriter is the subset of the object store the engine needs for
// ingest-id tag write-back.
type TagWriter interface {
	PutObjectTagging(ctx context.Context, bucket, key, versionID string, tags []s3types.Tag) error
	HeadObject(ctx context.Context, bucket, key, versionID string) (*objectstore.HeadResult, error)
}

// Policy configures the engine's patch and tag-write-back behavior.
type Policy struct {
	// IngestTagName is the object tag key the engine writes the ingest id
	// under, default "ingest_id".
	IngestTagName string
	// AppendOnlyAttributes restricts the attributes patch to add/copy/test;
	// when false, remove/replace are also allowed.
	AppendOnlyAttributes bool
}

// Engine applies JSON-Patch mutations to s3_object rows and, when asked,
// writes the resulting ingest id back to the object store as a tag.
type Engine struct {
	store  Store
	s3     TagWriter
	policy Policy
}

// New builds an Engine. An IngestTagName of "" defaults to "ingest_id".
func New(store Store, s3 TagWriter, policy Policy) *Engine {
	if policy.IngestTagName == "" {
		policy.IngestTagName = "ingest_id"
	}
	return &Engine{store: store, s3: s3, policy: policy}
}

// UpdateAttributesByID applies patch to one row's attributes document.
func (e *Engine) UpdateAttributesByID(ctx context.Context, id uuid.UUID, patch Patch) (*types.S3Object, error) {
	var result *types.S3Object
	err := e.store.RunUpdate(ctx, func(tx Transaction) error {
		row, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		updated, err := ApplyAttributes(row.Attributes, patch, e.policy.AppendOnlyAttributes)
		if err != nil {
			return err
		}
		result, err = tx.SetAttributes(ctx, id, updated)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateCollectionAttributes applies patch to every row matching filter.
func (e *Engine) UpdateCollectionAttributes(ctx context.Context, filter query.Filter, patch Patch) ([]*types.S3Object, error) {
	var results []*types.S3Object
	err := e.store.RunUpdate(ctx, func(tx Transaction) error {
		rows, err := tx.ListFiltered(ctx, filter)
		if err != nil {
			return err
		}
		for _, row := range rows {
			updated, err := ApplyAttributes(row.Attributes, patch, e.policy.AppendOnlyAttributes)
			if err != nil {
				return err
			}
			saved, err := tx.SetAttributes(ctx, row.ID, updated)
			if err != nil {
				return err
			}
			results = append(results, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateIngestIDByID applies an ingestId patch to one row and, if
// updateTag is non-nil and the policy is satisfied, writes the new ingest
// id back to the object store within the same transaction.
func (e *Engine) UpdateIngestIDByID(ctx context.Context, id uuid.UUID, patch Patch, updateTag *types.UpdateTagKind) (*types.S3Object, error) {
	ingestID, err := ExtractIngestID(patch)
	if err != nil {
		return nil, err
	}

	var result *types.S3Object
	err = e.store.RunUpdate(ctx, func(tx Transaction) error {
		row, err := tx.SetIngestID(ctx, id, ingestID)
		if err != nil {
			return err
		}
		result = row
		return e.maybeWriteTag(ctx, updateTag, ingestID, row)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateCollectionIngestID applies an ingestId patch to every row matching
// filter, writing tags back per-row according to updateTag.
func (e *Engine) UpdateCollectionIngestID(ctx context.Context, filter query.Filter, patch Patch, updateTag *types.UpdateTagKind) ([]*types.S3Object, error) {
	ingestID, err := ExtractIngestID(patch)
	if err != nil {
		return nil, err
	}

	var results []*types.S3Object
	err = e.store.RunUpdate(ctx, func(tx Transaction) error {
		rows, err := tx.ListFiltered(ctx, filter)
		if err != nil {
			return err
		}
		for _, row := range rows {
			saved, err := tx.SetIngestID(ctx, row.ID, ingestID)
			if err != nil {
				return err
			}
			if err := e.maybeWriteTag(ctx, updateTag, ingestID, saved); err != nil {
				return err
			}
			results = append(results, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// maybeWriteTag implements the update_tag policy: "current" writes
// only if the row is the current-state row; "live" probes the object
// store and writes if the object still exists, treating not-found as
// "skip, don't fail".
func (e *Engine) maybeWriteTag(ctx context.Context, updateTag *types.UpdateTagKind, ingestID *uuid.UUID, row *types.S3Object) error {
	if updateTag == nil || ingestID == nil || e.s3 == nil {
		return nil
	}

	shouldWrite := false
	switch {
	case updateTag.IsCurrentUpdate():
		shouldWrite = row.IsCurrentState
	case updateTag.IsLiveUpdate():
		live, err := e.objectIsLive(ctx, row)
		if err != nil {
			return err
		}
		shouldWrite = live
	default:
		return apperrors.New(apperrors.KindInvalidQuery, "unknown updateTag kind")
	}

	if !shouldWrite {
		return nil
	}

	key := e.policy.IngestTagName
	value := ingestID.String()
	return e.s3.PutObjectTagging(ctx, row.Bucket, row.Key, row.VersionID, []s3types.Tag{{Key: &key, Value: &value}})
}

func (e *Engine) objectIsLive(ctx context.Context, row *types.S3Object) (bool, error) {
	_, err := e.s3.HeadObject(ctx, row.Bucket, row.Key, row.VersionID)
	if err == nil {
		return true, nil
	}
	if objectstore.IsNotFound(err) {
		return false, nil
	}
	return false, err
}
