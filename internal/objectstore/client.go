// Package objectstore wraps the AWS S3 client with the calls the enricher,
// crawler and update engine need, normalizing the "null" version-id
// sentinel and S3 error shapes into this module's error taxonomy.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"

	"github.com/orcabus/filemanager/internal/apperrors"
	objtypes "github.com/orcabus/filemanager/internal/types"
)

// MaxListIterations bounds ListObjectVersions pagination. Hitting this cap
// is treated as fatal: a bucket that large indicates a misconfigured
// prefix, not legitimate work.
const MaxListIterations = 1000000

// API is the subset of S3 operations this module depends on. Production
// code constructs it from *s3.Client; tests substitute a fake.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObjectTagging(ctx context.Context, params *s3.GetObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error)
	PutObjectTagging(ctx context.Context, params *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
}

// PresignAPI is the subset needed to build presigned GetObject URLs.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Client is a mockable wrapper around the S3 client.
type Client struct {
	inner             API
	presign           PresignAPI
	maxListIterations int
}

// Option configures a Client.
type Option func(*Client)

// WithMaxListIterations overrides the pagination safety cap, normally from
// the paginatorIterationCap config key.
func WithMaxListIterations(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxListIterations = n
		}
	}
}

// New wraps an S3 API implementation, normally *s3.Client, along with a
// presign client built from the same configuration.
func New(inner API, presign PresignAPI, opts ...Option) *Client {
	c := &Client{inner: inner, presign: presign, maxListIterations: MaxListIterations}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResponseHeaders overrides response headers on a presigned GetObject URL.
type ResponseHeaders struct {
	ContentDisposition string
	ContentType        string
	ContentEncoding    string
}

// PresignGetObject builds a time-limited URL for retrieving an object
// version.
func (c *Client) PresignGetObject(ctx context.Context, bucket, key, versionID string, headers ResponseHeaders, expiresIn time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket:                     aws.String(bucket),
		Key:                        aws.String(key),
		VersionId:                  versionIDOrNil(versionID),
		ResponseContentDisposition: aws.String(headers.ContentDisposition),
	}
	if headers.ContentType != "" {
		input.ResponseContentType = aws.String(headers.ContentType)
	}
	if headers.ContentEncoding != "" {
		input.ResponseContentEncoding = aws.String(headers.ContentEncoding)
	}

	req, err := c.presign.PresignGetObject(ctx, input, func(o *s3.PresignOptions) {
		o.Expires = expiresIn
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindPresignedURL, "presign GetObject", err)
	}
	return req.URL, nil
}

// ObjectVersion is a single entry returned while paginating ListObjectVersions.
type ObjectVersion struct {
	Key                string
	VersionID          string
	IsLatest           bool
	Size               *int64
	ETag                *string
	StorageClass       string
	LastModified       *time.Time
	RestoreExpiryDate  *time.Time
	IsDeleteMarker     bool
}

// versionIDOrNil omits the version parameter for the "null" sentinel.
func versionIDOrNil(versionID string) *string {
	if versionID == objtypes.DefaultVersionID {
		return nil
	}
	return aws.String(versionID)
}

// HeadResult carries the fields the enricher copies onto a record.
type HeadResult struct {
	Size             *int64
	ETag             *string
	StorageClass     *objtypes.StorageClass
	LastModifiedDate *time.Time
	ArchiveStatus    *objtypes.ArchiveStatus
	Sha256           *string
}

// HeadObject populates object metadata for one (bucket, key, version_id).
func (c *Client) HeadObject(ctx context.Context, bucket, key, versionID string) (*HeadResult, error) {
	out, err := c.inner.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		VersionId:     versionIDOrNil(versionID),
		ChecksumMode:  types.ChecksumModeEnabled,
	})
	if err != nil {
		return nil, wrapErr("HeadObject", err)
	}

	result := &HeadResult{
		Size:             out.ContentLength,
		LastModifiedDate: out.LastModified,
	}
	if out.ETag != nil {
		quoted := objtypes.QuoteETag(*out.ETag)
		result.ETag = &quoted
	}
	if out.StorageClass != "" {
		sc := objtypes.StorageClass(out.StorageClass)
		result.StorageClass = &sc
	}
	if out.ArchiveStatus != "" {
		as := objtypes.ArchiveStatus(out.ArchiveStatus)
		result.ArchiveStatus = &as
	}
	if out.ChecksumSHA256 != nil {
		result.Sha256 = out.ChecksumSHA256
	}
	return result, nil
}

// IsNotFound reports whether err represents an S3 "not found" response,
// which callers treat as absence rather than failure during liveness
// probes.
func IsNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}

// GetObjectTagging returns the raw tag set for an object version.
func (c *Client) GetObjectTagging(ctx context.Context, bucket, key, versionID string) ([]types.Tag, error) {
	out, err := c.inner.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket:    aws.String(bucket),
		Key:       aws.String(key),
		VersionId: versionIDOrNil(versionID),
	})
	if err != nil {
		return nil, wrapErr("GetObjectTagging", err)
	}
	return out.TagSet, nil
}

// PutObjectTagging overwrites the tag set for an object version.
func (c *Client) PutObjectTagging(ctx context.Context, bucket, key, versionID string, tags []types.Tag) error {
	_, err := c.inner.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:    aws.String(bucket),
		Key:       aws.String(key),
		VersionId: versionIDOrNil(versionID),
		Tagging:   &types.Tagging{TagSet: tags},
	})
	if err != nil {
		return wrapErr("PutObjectTagging", err)
	}
	return nil
}

// ListObjectVersions paginates ListObjectVersions under bucket/prefix,
// merging pages up to the client's iteration cap (MaxListIterations unless
// overridden with WithMaxListIterations). Hitting the cap returns an error:
// a legitimate bucket never needs that many pages.
func (c *Client) ListObjectVersions(ctx context.Context, bucket, prefix string) ([]ObjectVersion, error) {
	var (
		keyMarker, versionIDMarker *string
		out                        []ObjectVersion
	)

	for i := 0; ; i++ {
		if i >= c.maxListIterations {
			return nil, apperrors.New(apperrors.KindCrawl, fmt.Sprintf("exceeded %d list iterations for bucket %s", c.maxListIterations, bucket))
		}

		input := &s3.ListObjectVersionsInput{
			Bucket:                   aws.String(bucket),
			KeyMarker:                keyMarker,
			VersionIdMarker:          versionIDMarker,
			OptionalObjectAttributes: []types.OptionalObjectAttributes{types.OptionalObjectAttributesRestoreStatus},
		}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}

		page, err := c.inner.ListObjectVersions(ctx, input)
		if err != nil {
			return nil, wrapErr("ListObjectVersions", err)
		}

		for _, v := range page.Versions {
			out = append(out, fromVersion(v))
		}
		for _, m := range page.DeleteMarkers {
			out = append(out, fromDeleteMarker(m))
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		keyMarker = page.NextKeyMarker
		versionIDMarker = page.NextVersionIdMarker
	}

	return out, nil
}

func fromVersion(v types.ObjectVersion) ObjectVersion {
	ov := ObjectVersion{
		Key:          aws.ToString(v.Key),
		VersionID:    aws.ToString(v.VersionId),
		IsLatest:     aws.ToBool(v.IsLatest),
		Size:         v.Size,
		LastModified: v.LastModified,
	}
	if v.ETag != nil {
		quoted := objtypes.QuoteETag(*v.ETag)
		ov.ETag = &quoted
	}
	ov.StorageClass = string(v.StorageClass)
	if v.RestoreStatus != nil {
		ov.RestoreExpiryDate = v.RestoreStatus.RestoreExpiryDate
	}
	return ov
}

func fromDeleteMarker(m types.DeleteMarkerEntry) ObjectVersion {
	return ObjectVersion{
		Key:            aws.ToString(m.Key),
		VersionID:      aws.ToString(m.VersionId),
		IsLatest:       aws.ToBool(m.IsLatest),
		LastModified:   m.LastModified,
		IsDeleteMarker: true,
	}
}

func wrapErr(call string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apperrors.ObjectStoreCall(call, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return apperrors.Wrap(apperrors.KindObjectStore, call, err)
}
