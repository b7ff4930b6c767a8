// Package types defines the flat object-event record that flows through
// the normalizer, enricher, crawler and ingester, along with its small
// tagged-variant fields.
package types

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultVersionID is the sentinel version id used for objects in buckets
// that do not have versioning enabled.
const DefaultVersionID = "null"

// EventType is the lifecycle transition a record describes.
type EventType string

const (
	EventCreated EventType = "Created"
	EventDeleted EventType = "Deleted"
)

func (e EventType) Valid() bool {
	return e == EventCreated || e == EventDeleted
}

func (e *EventType) Scan(value any) error {
	s, err := scanString(value)
	if err != nil {
		return err
	}
	*e = EventType(s)
	return nil
}

func (e EventType) Value() (driver.Value, error) {
	return string(e), nil
}

// Reason records the provenance of a record.
type Reason string

const (
	ReasonEventBridge   Reason = "EventBridge"
	ReasonCrawl         Reason = "Crawl"
	ReasonCrawlRestored Reason = "CrawlRestored"
	ReasonCreatedCopy   Reason = "CreatedCopy"
)

func (r *Reason) Scan(value any) error {
	s, err := scanString(value)
	if err != nil {
		return err
	}
	*r = Reason(s)
	return nil
}

func (r Reason) Value() (driver.Value, error) {
	return string(r), nil
}

// StorageClass mirrors the S3 storage class header.
type StorageClass string

const (
	StorageClassStandard           StorageClass = "STANDARD"
	StorageClassStandardIA         StorageClass = "STANDARD_IA"
	StorageClassOnezoneIA          StorageClass = "ONEZONE_IA"
	StorageClassIntelligentTiering StorageClass = "INTELLIGENT_TIERING"
	StorageClassGlacier            StorageClass = "GLACIER"
	StorageClassDeepArchive        StorageClass = "DEEP_ARCHIVE"
	StorageClassGlacierIR          StorageClass = "GLACIER_IR"
	StorageClassReducedRedundancy  StorageClass = "REDUCED_REDUNDANCY"
)

// ArchiveStatus mirrors the S3 archive status header for restored objects.
type ArchiveStatus string

const (
	ArchiveStatusArchiveAccess      ArchiveStatus = "ARCHIVE_ACCESS"
	ArchiveStatusDeepArchiveAccess  ArchiveStatus = "DEEP_ARCHIVE_ACCESS"
)

// UpdateTagKind selects the tag write-back policy for an ingest-id update.
type UpdateTagKind string

const (
	// UpdateTagCurrent writes the tag only if the matched row is current.
	UpdateTagCurrent UpdateTagKind = "current"
	// UpdateTagLive writes the tag if the object is live on the store,
	// even for a non-current row.
	UpdateTagLive UpdateTagKind = "live"
)

func (k UpdateTagKind) IsCurrentUpdate() bool { return k == UpdateTagCurrent }
func (k UpdateTagKind) IsLiveUpdate() bool    { return k == UpdateTagLive }

// S3Object is a row in s3_object: one event for one object version.
type S3Object struct {
	ID               uuid.UUID
	Bucket           string
	Key              string
	VersionID        string
	EventType        EventType
	Sequencer        *string
	EventTime        *time.Time
	LastModifiedDate *time.Time
	Size             *int64
	ETag             *string
	Sha256           *string
	StorageClass     *StorageClass
	ArchiveStatus    *ArchiveStatus
	IsDeleteMarker   bool
	IsCurrentState   bool
	Reason           Reason
	IngestID         *uuid.UUID
	// Attributes holds arbitrary user metadata as a raw JSON document.
	Attributes             []byte
	NumberDuplicateEvents   int
	NumberReordered         int
}

// NewS3Object constructs a record with a generated id and the sentinel
// version id.
func NewS3Object() *S3Object {
	return &S3Object{
		ID:        uuid.New(),
		VersionID: DefaultVersionID,
	}
}

// WithBucket sets the bucket and returns the receiver for chaining.
func (o *S3Object) WithBucket(bucket string) *S3Object {
	o.Bucket = bucket
	return o
}

func (o *S3Object) WithKey(key string) *S3Object {
	o.Key = key
	return o
}

func (o *S3Object) WithVersionID(versionID string) *S3Object {
	if versionID == "" {
		versionID = DefaultVersionID
	}
	o.VersionID = versionID
	return o
}

func (o *S3Object) WithSequencer(sequencer *string) *S3Object {
	o.Sequencer = sequencer
	return o
}

func (o *S3Object) WithEventType(eventType EventType) *S3Object {
	o.EventType = eventType
	return o
}

func (o *S3Object) WithIsDeleteMarker(v bool) *S3Object {
	o.IsDeleteMarker = v
	return o
}

func (o *S3Object) WithIsCurrentState(v bool) *S3Object {
	o.IsCurrentState = v
	return o
}

// IdentityKey is the dedup/conflict-target key:
// (bucket, key, version_id, sequencer, event_type).
type IdentityKey struct {
	Bucket     string
	Key        string
	VersionID  string
	Sequencer  string // empty string represents "absent"
	EventType  EventType
}

func (o *S3Object) IdentityKey() IdentityKey {
	seq := ""
	if o.Sequencer != nil {
		seq = *o.Sequencer
	}
	return IdentityKey{
		Bucket:    o.Bucket,
		Key:       o.Key,
		VersionID: o.VersionID,
		Sequencer: seq,
		EventType: o.EventType,
	}
}

// VersionKey identifies a single (bucket, key, version_id) identity.
type VersionKey struct {
	Bucket    string
	Key       string
	VersionID string
}

func (o *S3Object) VersionKey() VersionKey {
	return VersionKey{Bucket: o.Bucket, Key: o.Key, VersionID: o.VersionID}
}

// BucketKey identifies a (bucket, key) identity, the unit over which
// current-state is computed.
type BucketKey struct {
	Bucket string
	Key    string
}

func (o *S3Object) BucketKey() BucketKey {
	return BucketKey{Bucket: o.Bucket, Key: o.Key}
}

// TransposedEvents is the parallel-array form of a batch of S3Objects, used
// for bulk binding into the relational store.
type TransposedEvents struct {
	IDs                   []uuid.UUID
	Buckets               []string
	Keys                  []string
	VersionIDs            []string
	EventTypes            []EventType
	Sequencers            []*string
	EventTimes            []*time.Time
	LastModifiedDates     []*time.Time
	Sizes                 []*int64
	ETags                 []*string
	Sha256s               []*string
	StorageClasses        []*StorageClass
	ArchiveStatuses       []*ArchiveStatus
	IsDeleteMarkers       []bool
	IsCurrentStates       []bool
	Reasons               []Reason
	IngestIDs             []*uuid.UUID
	Attributes            [][]byte
	NumberDuplicateEvents []int
	NumberReordered       []int
}

// Len returns the number of records in the transposed batch.
func (t *TransposedEvents) Len() int { return len(t.IDs) }

// Transpose converts a slice of records into parallel-array form.
func Transpose(events []*S3Object) *TransposedEvents {
	t := &TransposedEvents{}
	for _, e := range events {
		t.IDs = append(t.IDs, e.ID)
		t.Buckets = append(t.Buckets, e.Bucket)
		t.Keys = append(t.Keys, e.Key)
		t.VersionIDs = append(t.VersionIDs, e.VersionID)
		t.EventTypes = append(t.EventTypes, e.EventType)
		t.Sequencers = append(t.Sequencers, e.Sequencer)
		t.EventTimes = append(t.EventTimes, e.EventTime)
		t.LastModifiedDates = append(t.LastModifiedDates, e.LastModifiedDate)
		t.Sizes = append(t.Sizes, e.Size)
		t.ETags = append(t.ETags, e.ETag)
		t.Sha256s = append(t.Sha256s, e.Sha256)
		t.StorageClasses = append(t.StorageClasses, e.StorageClass)
		t.ArchiveStatuses = append(t.ArchiveStatuses, e.ArchiveStatus)
		t.IsDeleteMarkers = append(t.IsDeleteMarkers, e.IsDeleteMarker)
		t.IsCurrentStates = append(t.IsCurrentStates, e.IsCurrentState)
		t.Reasons = append(t.Reasons, e.Reason)
		t.IngestIDs = append(t.IngestIDs, e.IngestID)
		t.Attributes = append(t.Attributes, e.Attributes)
		t.NumberDuplicateEvents = append(t.NumberDuplicateEvents, e.NumberDuplicateEvents)
		t.NumberReordered = append(t.NumberReordered, e.NumberReordered)
	}
	return t
}

// Untranspose converts parallel-array form back into a slice of records.
func (t *TransposedEvents) Untranspose() []*S3Object {
	out := make([]*S3Object, 0, t.Len())
	for i := range t.IDs {
		out = append(out, &S3Object{
			ID:                    t.IDs[i],
			Bucket:                t.Buckets[i],
			Key:                   t.Keys[i],
			VersionID:             t.VersionIDs[i],
			EventType:             t.EventTypes[i],
			Sequencer:             t.Sequencers[i],
			EventTime:             t.EventTimes[i],
			LastModifiedDate:      t.LastModifiedDates[i],
			Size:                  t.Sizes[i],
			ETag:                  t.ETags[i],
			Sha256:                t.Sha256s[i],
			StorageClass:          t.StorageClasses[i],
			ArchiveStatus:         t.ArchiveStatuses[i],
			IsDeleteMarker:        t.IsDeleteMarkers[i],
			IsCurrentState:        t.IsCurrentStates[i],
			Reason:                t.Reasons[i],
			IngestID:              t.IngestIDs[i],
			Attributes:            t.Attributes[i],
			NumberDuplicateEvents: t.NumberDuplicateEvents[i],
			NumberReordered:       t.NumberReordered[i],
		})
	}
	return out
}

func scanString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported scan type %T", value)
	}
}

// QuoteETag wraps an ETag in double quotes if it isn't already, matching
// the way S3 returns them, so stored ETags compare byte-for-byte whether
// they came from a crawl listing or a head call.
func QuoteETag(tag string) string {
	if len(tag) >= 2 && tag[0] == '"' && tag[len(tag)-1] == '"' {
		return tag
	}
	return `"` + tag + `"`
}
