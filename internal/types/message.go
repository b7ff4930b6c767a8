package types

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/orcabus/filemanager/internal/apperrors"
)

// rawRecords is the envelope of an S3 notification document as delivered
// over the message queue: a "Records" array of per-object entries.
type rawRecords struct {
	Records []rawRecord `json:"Records"`
}

type rawRecord struct {
	EventTime *time.Time `json:"eventTime"`
	EventName string     `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key       string `json:"key"`
			Size      *int64 `json:"size"`
			ETag      string `json:"eTag"`
			VersionID string `json:"versionId"`
			Sequencer string `json:"sequencer"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseNotification decodes one raw notification document into records,
// dropping entries whose event name is neither a creation nor a deletion
// variant. Object keys arrive URL-encoded and are decoded here; a key that
// fails to decode fails the whole document since silently ingesting a
// mangled key would corrupt the identity it indexes.
func ParseNotification(raw []byte) ([]*S3Object, error) {
	var doc rawRecords
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSerde, "decode notification document", err)
	}

	var out []*S3Object
	for _, r := range doc.Records {
		eventType, isDeleteMarker, ok := classifyEventName(r.EventName)
		if !ok {
			continue
		}

		key, err := url.QueryUnescape(strings.ReplaceAll(r.S3.Object.Key, "+", "%20"))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindSerde, "decode object key "+r.S3.Object.Key, err)
		}

		obj := NewS3Object().
			WithBucket(r.S3.Bucket.Name).
			WithKey(key).
			WithVersionID(r.S3.Object.VersionID).
			WithEventType(eventType).
			WithIsDeleteMarker(isDeleteMarker)
		obj.Reason = ReasonEventBridge
		obj.EventTime = r.EventTime
		obj.Size = r.S3.Object.Size
		if r.S3.Object.Sequencer != "" {
			seq := r.S3.Object.Sequencer
			obj.Sequencer = &seq
		}
		if r.S3.Object.ETag != "" {
			quoted := QuoteETag(r.S3.Object.ETag)
			obj.ETag = &quoted
		}

		out = append(out, obj)
	}
	return out, nil
}

// classifyEventName maps the source's "ObjectCreated:*" / "ObjectRemoved:*"
// names onto the two lifecycle transitions. Delete-marker creation is a
// Deleted event with is_delete_marker set.
func classifyEventName(name string) (eventType EventType, isDeleteMarker bool, ok bool) {
	switch {
	case strings.HasPrefix(name, "ObjectCreated:"):
		return EventCreated, false, true
	case name == "ObjectRemoved:DeleteMarkerCreated":
		return EventDeleted, true, true
	case strings.HasPrefix(name, "ObjectRemoved:"):
		return EventDeleted, false, true
	default:
		return "", false, false
	}
}
