package sqlrel

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/orcabus/filemanager/internal/types"
)

const selectColumns = `
	id, bucket, object_key, version_id, event_type, sequencer,
	event_time, last_modified_date, size, e_tag, sha256, storage_class,
	archive_status, is_delete_marker, is_current_state, reason, ingest_id,
	attributes, number_duplicate_events, number_reordered
`

func scanRow(scanner interface{ Scan(...any) error }) (*types.S3Object, error) {
	var (
		o          types.S3Object
		id         string
		ingestID   sql.NullString
		attributes sql.NullString
		storageClass sql.NullString
		archive    sql.NullString
	)

	err := scanner.Scan(
		&id, &o.Bucket, &o.Key, &o.VersionID, &o.EventType, &o.Sequencer,
		&o.EventTime, &o.LastModifiedDate, &o.Size, &o.ETag, &o.Sha256, &storageClass,
		&archive, &o.IsDeleteMarker, &o.IsCurrentState, &o.Reason, &ingestID,
		&attributes, &o.NumberDuplicateEvents, &o.NumberReordered,
	)
	if err != nil {
		return nil, err
	}

	o.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	if ingestID.Valid {
		parsed, err := uuid.Parse(ingestID.String)
		if err != nil {
			return nil, err
		}
		o.IngestID = &parsed
	}
	if storageClass.Valid {
		sc := types.StorageClass(storageClass.String)
		o.StorageClass = &sc
	}
	if archive.Valid {
		as := types.ArchiveStatus(archive.String)
		o.ArchiveStatus = &as
	}
	if attributes.Valid {
		o.Attributes = json.RawMessage(attributes.String)
	}
	return &o, nil
}

func ingestIDString(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func attributesString(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func storageClassString(sc *types.StorageClass) sql.NullString {
	if sc == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*sc), Valid: true}
}

func archiveStatusString(as *types.ArchiveStatus) sql.NullString {
	if as == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*as), Valid: true}
}
