package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateS3Object creates the s3_object table, the one table this module
// writes to. Enrichment fields are nullable because a record may be
// ingested before the enricher has run.
func MigrateS3Object(db *sql.DB) error {
	var tableName string
	err := db.QueryRow(`
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = 's3_object'
	`).Scan(&tableName)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("checking for s3_object table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE s3_object (
			id                      CHAR(36)     NOT NULL PRIMARY KEY,
			arrival_seq             BIGINT       NOT NULL AUTO_INCREMENT,
			bucket                  VARCHAR(100) NOT NULL,
			object_key              VARCHAR(400) NOT NULL,
			version_id              VARCHAR(100) NOT NULL DEFAULT 'null',
			event_type              VARCHAR(16)  NOT NULL,
			sequencer               VARCHAR(64)  NULL,
			event_time              DATETIME(6)  NULL,
			last_modified_date      DATETIME(6)  NULL,
			size                    BIGINT       NULL,
			e_tag                   VARCHAR(255) NULL,
			sha256                  VARCHAR(255) NULL,
			storage_class           VARCHAR(64)  NULL,
			archive_status          VARCHAR(64)  NULL,
			is_delete_marker        TINYINT(1)   NOT NULL DEFAULT 0,
			is_current_state        TINYINT(1)   NOT NULL DEFAULT 0,
			reason                  VARCHAR(32)  NOT NULL,
			ingest_id               CHAR(36)     NULL,
			attributes              JSON         NULL,
			number_duplicate_events INT          NOT NULL DEFAULT 0,
			number_reordered        INT          NOT NULL DEFAULT 0,

			UNIQUE KEY uq_s3_object_arrival (arrival_seq),
			UNIQUE KEY uq_s3_object_identity (bucket, object_key, version_id, sequencer, event_type),
			KEY idx_s3_object_bucket_key (bucket, object_key),
			KEY idx_s3_object_current (bucket, object_key, is_current_state),
			KEY idx_s3_object_ingest_id (ingest_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("creating s3_object table: %w", err)
	}
	return nil
}
