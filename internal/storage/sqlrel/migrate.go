package sqlrel

import (
	"database/sql"
	"fmt"

	"github.com/orcabus/filemanager/internal/apperrors"
	"github.com/orcabus/filemanager/internal/storage/sqlrel/migrations"
)

type migrationFunc func(*sql.DB) error

// migrationSequence lists migrations in the order they must run. Each is
// idempotent: re-running a migration against an already-migrated database
// is a no-op.
var migrationSequence = []migrationFunc{
	migrations.MigrateS3Object,
}

// Migrate applies every migration in sequence.
func Migrate(db *sql.DB) error {
	for i, m := range migrationSequence {
		if err := m(db); err != nil {
			return apperrors.Wrap(apperrors.KindMigrate, fmt.Sprintf("migration %d", i+1), err)
		}
	}
	return nil
}
