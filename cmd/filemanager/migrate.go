package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orcabus/filemanager/internal/apperrors"
	"github.com/orcabus/filemanager/internal/storage/sqlrel"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the bundled schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := sql.Open(cfg.DatabaseDriver, cfg.ConnectionString)
		if err != nil {
			return apperrors.Wrap(apperrors.KindDatabase, "open", err)
		}
		defer func() { _ = db.Close() }()

		if err := db.PingContext(cmd.Context()); err != nil {
			return apperrors.Wrap(apperrors.KindDatabase, "ping", err)
		}
		if err := sqlrel.Migrate(db); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
