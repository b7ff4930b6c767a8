package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orcabus/filemanager/internal/objectstore"
)

var (
	presignExpiry      time.Duration
	presignVersionID   string
	presignContentType string
	presignDisposition string
)

var presignCmd = &cobra.Command{
	Use:   "presign <bucket> <key>",
	Short: "Generate a presigned GetObject URL for an object version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s3, err := newObjectStore(ctx, cfg)
		if err != nil {
			return err
		}

		expiry := presignExpiry
		if expiry == 0 {
			expiry = cfg.PresignExpiry
		}

		url, err := s3.PresignGetObject(ctx, args[0], args[1], presignVersionID, objectstore.ResponseHeaders{
			ContentDisposition: presignDisposition,
			ContentType:        presignContentType,
		}, expiry)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

func init() {
	presignCmd.Flags().DurationVar(&presignExpiry, "expiry", 0, "URL expiry (defaults to the configured presignExpiry)")
	presignCmd.Flags().StringVar(&presignVersionID, "version-id", "null", "object version to presign")
	presignCmd.Flags().StringVar(&presignContentType, "content-type", "", "override the response Content-Type header")
	presignCmd.Flags().StringVar(&presignDisposition, "content-disposition", "inline", "override the response Content-Disposition header")
	rootCmd.AddCommand(presignCmd)
}
