package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orcabus/filemanager/internal/crawl"
	"github.com/orcabus/filemanager/internal/enrich"
	"github.com/orcabus/filemanager/internal/ingest"
	"github.com/orcabus/filemanager/internal/storage/sqlrel"
	"github.com/orcabus/filemanager/internal/telemetry"
)

var (
	crawlPrefix   string
	crawlEnrich   bool
	crawlTagWrite bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <bucket>",
	Short: "List a bucket's current versions and reconcile them into the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bucket := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		log := telemetry.NewLogger("crawl")
		_, shutdownMetrics, err := telemetry.InitMetrics(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer func() { _ = shutdownMetrics(ctx) }()
		_, shutdownTracing, err := telemetry.InitTracing(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = shutdownTracing(ctx) }()

		store, err := sqlrel.Open(ctx, cfg.DatabaseDriver, cfg.ConnectionString)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		s3, err := newObjectStore(ctx, cfg)
		if err != nil {
			return err
		}

		records, err := crawl.New(s3).Crawl(ctx, bucket, crawlPrefix)
		if err != nil {
			return err
		}
		log.Info("crawl listed versions", "bucket", bucket, "prefix", crawlPrefix, "records", len(records))

		var enricher ingest.Enricher
		if crawlEnrich {
			enricher = enrich.New(s3, enrich.Policy{
				IngestTagName:   cfg.IngestTagName,
				RequireIngestID: crawlTagWrite,
				Concurrency:     cfg.WorkerConcurrency,
			})
		}

		result, err := ingest.New(store, enricher, log).IngestEvents(ctx, records)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "crawled %s: %d records, %d inserted, %d duplicates, %d identities reconciled\n",
			bucket, len(records), result.Inserted, result.Duplicates, result.BucketKeysAffected)
		return nil
	},
}

func init() {
	crawlCmd.Flags().StringVar(&crawlPrefix, "prefix", "", "restrict the crawl to keys under this prefix")
	crawlCmd.Flags().BoolVar(&crawlEnrich, "enrich", true, "head each object for checksum and archive metadata")
	crawlCmd.Flags().BoolVar(&crawlTagWrite, "write-ingest-tag", false, "write a generated ingest id tag to untagged objects")
	rootCmd.AddCommand(crawlCmd)
}
