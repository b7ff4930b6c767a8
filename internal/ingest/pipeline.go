// Package ingest orchestrates the event pipeline: raw notification
// documents are decoded, normalized, enriched and committed to the
// relational store one transactional batch at a time. Multiple batches may
// run in parallel on distinct connections; each batch is a unit of
// isolation.
package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/orcabus/filemanager/internal/apperrors"
	"github.com/orcabus/filemanager/internal/normalize"
	"github.com/orcabus/filemanager/internal/storage/sqlrel"
	"github.com/orcabus/filemanager/internal/telemetry"
	"github.com/orcabus/filemanager/internal/types"
)

// Store is the transactional ingest primitive, satisfied by *sqlrel.Store.
type Store interface {
	Ingest(ctx context.Context, events []*types.S3Object) (sqlrel.IngestResult, error)
}

// Enricher fills object metadata and ingest-id tagging onto records,
// satisfied by *enrich.Enricher.
type Enricher interface {
	Enrich(ctx context.Context, events []*types.S3Object) error
}

// MessageSource is the contract the message-queue poller (an external
// collaborator) implements. Receive blocks until at least one raw
// notification document is available or ctx is cancelled. Delivery is
// at-least-once: a batch whose ingest fails is redelivered by the source,
// so the pipeline does not retry failed batches itself.
type MessageSource interface {
	Receive(ctx context.Context) ([][]byte, error)
}

// Pipeline wires the normalizer, enricher and store into one ingest path.
type Pipeline struct {
	normalizer *normalize.Normalizer
	enricher   Enricher
	store      Store
	log        *slog.Logger
	metrics    telemetry.IngestMetrics
}

// New builds a Pipeline. enricher may be nil for crawl-style batches whose
// records already carry their metadata.
func New(store Store, enricher Enricher, log *slog.Logger) *Pipeline {
	return &Pipeline{
		normalizer: normalize.New(),
		enricher:   enricher,
		store:      store,
		log:        log,
		metrics:    telemetry.NewIngestMetrics(),
	}
}

// IngestRaw decodes raw notification documents and runs them through the
// full normalize/enrich/ingest path as one batch.
func (p *Pipeline) IngestRaw(ctx context.Context, docs [][]byte) (sqlrel.IngestResult, error) {
	var events []*types.S3Object
	for _, doc := range docs {
		parsed, err := types.ParseNotification(doc)
		if err != nil {
			return sqlrel.IngestResult{}, err
		}
		events = append(events, parsed...)
	}
	return p.IngestEvents(ctx, events)
}

// IngestEvents normalizes, enriches and commits one batch of records.
func (p *Pipeline) IngestEvents(ctx context.Context, events []*types.S3Object) (sqlrel.IngestResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "ingest.batch")
	defer span.End()

	transposed := p.normalizer.Normalize(events)
	if transposed.Len() == 0 {
		return sqlrel.IngestResult{}, nil
	}
	batch := transposed.Untranspose()

	if p.enricher != nil {
		if err := p.enricher.Enrich(ctx, batch); err != nil {
			return sqlrel.IngestResult{}, err
		}
	}

	result, err := p.ingestWithRetry(ctx, batch)
	if err != nil {
		return sqlrel.IngestResult{}, err
	}

	p.metrics.Inserted.Add(ctx, int64(result.Inserted))
	p.metrics.Duplicates.Add(ctx, int64(result.Duplicates))
	p.metrics.Reordered.Add(ctx, int64(result.Reordered))
	p.log.Info("ingested batch",
		slog.Int("events", len(batch)),
		slog.Int("inserted", result.Inserted),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("reordered", result.Reordered),
		slog.Int("bucket_keys", result.BucketKeysAffected),
	)
	return result, nil
}

// Run polls src and ingests each delivery until ctx is cancelled. Ingest
// errors are logged and dropped; the source redelivers the batch.
func (p *Pipeline) Run(ctx context.Context, src MessageSource) error {
	for {
		docs, err := src.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.Wrap(apperrors.KindMessageQueue, "receive", err)
		}
		if _, err := p.IngestRaw(ctx, docs); err != nil {
			p.log.Error("ingest failed, leaving batch for redelivery", slog.Any("error", err))
		}
	}
}

// ingestWithRetry retries the transactional ingest on transient connection
// and serialization errors. Each attempt is a fresh transaction, so a
// retry never observes partial writes.
func (p *Pipeline) ingestWithRetry(ctx context.Context, batch []*types.S3Object) (sqlrel.IngestResult, error) {
	var result sqlrel.IngestResult
	attempts := 0

	bo := backoff.NewExponentialBackOff()
	err := backoff.Retry(func() error {
		attempts++
		var err error
		result, err = p.store.Ingest(ctx, batch)
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))

	if attempts > 1 {
		p.log.Warn("ingest retried", slog.Int("attempts", attempts))
	}
	return result, err
}

// isRetryable reports whether err is a transient database error worth a
// fresh transaction attempt: stale pool connections and serialization
// conflicts between concurrent batches.
func isRetryable(err error) bool {
	if err == nil || !apperrors.Is(err, apperrors.KindDatabase) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, transient := range []string{
		"driver: bad connection",
		"invalid connection",
		"deadlock",
		"try restarting transaction",
		"lock wait timeout",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
