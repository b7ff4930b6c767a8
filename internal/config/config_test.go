package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orcabus/filemanager/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `connectionString = "user:pass@tcp(localhost:3306)/filemanager"`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ingest_id", cfg.IngestTagName)
	assert.Equal(t, 1_000_000, cfg.PaginatorIterationCap)
	assert.Equal(t, 8, cfg.WorkerConcurrency)
	assert.Equal(t, 15*time.Minute, cfg.PresignExpiry)
}

func TestLoadReadsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
connectionString = "user:pass@tcp(localhost:3306)/filemanager"
messageQueueURL = "https://sqs.example.com/queue"
ingestTagName = "custom_tag"
presignExpiry = "1h"
paginatorIterationCap = 5
workerConcurrency = 2
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://sqs.example.com/queue", cfg.MessageQueueURL)
	assert.Equal(t, "custom_tag", cfg.IngestTagName)
	assert.Equal(t, time.Hour, cfg.PresignExpiry)
	assert.Equal(t, 5, cfg.PaginatorIterationCap)
	assert.Equal(t, 2, cfg.WorkerConcurrency)
}

func TestLoadS3Overrides(t *testing.T) {
	path := writeConfig(t, `
connectionString = "user:pass@tcp(localhost:3306)/filemanager"

[s3]
endpointURL = "http://localhost:9000"
region = "us-east-1"
accessKeyId = "minio"
secretAccessKey = "minio123"
forcePathStyle = true
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.DatabaseDriver)
	assert.Equal(t, "http://localhost:9000", cfg.S3.EndpointURL)
	assert.True(t, cfg.S3.ForcePathStyle)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `
connectionString = "file:///tmp/db"
databaseDriver = "postgres"
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsPartialStaticCredentials(t *testing.T) {
	path := writeConfig(t, `
connectionString = "user:pass@tcp(localhost:3306)/filemanager"

[s3]
accessKeyId = "minio"
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingConnectionString(t *testing.T) {
	path := writeConfig(t, `messageQueueURL = "https://sqs.example.com/queue"`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, `connectionString = "user:pass@tcp(localhost:3306)/filemanager"`)
	t.Setenv("FILEMANAGER_WORKERCONCURRENCY", "16")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.WorkerConcurrency)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err) // no connectionString available from env or defaults
}
