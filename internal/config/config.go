// Package config loads the process-wide configuration snapshot from a
// TOML file via viper, with environment variable overrides.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/orcabus/filemanager/internal/apperrors"
)

// EnvPrefix is the prefix automatic environment overrides use, e.g.
// FILEMANAGER_WORKERCONCURRENCY overrides workerConcurrency.
const EnvPrefix = "FILEMANAGER"

// Config is the configuration snapshot injected into every operation as an
// explicit context object, never read from ambient globals.
type Config struct {
	// ConnectionString is the relational store DSN, e.g.
	// "user:pass@tcp(host:3306)/filemanager".
	ConnectionString string `mapstructure:"connectionString"`
	// DatabaseDriver selects the database/sql driver: "mysql" for a server,
	// "dolt" for the embedded engine the CLI's local mode uses.
	DatabaseDriver string `mapstructure:"databaseDriver"`
	// MessageQueueURL is the inbound event queue the poller reads from.
	MessageQueueURL string `mapstructure:"messageQueueURL"`
	// IngestTagName is the object tag key the enricher and update engine
	// read/write the ingest id under.
	IngestTagName string `mapstructure:"ingestTagName"`
	// PresignExpiry is the default expiry for presigned GetObject URLs
	// when a caller doesn't supply one.
	PresignExpiry time.Duration `mapstructure:"presignExpiry"`
	// PaginatorIterationCap bounds ListObjectVersions pagination;
	// exceeding it is fatal.
	PaginatorIterationCap int `mapstructure:"paginatorIterationCap"`
	// WorkerConcurrency bounds the enricher's in-flight object-store
	// calls.
	WorkerConcurrency int `mapstructure:"workerConcurrency"`
	// OTLPEndpoint, when set, pushes metrics to an OTLP collector instead
	// of stdout.
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
	// S3 overrides how the object-store client connects, for S3-compatible
	// stores outside AWS.
	S3 S3Config `mapstructure:"s3"`
}

// S3Config carries optional overrides for the object-store client. All
// fields empty means the ambient AWS credential chain and endpoints.
type S3Config struct {
	// EndpointURL points the client at an S3-compatible store.
	EndpointURL string `mapstructure:"endpointURL"`
	Region      string `mapstructure:"region"`
	// AccessKeyID/SecretAccessKey supply static credentials; both must be
	// set together. Unset falls back to the default credential chain.
	AccessKeyID     string `mapstructure:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	// ForcePathStyle addresses buckets by path rather than virtual host,
	// which most non-AWS stores require.
	ForcePathStyle bool `mapstructure:"forcePathStyle"`
}

// defaults: ingestTagName defaults to "ingest_id", the paginator cap to
// 1,000,000, worker concurrency to 8.
func defaults(v *viper.Viper) {
	v.SetDefault("databaseDriver", "mysql")
	v.SetDefault("ingestTagName", "ingest_id")
	v.SetDefault("presignExpiry", 15*time.Minute)
	v.SetDefault("paginatorIterationCap", 1_000_000)
	v.SetDefault("workerConcurrency", 8)
}

// Load reads configuration from the TOML file at path (if it exists),
// applies FILEMANAGER_*-prefixed environment overrides, and returns the
// resulting snapshot. path == "" skips the file and relies on defaults
// plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows; bind the keys that have
	// no default so the environment can supply them too.
	for _, key := range []string{"connectionString", "messageQueueURL", "otlpEndpoint",
		"s3.endpointURL", "s3.region", "s3.accessKeyId", "s3.secretAccessKey", "s3.forcePathStyle"} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, apperrors.Wrap(apperrors.KindConfig, "read config file "+path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, "unmarshal config", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ConnectionString == "" {
		return apperrors.New(apperrors.KindConfig, "connectionString is required")
	}
	if c.WorkerConcurrency <= 0 {
		return apperrors.New(apperrors.KindConfig, "workerConcurrency must be positive")
	}
	if c.PaginatorIterationCap <= 0 {
		return apperrors.New(apperrors.KindConfig, "paginatorIterationCap must be positive")
	}
	if c.DatabaseDriver != "mysql" && c.DatabaseDriver != "dolt" {
		return apperrors.New(apperrors.KindConfig, "databaseDriver must be \"mysql\" or \"dolt\"")
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return apperrors.New(apperrors.KindConfig, "s3.accessKeyId and s3.secretAccessKey must be set together")
	}
	return nil
}
