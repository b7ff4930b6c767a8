package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/orcabus/filemanager/internal/config"
	"github.com/orcabus/filemanager/internal/objectstore"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "filemanager",
	Short:         "Index the lifecycle of versioned objects in an S3-compatible store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the TOML config file (FILEMANAGER_* env vars override)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newObjectStore builds the S3 client pair from the config's object-store
// overrides, falling back to the ambient AWS credential chain.
func newObjectStore(ctx context.Context, cfg *config.Config) (*objectstore.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	if cfg.S3.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.S3.EndpointURL)
		}
		o.UsePathStyle = cfg.S3.ForcePathStyle
	})
	return objectstore.New(client, s3.NewPresignClient(client),
		objectstore.WithMaxListIterations(cfg.PaginatorIterationCap)), nil
}
