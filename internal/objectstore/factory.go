package objectstore

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nrms/data-bridge/pkg/apperr"
)

// Source names the logical object-store source a component depends on.
type Source string

const (
	// External is the read-only source bucket of encrypted CSVs.
	External Source = "external"
	// Internal is the read-write target bucket of decrypted CSVs.
	Internal Source = "internal"
)

// BucketConfig configures one logical bucket.
type BucketConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	TopLevelFolder  string `yaml:"top_level_folder"`
	// LocalRoot, when set, bypasses S3 and backs the store with a local
	// directory. Used for local development and tests.
	LocalRoot string `yaml:"local_root"`
}

// Config maps each logical source to a bucket configuration.
type Config struct {
	External BucketConfig `yaml:"external"`
	Internal BucketConfig `yaml:"internal"`
}

// Factory resolves a logical source to a concrete Store.
type Factory struct {
	cfg Config
}

// NewFactory builds a Factory from Config.
func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg}
}

// Store returns the read-write Store for the given logical source.
func (f *Factory) Store(ctx context.Context, source Source) (Store, error) {
	var bucket BucketConfig

	switch source {
	case External, Internal:
		if source == External {
			bucket = f.cfg.External
		} else {
			bucket = f.cfg.Internal
		}
	default:
		return nil, apperr.New(apperr.KindConfig, "objectstore", "Store", fmt.Sprintf("unknown source %q", source))
	}

	base, err := f.backend(ctx, bucket)
	if err != nil {
		return nil, err
	}

	if bucket.TopLevelFolder == "" {
		return base, nil
	}

	return NewPrefixed(base, bucket.TopLevelFolder), nil
}

// ReadOnlyStore returns the read-only view of the given logical source.
func (f *Factory) ReadOnlyStore(ctx context.Context, source Source) (ReadOnlyStore, error) {
	return f.Store(ctx, source)
}

func (f *Factory) backend(ctx context.Context, bucket BucketConfig) (Store, error) {
	if bucket.LocalRoot != "" {
		return NewLocalStore(bucket.LocalRoot)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(bucket.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			bucket.AccessKeyID, bucket.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "objectstore", "backend", "load aws config failed", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if bucket.Endpoint != "" {
			o.BaseEndpoint = &bucket.Endpoint
			o.UsePathStyle = true
		}
	})

	return NewS3Store(client, bucket.Bucket), nil
}
