// Package config loads pipeline configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Pipeline holds everything the linear driver needs for a full
// organize-then-import run.
type Pipeline struct {
	SourceBucket string `env:"DI_SOURCE_BUCKET,required"`
	SourcePrefix string `env:"DI_SOURCE_PREFIX"`
	TargetBucket string `env:"DI_TARGET_BUCKET"` // defaults to source bucket
	TargetPrefix string `env:"DI_TARGET_PREFIX" envDefault:"organized"`

	OutputBucket string `env:"DI_IMPORT_OUTPUT_BUCKET,required"`
	OutputPrefix string `env:"DI_IMPORT_OUTPUT_PREFIX" envDefault:"import-output"`

	DatastoreName     string `env:"DI_DATASTORE_NAME" envDefault:"dicom-import"`
	DatastoreID       string `env:"DI_DATASTORE_ID"` // set to reuse a known datastore
	DataAccessRoleARN string `env:"DI_DATA_ACCESS_ROLE_ARN,required"`

	PollInterval time.Duration `env:"DI_POLL_INTERVAL" envDefault:"30s"`
	MaxWait      time.Duration `env:"DI_MAX_WAIT" envDefault:"1h"`

	SeenCachePath string `env:"DI_SEEN_CACHE"` // empty disables resume cache
	FrameOutURI   string `env:"DI_FRAME_OUT"`  // file:// or s3:// target for the demo frame fetch

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// FromEnv parses a Pipeline config from the process environment.
func FromEnv() (Pipeline, error) {
	var cfg Pipeline
	if err := env.Parse(&cfg); err != nil {
		return Pipeline{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.TargetBucket == "" {
		cfg.TargetBucket = cfg.SourceBucket
	}
	return cfg, nil
}

// InputS3URI is the import job input location (the organized prefix).
func (c Pipeline) InputS3URI() string {
	return s3URI(c.TargetBucket, c.TargetPrefix)
}

// OutputS3URI is where HealthImaging writes the import job results.
func (c Pipeline) OutputS3URI() string {
	return s3URI(c.OutputBucket, c.OutputPrefix)
}

func s3URI(bucket, prefix string) string {
	if prefix == "" {
		return "s3://" + bucket + "/"
	}
	return "s3://" + bucket + "/" + prefix + "/"
}
