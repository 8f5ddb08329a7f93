package lake

import (
	"context"
	"fmt"

	"github.com/gsg-platform/bridge/pkg/config"
)

// NewObjectStore builds the configured storage backend.
//
// Backends:
//   - "fs" (default): part files under LAKE_DIR
//   - "s3": LAKE_BUCKET required; LAKE_ENDPOINT for MinIO/LocalStack
//   - "gcs": LAKE_BUCKET required; needs a -tags gcp build
func NewObjectStore(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.LakeBackend {
	case "", "fs":
		return NewFileStore(cfg.LakeDir)
	case "s3":
		if cfg.LakeBucket == "" {
			return nil, fmt.Errorf("LAKE_BUCKET is required for s3 storage")
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.LakeBucket,
			Region:   cfg.LakeRegion,
			Endpoint: cfg.LakeEndpoint,
		})
	case "gcs":
		if cfg.LakeBucket == "" {
			return nil, fmt.Errorf("LAKE_BUCKET is required for gcs storage")
		}
		return newGCSObjectStore(ctx, cfg.LakeBucket)
	default:
		return nil, fmt.Errorf("unsupported lake backend: %s", cfg.LakeBackend)
	}
}
