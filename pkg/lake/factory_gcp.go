//go:build gcp

package lake

import "context"

func newGCSObjectStore(ctx context.Context, bucket string) (ObjectStore, error) {
	return NewGCSStore(ctx, bucket)
}
