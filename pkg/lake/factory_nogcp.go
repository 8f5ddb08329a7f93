//go:build !gcp

package lake

import (
	"context"
	"fmt"
)

func newGCSObjectStore(_ context.Context, _ string) (ObjectStore, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
