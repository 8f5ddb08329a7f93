package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("bridge-query")
	require.Equal(t, "bridge-query", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.True(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// The disabled provider must stay a safe no-op.
	ctx, finish := p.TrackOperation(context.Background(), "test.op",
		attribute.String("tenant", "GSG"))
	require.NotNil(t, ctx)
	finish(nil)
	finish2 := func() {
		_, done := p.TrackOperation(context.Background(), "test.failing")
		done(errors.New("boom"))
	}
	require.NotPanics(t, finish2)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTrackOperationNilConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	opCtx, finish := p.TrackOperation(ctx, "ingest.extract")
	require.NotNil(t, opCtx)
	finish(errors.New("extractor unavailable"))
}

func TestHTTPMiddlewareDisabledProvider(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	var called bool
	h := p.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/kv/foo", nil))
	require.True(t, called)
	require.Equal(t, http.StatusTeapot, rec.Code)
}
