package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

func embedServer(t *testing.T, dimension int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Input)
		assert.NotEmpty(t, req.Model)

		vec := make([]float32, dimension)
		for i := range vec {
			vec[i] = float32(i)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientEmbed(t *testing.T) {
	srv := embedServer(t, 4)
	c := NewClient(srv.URL, "all-MiniLM-L6-v2", 4, time.Second)

	vec, err := c.Embed(context.Background(), "carbon intensity fell")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 4, c.Dimension())
}

func TestClientDimensionMismatch(t *testing.T) {
	srv := embedServer(t, 8)
	c := NewClient(srv.URL, "all-MiniLM-L6-v2", 4, time.Second)

	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, errdef.ErrMisconfig)

	err = c.Probe(context.Background())
	assert.ErrorIs(t, err, errdef.ErrMisconfig)
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "all-MiniLM-L6-v2", 4, time.Second)
	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, errdef.ErrEmbeddingFailed)
}

func TestClientUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/embed", "m", 4, 200*time.Millisecond)
	_, err := c.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, errdef.ErrEmbeddingFailed)
}
