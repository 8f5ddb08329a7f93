// Package embed talks to the sentence-embedding sidecar. Every stored
// memory document carries a vector from one model; mixing models in a
// single index silently ruins similarity scores, so the client is
// pinned to a single model and dimension for the process lifetime.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

// Client embeds text via an HTTP embedding service.
type Client struct {
	url       string
	model     string
	dimension int
	http      *http.Client
}

func NewClient(url, model string, dimension int, timeout time.Duration) *Client {
	return &Client{
		url:       url,
		model:     model,
		dimension: dimension,
		http:      &http.Client{Timeout: timeout},
	}
}

// Dimension is the vector width this client is pinned to.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns the vector for text. A vector of the wrong width means
// the remote service is serving a different model than configured and
// is reported as a misconfiguration, not a transient failure.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{
		"input": text,
		"model": c.model,
	})
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrEmbeddingFailed, "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrEmbeddingFailed, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrEmbeddingFailed, "call embedding service: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errdef.Wrap(errdef.ErrEmbeddingFailed, "embedding service returned %d", resp.StatusCode)
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errdef.Wrap(errdef.ErrEmbeddingFailed, "decode response: %v", err)
	}
	if len(result.Embedding) == 0 {
		return nil, errdef.Wrap(errdef.ErrEmbeddingFailed, "empty embedding for %q model %s", truncate(text, 40), c.model)
	}
	if len(result.Embedding) != c.dimension {
		return nil, errdef.Wrap(errdef.ErrMisconfig,
			"embedding dimension mismatch: service returned %d, configured %d (model %s)",
			len(result.Embedding), c.dimension, c.model)
	}
	return result.Embedding, nil
}

// Probe embeds a fixed sentinel to verify the service is reachable and
// serving the configured model before any traffic is accepted.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.Embed(ctx, "dimension probe"); err != nil {
		return fmt.Errorf("embedding probe: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
