// Package extract calls the ESG metric extractor. The extractor is an
// opaque collaborator: it receives document text and returns an ordered
// list of metric records, and must never touch the document store.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

// Request is the extractor's input for one document.
type Request struct {
	DocID         string `json:"doc_id"`
	OrgID         string `json:"org_id"`
	ExtractedText string `json:"extracted_text"`
}

// Metric is one record returned by the extractor. Ordering is
// significant: positional synthetic memory-doc ids are derived from it.
type Metric struct {
	MetricType   string    `json:"metric_type"`
	MetricName   string    `json:"metric_name"`
	Value        float64   `json:"value"`
	Unit         string    `json:"unit"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Confidence   float64   `json:"confidence"`
	Method       string    `json:"method"`
	ModelVersion string    `json:"model_version"`
}

// Extractor produces metric records from document text.
type Extractor interface {
	Extract(ctx context.Context, req Request) ([]Metric, error)
}

// Client is the HTTP extractor client.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Extract(ctx context.Context, req Request) ([]Metric, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrExtractorFailed, "encode request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrExtractorFailed, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrExtractorFailed, "call extractor: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errdef.Wrap(errdef.ErrExtractorFailed, "extractor returned %d for doc %s", resp.StatusCode, req.DocID)
	}

	var result struct {
		Metrics []Metric `json:"metrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errdef.Wrap(errdef.ErrExtractorFailed, "decode response: %v", err)
	}
	return result.Metrics, nil
}
