package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type searchResponse struct {
	Hits  []SearchHit `json:"hits"`
	Total int         `json:"total"`
}

// Search runs one hybrid search and returns ranked chunks.
func (c *Client) Search(ctx context.Context, req *SearchRequest) ([]SearchHit, error) {
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// CreateDocument submits a document for asynchronous ingestion. The receipt
// carries the queue message id and the derived source document id.
func (c *Client) CreateDocument(ctx context.Context, doc *Document) (IngestReceipt, error) {
	var receipt IngestReceipt
	if err := c.do(ctx, http.MethodPost, "/v1/documents", doc, &receipt); err != nil {
		return IngestReceipt{}, err
	}
	return receipt, nil
}

// Usage reads token budget state. period is "day" or "month"; empty means
// day.
func (c *Client) Usage(ctx context.Context, period string) (UsageReport, error) {
	path := "/v1/usage"
	if period != "" {
		path += "?period=" + url.QueryEscape(period)
	}
	var report UsageReport
	if err := c.do(ctx, http.MethodGet, path, nil, &report); err != nil {
		return UsageReport{}, err
	}
	return report, nil
}

// Healthy fetches the component health report. Degraded servers answer 503
// with the same body, so that status is not an error here.
func (c *Client) Healthy(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return Health{}, fmt.Errorf("casedex: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("casedex: GET /healthz: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		apiErr := &APIError{Status: resp.StatusCode, Code: "unknown", Message: resp.Status}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return Health{}, apiErr
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("casedex: decode response: %w", err)
	}
	return h, nil
}
