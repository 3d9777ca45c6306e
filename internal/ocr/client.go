// Package ocr talks to the document analysis service. The service is a
// black box: we submit a storage URI, poll the job until it settles, and
// read back per-page layout blocks.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/domain"
)

// Job terminal statuses as reported by the analysis service.
const (
	StatusInProgress     = "IN_PROGRESS"
	StatusSucceeded      = "SUCCEEDED"
	StatusFailed         = "FAILED"
	StatusPartialSuccess = "PARTIAL_SUCCESS"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// Config holds the analysis service connection settings.
type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	PollTimeout  time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Client submits analysis jobs and fetches their results.
type Client struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pollTimeout  time.Duration
	http         *http.Client
	logger       *zap.Logger
}

// NewClient creates an analysis service client.
func NewClient(cfg *Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		http:         httpClient,
		logger:       logger,
	}
}

// RawGeometry is the reported bounding box, normalized to [0,1].
// Pointers distinguish absent fields from zero values.
type RawGeometry struct {
	Top    *float64 `json:"top"`
	Left   *float64 `json:"left"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// RawBlock is one layout block as returned by the analysis service.
// Confidence is a percentage in [0,100].
type RawBlock struct {
	Text       string       `json:"text"`
	BlockType  string       `json:"block_type"`
	TextType   string       `json:"text_type"`
	Confidence float64      `json:"confidence"`
	Geometry   *RawGeometry `json:"geometry"`
}

// RawPage is the per-page slice of an analysis result.
type RawPage struct {
	PageNumber int        `json:"page_number"`
	Blocks     []RawBlock `json:"blocks"`
}

// RawResult is a settled analysis job.
type RawResult struct {
	JobID  string    `json:"job_id"`
	Status string    `json:"status"`
	Pages  []RawPage `json:"pages"`
}

type startJobRequest struct {
	StorageURI string   `json:"storage_uri"`
	Features   []string `json:"features"`
}

type startJobResponse struct {
	JobID string `json:"job_id"`
}

// AnalyzeDocument submits an analysis job for the object at storageURI and
// polls until it settles. Only SUCCEEDED jobs return a result; FAILED and
// PARTIAL_SUCCESS surface as errors so the caller's retry policy decides.
func (c *Client) AnalyzeDocument(ctx context.Context, storageURI string) (*RawResult, error) {
	jobID, err := c.startJob(ctx, storageURI)
	if err != nil {
		return nil, err
	}

	c.logger.Info("analysis job started",
		zap.String("job_id", jobID),
		zap.String("storage_uri", storageURI))

	result, err := c.pollJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if result.Status != StatusSucceeded {
		return nil, fmt.Errorf("analysis job %s finished with status %s: %w",
			jobID, result.Status, domain.ErrTransientIO)
	}

	return result, nil
}

// RenderPage fetches the rendered image of one page (1-based) of the
// object at storageURI.
func (c *Client) RenderPage(ctx context.Context, storageURI string, page int) ([]byte, error) {
	u := fmt.Sprintf("%s/v1/renders?storage_uri=%s&page=%s",
		c.baseURL, url.QueryEscape(storageURI), strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %v: %w", page, err, domain.ErrTransientIO)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) startJob(ctx context.Context, storageURI string) (string, error) {
	body, err := json.Marshal(startJobRequest{
		StorageURI: storageURI,
		Features:   []string{"LAYOUT"},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/analyses", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("start analysis: %v: %w", err, domain.ErrTransientIO)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("start analysis: %w", err)
	}

	var start startJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		return "", fmt.Errorf("decode start response: %v: %w", err, domain.ErrMalformedOCR)
	}
	if start.JobID == "" {
		return "", fmt.Errorf("start response missing job_id: %w", domain.ErrMalformedOCR)
	}

	return start.JobID, nil
}

func (c *Client) pollJob(ctx context.Context, jobID string) (*RawResult, error) {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		result, err := c.getJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch result.Status {
		case StatusSucceeded, StatusFailed, StatusPartialSuccess:
			return result, nil
		}

		c.logger.Debug("analysis job in progress", zap.String("job_id", jobID))

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("analysis job %s timed out after %s: %w",
				jobID, c.pollTimeout, domain.ErrTransientIO)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) getJob(ctx context.Context, jobID string) (*RawResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/analyses/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get analysis %s: %v: %w", jobID, err, domain.ErrTransientIO)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", jobID, err)
	}

	var result RawResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %v: %w", jobID, err, domain.ErrMalformedOCR)
	}

	return &result, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// checkStatus maps HTTP failures onto the error taxonomy: 5xx and 429 are
// retryable, anything else 4xx is fatal for the request.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, detail, domain.ErrTransientIO)
	}

	return fmt.Errorf("status %d: %s", resp.StatusCode, detail)
}
