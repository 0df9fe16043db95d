// Package client is a Go client for the heart-risk HTTP API.
package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"heart-risk/internal/engine"
	"heart-risk/internal/features"
	"heart-risk/internal/ml"
	"heart-risk/internal/report"
	"heart-risk/internal/server"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
	Kind       string
	Violations *features.SchemaError
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("heart-risk: %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("heart-risk: %d %s", e.StatusCode, e.Message)
}

// RowError is a failed batch row as the server reports it.
type RowError struct {
	Row        int                   `json:"row"`
	Kind       string                `json:"kind"`
	Message    string                `json:"message"`
	Violations *features.SchemaError `json:"violations,omitempty"`
}

// RowOutcome carries exactly one of Result or Error.
type RowOutcome struct {
	Row    int                      `json:"row"`
	Result *engine.PredictionResult `json:"result,omitempty"`
	Error  *RowError                `json:"error,omitempty"`
}

// Batch is the decoded JSON form of a batch result.
type Batch struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	ModelVersion  string         `json:"model_version"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at"`
	Total         int            `json:"total"`
	Succeeded     int            `json:"succeeded"`
	Failed        int            `json:"failed"`
	Categories    []string       `json:"categories"`
	RiskHistogram map[string]int `json:"risk_histogram"`
	Rows          []RowOutcome   `json:"rows"`
}

// BatchReply is the server's answer to a batch upload. Batch is set for the
// JSON format; Report always holds the raw body.
type BatchReply struct {
	Batch       *Batch
	Report      []byte
	FileName    string
	ContentType string
}

// Client talks to one heart-risk server.
type Client struct {
	base string
	rest *resty.Client
}

// New creates a client for the server at base, e.g. http://localhost:8080.
func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Health fetches GET /health. An unready server is an *APIError with 503.
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var out server.HealthResponse
	if _, err := c.do(ctx, c.rest.R().SetResult(&out), "GET", "/health"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelInfo fetches GET /model-info.
func (c *Client) ModelInfo(ctx context.Context) (*ml.ModelInfo, error) {
	var out ml.ModelInfo
	if _, err := c.do(ctx, c.rest.R().SetResult(&out), "GET", "/model-info"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analytics fetches GET /analytics.
func (c *Client) Analytics(ctx context.Context) (*server.AnalyticsResponse, error) {
	var out server.AnalyticsResponse
	if _, err := c.do(ctx, c.rest.R().SetResult(&out), "GET", "/analytics"); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictOne scores one record. Schema violations come back as an
// *APIError with StatusCode 400 and Violations set.
func (c *Client) PredictOne(ctx context.Context, record map[string]any) (*engine.PredictionResult, error) {
	var out engine.PredictionResult
	req := c.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(record).
		SetResult(&out)
	if _, err := c.do(ctx, req, "POST", "/predict"); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictBatch scores JSON records and returns the decoded batch.
func (c *Client) PredictBatch(ctx context.Context, records []map[string]any) (*Batch, error) {
	var out Batch
	req := c.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(records).
		SetResult(&out)
	if _, err := c.do(ctx, req, "POST", "/batch_predict"); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictBatchCSV uploads CSV rows and asks for the given report format.
func (c *Client) PredictBatchCSV(ctx context.Context, csv io.Reader, format report.Format) (*BatchReply, error) {
	if format == "" {
		format = report.FormatJSON
	}
	req := c.rest.R().
		SetHeader("Content-Type", "text/csv").
		SetQueryParam("format", string(format)).
		SetBody(csv)

	var batch Batch
	if format == report.FormatJSON {
		req.SetResult(&batch)
	}
	resp, err := c.do(ctx, req, "POST", "/batch_predict")
	if err != nil {
		return nil, err
	}

	reply := &BatchReply{
		Report:      resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
		FileName:    attachmentName(resp.Header().Get("Content-Disposition")),
	}
	if format == report.FormatJSON {
		reply.Batch = &batch
	}
	return reply, nil
}

func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func (c *Client) do(ctx context.Context, req *resty.Request, method, path string) (*resty.Response, error) {
	var apiErr server.ErrorResponse
	resp, err := req.SetContext(ctx).SetError(&apiErr).Execute(method, c.base+path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(resp.String())
		}
		return resp, &APIError{
			StatusCode: resp.StatusCode(),
			Message:    apiErr.Error,
			Kind:       apiErr.Kind,
			Violations: apiErr.Violations,
		}
	}
	return resp, nil
}
