// Package ors is a client for the openrouteservice matrix endpoint.
package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"ors-matrix/internal/model"
)

const (
	DefaultBaseURL = "http://localhost:8080/ors"
	DefaultTimeout = 60 * time.Second
	DefaultRetries = 5
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RetryOverQueryLimit retries HTTP 429 responses with exponential backoff.
	// No other failure is retried.
	RetryOverQueryLimit bool
	RetryMax            int
	RetryWaitMin        time.Duration
	RetryWaitMax        time.Duration
}

// Pair holds both directional values of a two-point matrix.
type Pair struct {
	SrcToDest float64
	DestToSrc float64
}

// Client queries the matrix endpoint. It is safe for concurrent use; a single
// Client is shared read-only by all workers of a run.
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil
	rc.RetryMax = cfg.RetryMax
	if !cfg.RetryOverQueryLimit {
		rc.RetryMax = 0
	}
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.CheckRetry = checkOverQueryLimit(cfg.RetryOverQueryLimit)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug("retrying matrix request over query limit",
				zap.String("url", req.URL.String()), zap.Int("attempt", attempt))
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    rc,
	}
}

func checkOverQueryLimit(enabled bool) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil || resp == nil {
			return false, nil
		}
		return enabled && resp.StatusCode == http.StatusTooManyRequests, nil
	}
}

type matrixRequest struct {
	Locations [][]float64 `json:"locations"`
	Metrics   []string    `json:"metrics"`
	Units     string      `json:"units,omitempty"`
	Optimized bool        `json:"optimized"`
}

type matrixResponse struct {
	Distances [][]*float64    `json:"distances"`
	Durations [][]*float64    `json:"durations"`
	Error     json.RawMessage `json:"error"`
}

// Matrix requests the full matrix over locations for the configured metric.
// Unroutable cells are returned as NaN.
func (c *Client) Matrix(ctx context.Context, locations []model.Coordinate, params model.QueryParams) ([][]float64, error) {
	if len(locations) < 2 {
		return nil, validationError("need at least 2 locations, got %d", len(locations))
	}
	for i, loc := range locations {
		if !loc.Valid() {
			return nil, validationError("location %d out of range: lon=%v lat=%v", i, loc.Lon, loc.Lat)
		}
	}
	if err := params.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Err: err}
	}

	body := matrixRequest{
		Metrics:   []string{string(params.Metric)},
		Optimized: params.Optimized,
	}
	// Units are rejected by the service for duration matrices.
	if params.Metric == model.MetricDistance {
		body.Units = string(params.Units)
	}
	for _, loc := range locations {
		body.Locations = append(body.Locations, loc.List())
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode matrix request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/matrix/%s", c.baseURL, params.Profile)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return nil, fmt.Errorf("build matrix request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The passthrough error handler hands back the last response too.
		if resp != nil {
			resp.Body.Close()
		}
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}

	var decoded matrixResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && len(decoded.Error) > 0 {
			return nil, &Error{Kind: KindAPI, Status: resp.StatusCode, Message: apiMessage(decoded.Error)}
		}
		return nil, &Error{Kind: KindHTTP, Status: resp.StatusCode, Message: snippet(raw)}
	}
	if decodeErr != nil {
		return nil, &Error{Kind: KindHTTP, Status: resp.StatusCode, Message: "undecodable body", Err: decodeErr}
	}

	cells := decoded.Distances
	if params.Metric == model.MetricDuration {
		cells = decoded.Durations
	}
	if len(cells) != len(locations) {
		return nil, validationError("response %q has %d rows, want %d", params.Metric.ResponseKey(), len(cells), len(locations))
	}
	out := make([][]float64, len(cells))
	for i, row := range cells {
		if len(row) != len(locations) {
			return nil, validationError("response %q row %d has %d cells, want %d", params.Metric.ResponseKey(), i, len(row), len(locations))
		}
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				out[i][j] = math.NaN()
				continue
			}
			out[i][j] = *v
		}
	}
	return out, nil
}

// Query measures src→dest and dest→src with a single two-point matrix request.
// Locations are sent as [src, dest], so the off-diagonal cells are m[0][1] and m[1][0].
func (c *Client) Query(ctx context.Context, src, dest model.Coordinate, params model.QueryParams) (Pair, error) {
	m, err := c.Matrix(ctx, []model.Coordinate{src, dest}, params)
	if err != nil {
		return Pair{}, err
	}
	return Pair{SrcToDest: m[0][1], DestToSrc: m[1][0]}, nil
}

func apiMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return fmt.Sprintf("%s (code %d)", obj.Message, obj.Code)
	}
	return string(bytes.TrimSpace(raw))
}

func snippet(raw []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
