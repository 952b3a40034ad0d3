// Package backend talks to the pandemic statistics REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"pandemic-dashboard/internal/models"
)

const (
	dataPath           = "/data/"
	updatePath         = "/data/update/"
	testConnectionPath = "/test_connection/"
	maxErrorBody       = 4 << 10
)

type Client struct {
	baseURL  string
	http     *http.Client
	logger   *slog.Logger
	metrics  *Metrics
	otelOpts []otelhttp.Option
}

type Option func(*Client)

// WithTracing sets the tracer provider and propagator used for outbound
// spans instead of the global ones.
func WithTracing(tp trace.TracerProvider, prop propagation.TextMapPropagator) Option {
	return func(c *Client) {
		c.otelOpts = append(c.otelOpts,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithPropagators(prop),
		)
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	// every backend call becomes a client span carrying traceparent
	otelOpts := append([]otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "backend " + r.Method + " " + r.URL.Path
		}),
	}, c.otelOpts...)
	c.http = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport, otelOpts...),
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// List fetches the full result set. Paging happens on our side.
func (c *Client) List(ctx context.Context) ([]models.Record, error) {
	var records []models.Record
	if err := c.do(ctx, "list", http.MethodGet, dataPath, nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, nil
}

func (c *Client) Create(ctx context.Context, r models.Record) (models.MutationResult, error) {
	var res models.MutationResult
	err := c.do(ctx, "create", http.MethodPost, dataPath, r, &res)
	return res, err
}

// Update PUTs the complete record; the backend locates it by its key.
func (c *Client) Update(ctx context.Context, r models.Record) (models.MutationResult, error) {
	var res models.MutationResult
	err := c.do(ctx, "update", http.MethodPut, updatePath, r, &res)
	return res, err
}

func (c *Client) Delete(ctx context.Context, key models.Key) (models.MutationResult, error) {
	var res models.MutationResult
	err := c.do(ctx, "delete", http.MethodDelete, dataPath+"?"+key.Query(), nil, &res)
	return res, err
}

// Ping asks the backend to check its own database connection.
func (c *Client) Ping(ctx context.Context) error {
	var res struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.do(ctx, "ping", http.MethodGet, testConnectionPath, nil, &res); err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("backend database unreachable: %s", res.Error)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, method, path, body, out)
	c.metrics.observe(op, err, time.Since(start))

	if err != nil {
		c.logger.ErrorContext(ctx, "backend request failed",
			"op", op,
			"method", method,
			"path", path,
			"error", err,
		)
		return err
	}

	c.logger.DebugContext(ctx, "backend request completed",
		"op", op,
		"method", method,
		"path", path,
		"duration", time.Since(start),
	)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Detail:     extractDetail(raw),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Method: method, Path: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// extractDetail pulls FastAPI's {"detail": ...} out of an error body, falling
// back to the trimmed raw text.
func extractDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		return string(body.Detail)
	}
	return strings.TrimSpace(string(raw))
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if se, ok := err.(*StatusError); ok {
		return strconv.Itoa(se.StatusCode)
	}
	return "transport"
}
