// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/woakes070048/n8n-flow-manager/internal/tracing"
	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/httpclient"
)

const (
	// APIKeyHeader carries the n8n API key.
	APIKeyHeader = "X-N8N-API-KEY"

	apiPrefix = "/api/v1"

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 32 << 20

	// maxErrorBody bounds the body captured in a TransportError.
	maxErrorBody = 2048

	instrumentationName = "github.com/woakes070048/n8n-flow-manager/pkg/n8n"
)

// Client talks to the n8n public REST API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
	tracer     trace.Tracer

	Workflows   *WorkflowService
	Executions  *ExecutionService
	Credentials *CredentialService
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithHTTPConfig builds the HTTP client from cfg.
func WithHTTPConfig(cfg httpclient.Config) Option {
	return func(c *Client) error {
		client, err := httpclient.New(cfg)
		if err != nil {
			return err
		}
		c.httpClient = client
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithTracerProvider sets the tracer provider used for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) error {
		c.tracer = tp.Tracer(instrumentationName)
		return nil
	}
}

// New creates a client for the n8n instance at baseURL. The "/api/v1"
// suffix is added when missing.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, &flowerrors.ConfigError{Key: "base_url", Reason: "required"}
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &flowerrors.ConfigError{Key: "base_url", Reason: fmt.Sprintf("invalid URL %q", baseURL), Cause: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &flowerrors.ConfigError{Key: "base_url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if apiKey == "" {
		return nil, &flowerrors.ConfigError{Key: "api_key", Reason: "required"}
	}

	base := u.String()
	if !strings.HasSuffix(base, apiPrefix) {
		base += apiPrefix
	}

	c := &Client{
		baseURL: base,
		apiKey:  apiKey,
		logger:  slog.Default(),
		tracer:  otel.GetTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.httpClient == nil {
		client, err := httpclient.New(httpclient.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.httpClient = client
	}

	c.Workflows = &WorkflowService{client: c}
	c.Executions = &ExecutionService{client: c}
	c.Credentials = &CredentialService{client: c}
	return c, nil
}

// BaseURL returns the API root, including the version prefix.
func (c *Client) BaseURL() string { return c.baseURL }

// Request sends one API call and returns the raw JSON body, which is nil
// for empty responses. Non-2xx replies and transport failures are returned
// as *errors.TransportError.
func (c *Client) Request(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "n8n "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("n8n.path", path),
		))
	defer span.End()

	ctx, _ = tracing.Ensure(ctx)
	ctx, attempts := httpclient.WithAttemptCounter(ctx)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	fail := func(te *flowerrors.TransportError) error {
		te.Attempts = max(attempts.Load(), 1)
		span.SetAttributes(attribute.Int("n8n.attempts", te.Attempts))
		span.RecordError(te)
		span.SetStatus(codes.Error, te.Error())
		return te
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fail(&flowerrors.TransportError{Method: method, Path: path, Cause: err})
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fail(&flowerrors.TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Cause: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(&flowerrors.TransportError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(data), maxErrorBody),
		})
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fail(&flowerrors.TransportError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(data), maxErrorBody),
			Cause:      errors.New("malformed JSON response"),
		})
	}
	return json.RawMessage(data), nil
}

// Health checks connectivity and credentials by listing one workflow.
func (c *Client) Health(ctx context.Context) error {
	query := url.Values{"limit": {"1"}}
	if _, err := c.Request(ctx, http.MethodGet, "/workflows", nil, query); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// statusOf returns the HTTP status of a transport failure, or 0.
func statusOf(err error) int {
	var te *flowerrors.TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// notFound converts a 404 into a NotFoundError for the resource.
func notFound(err error, resource, id string) error {
	if statusOf(err) == http.StatusNotFound {
		return &flowerrors.NotFoundError{Resource: resource, ID: id, Cause: err}
	}
	return err
}

// rejected converts a 400 on create or update into a ValidationError that
// carries n8n's explanation.
func rejected(err error, resource string) error {
	var te *flowerrors.TransportError
	if errors.As(err, &te) && te.StatusCode == http.StatusBadRequest {
		return &flowerrors.ValidationError{
			Rule:    "remote",
			Message: fmt.Sprintf("n8n rejected the %s: %s", resource, remoteMessage(te.Body)),
		}
	}
	return err
}

// remoteMessage extracts the "message" field n8n puts in error bodies.
func remoteMessage(body string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(body)
}

// page is the envelope of n8n list endpoints.
type page struct {
	Data       json.RawMessage `json:"data"`
	NextCursor *string         `json:"nextCursor"`
}

// maxPageSize is the largest page n8n serves.
const maxPageSize = 250

// listAll follows nextCursor until the pages run out or limit items were
// collected. A limit of zero means no limit.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values, limit int, parse func([]byte) ([]T, error)) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	pageSize := maxPageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}
	query.Set("limit", fmt.Sprint(pageSize))

	var out []T
	for {
		raw, err := c.Request(ctx, http.MethodGet, path, nil, query)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return out, nil
		}

		var p page
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &flowerrors.ValidationError{Rule: "json", Message: fmt.Sprintf("invalid list response: %v", err)}
		}
		items := []T{}
		if len(p.Data) > 0 && string(p.Data) != "null" {
			if items, err = parse(p.Data); err != nil {
				return nil, err
			}
		}
		out = append(out, items...)

		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if p.NextCursor == nil || *p.NextCursor == "" || len(items) == 0 {
			return out, nil
		}
		query.Set("cursor", *p.NextCursor)
	}
}
