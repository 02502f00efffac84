package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is a single graph query or mutation sent to the store.
type Request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// ResultError is a store-reported execution error.
type ResultError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Result is the raw store response: data keyed by operation name, plus any
// execution errors. A non-empty Errors slice means the operation was rejected
// by the store; transport-level failures are returned as Go errors instead.
type Result struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []ResultError              `json:"errors,omitempty"`
}

// Rejected reports whether the store rejected the operation.
func (r *Result) Rejected() bool {
	return len(r.Errors) > 0
}

// Executor executes graph queries against the system of record.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

type contextKey string

// systemContextKey marks a context as an elevated internal-system context.
// Field-level access control is skipped for requests carrying it.
const systemContextKey contextKey = "store_system_context"

// SystemContext returns a context marked for elevated store access. It is the
// single factory for the trust boundary; construct it per call, never cache
// it across requests.
func SystemContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, systemContextKey, true)
}

// IsSystemContext reports whether ctx carries the elevated marker.
func IsSystemContext(ctx context.Context) bool {
	v, ok := ctx.Value(systemContextKey).(bool)
	return ok && v
}

// HTTPExecutor executes requests against the store's HTTP endpoint.
type HTTPExecutor struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPExecutor creates an executor for the given store endpoint. The token,
// if non-empty, is sent as a bearer credential.
func NewHTTPExecutor(endpoint, token string, timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExecutor{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// Execute posts the request as JSON and decodes the store response.
func (e *HTTPExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode store request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build store request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.token)
	}
	if IsSystemContext(ctx) {
		httpReq.Header.Set("X-Skip-Access-Control", "true")
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("store returned status %d: %s", resp.StatusCode, string(data))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode store response: %w", err)
	}
	return &result, nil
}
