package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stellarlinkco/agentdeck/internal/domain"
	"github.com/stellarlinkco/agentdeck/internal/ledger"
	"github.com/stellarlinkco/agentdeck/internal/tooling"
)

// apiClient is a thin JSON-over-HTTP client for the agentdeck server, in
// the same request/response idiom internal/claude.Client uses against the
// Anthropic API: a base URL, an optional X-API-Key value, and one
// do(method, path, body) helper every higher-level call routes through.
type apiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError reports a non-2xx response using the {detail} error envelope.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("agentdeck: server returned %d", e.Status)
	}
	return fmt.Sprintf("agentdeck: %s", e.Detail)
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("agentdeck: invalid path %q: %w", path, err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("agentdeck: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("agentdeck: build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agentdeck: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("agentdeck: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var envelope struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return &apiError{Status: resp.StatusCode, Detail: envelope.Detail}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("agentdeck: decode response: %w", err)
	}
	return nil
}

func (c *apiClient) ListTests(ctx context.Context) ([]domain.TestDescriptor, error) {
	var out []domain.TestDescriptor
	err := c.do(ctx, http.MethodGet, "/testing/tests", nil, &out)
	return out, err
}

func (c *apiClient) CreateRun(ctx context.Context, tests []string) (*domain.Job, error) {
	var out domain.Job
	err := c.do(ctx, http.MethodPost, "/testing/runs", map[string]any{"tests": tests}, &out)
	return &out, err
}

func (c *apiClient) ListRuns(ctx context.Context) ([]*domain.Job, error) {
	var out []*domain.Job
	err := c.do(ctx, http.MethodGet, "/testing/runs", nil, &out)
	return out, err
}

func (c *apiClient) GetRun(ctx context.Context, id string) (*domain.Job, error) {
	var out domain.Job
	err := c.do(ctx, http.MethodGet, "/testing/runs/"+url.PathEscape(id), nil, &out)
	return &out, err
}

func (c *apiClient) ListHistory(ctx context.Context, qualifiedName string) ([]domain.TestResult, error) {
	var out []domain.TestResult
	err := c.do(ctx, http.MethodGet, "/testing/history/"+url.PathEscape(qualifiedName), nil, &out)
	return out, err
}

func (c *apiClient) ListAllHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	err := c.do(ctx, http.MethodGet, "/testing/history", nil, &out)
	return out, err
}

func (c *apiClient) TruncateHistory(ctx context.Context, qualifiedName string) error {
	return c.do(ctx, http.MethodDelete, "/testing/history/"+url.PathEscape(qualifiedName), nil, nil)
}

func (c *apiClient) TruncateAllHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/testing/history", nil, nil)
}

func (c *apiClient) ListTools(ctx context.Context) ([]tooling.Summary, error) {
	var out []tooling.Summary
	err := c.do(ctx, http.MethodGet, "/tooling/tools", nil, &out)
	return out, err
}

func (c *apiClient) Ledger(ctx context.Context, qualifiedName string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := c.do(ctx, http.MethodGet, "/ledger/"+url.PathEscape(qualifiedName), nil, &out)
	return out, err
}
