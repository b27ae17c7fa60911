// Package backend implements the HTTP client for the remote memory backend
// and the error taxonomy shared by everything that calls it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/perchdata/membank/internal/config"
	"github.com/perchdata/membank/internal/model"
)

// Client talks to the remote memory backend over HTTP. Each operation
// enforces its own timeout; the embedded http.Client carries none so that
// per-operation context deadlines are the only clock.
type Client struct {
	baseURL string
	apiKey  string
	bank    string
	cfg     config.Backend
	client  *http.Client
}

// New creates a backend client from resolved configuration.
func New(cfg config.Backend) *Client {
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		bank:    cfg.Bank,
		cfg:     cfg,
		client:  &http.Client{},
	}
}

// Bank returns the configured bank name.
func (c *Client) Bank() string { return c.bank }

type healthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Health probes the backend. Returns the diagnostic detail on success.
func (c *Client) Health(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout())
	defer cancel()

	var out healthResponse
	if err := c.do(ctx, "health", "GET", "/v1/health", nil, &out); err != nil {
		return "", err
	}
	if out.Status != "ok" {
		return out.Detail, &Error{Kind: KindServer, Op: "health", Message: "backend reports unhealthy: " + out.Detail}
	}
	return out.Detail, nil
}

// EnsureBank idempotently creates the configured bank. An already-existing
// bank is success.
func (c *Client) EnsureBank(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout())
	defer cancel()

	body := map[string]string{"name": c.bank}
	return c.do(ctx, "ensure_bank", "POST", "/v1/banks", body, nil)
}

type retainRequest struct {
	Items []model.MemoryItem `json:"items"`
}

type retainResponse struct {
	Stored int `json:"stored"`
}

// Retain submits memory items for extraction. Returns the backend's count
// of stored items.
func (c *Client) Retain(ctx context.Context, items []model.MemoryItem) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout())
	defer cancel()

	var out retainResponse
	path := fmt.Sprintf("/v1/banks/%s/memories", c.bank)
	if err := c.do(ctx, "retain", "POST", path, retainRequest{Items: items}, &out); err != nil {
		return 0, err
	}
	return out.Stored, nil
}

// RecallOptions narrows a recall query.
type RecallOptions struct {
	Limit    int            `json:"limit,omitempty"`
	FactType model.FactType `json:"fact_type,omitempty"`
	// Budget caps result size in characters; the backend packs greedily.
	Budget int `json:"budget,omitempty"`
}

type recallRequest struct {
	Query string `json:"query"`
	RecallOptions
}

type recallResponse struct {
	Items []model.RecalledItem `json:"items"`
}

// Recall searches stored memories, ranked by the backend.
func (c *Client) Recall(ctx context.Context, query string, opts RecallOptions) ([]model.RecalledItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RecallTimeout())
	defer cancel()

	var out recallResponse
	path := fmt.Sprintf("/v1/banks/%s/recall", c.bank)
	if err := c.do(ctx, "recall", "POST", path, recallRequest{Query: query, RecallOptions: opts}, &out); err != nil {
		return nil, err
	}
	for i := range out.Items {
		out.Items[i].Source = "backend"
	}
	return out.Items, nil
}

type reflectRequest struct {
	Query string `json:"query"`
}

// Reflect runs the backend's reasoning over stored memories. The longest
// operation; only available online.
func (c *Client) Reflect(ctx context.Context, query string) (*model.Reflection, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReflectTimeout())
	defer cancel()

	var out model.Reflection
	path := fmt.Sprintf("/v1/banks/%s/reflect", c.bank)
	if err := c.do(ctx, "reflect", "POST", path, reflectRequest{Query: query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type signalRequest struct {
	Signals []model.FeedbackSignal `json:"signals"`
}

// Signal delivers a batch of feedback signals as a single request. The
// batch succeeds or fails as a whole; there is no partial acceptance.
func (c *Client) Signal(ctx context.Context, signals []model.FeedbackSignal) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout())
	defer cancel()

	path := fmt.Sprintf("/v1/banks/%s/signals", c.bank)
	return c.do(ctx, "signal", "POST", path, signalRequest{Signals: signals}, nil)
}

type errorResponse struct {
	Error string `json:"error"`
}

// do executes one JSON round trip and maps failures onto the taxonomy.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Kind: KindValidation, Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		return statusError(op, resp.StatusCode, msg, parseRetryAfter(resp.Header.Get("Retry-After")))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindUnknown, Op: op, Message: "decode response", Err: err}
		}
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var er errorResponse
	if json.Unmarshal(b, &er) == nil && er.Error != "" {
		return er.Error
	}
	return string(b)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
