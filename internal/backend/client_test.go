package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/perchdata/membank/internal/config"
	"github.com/perchdata/membank/internal/model"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(config.Backend{
		URL:              srv.URL,
		APIKey:           "test-key",
		Bank:             "proj",
		HealthTimeoutMs:  1000,
		StoreTimeoutMs:   1000,
		RecallTimeoutMs:  1000,
		ReflectTimeoutMs: 1000,
	})
}

func TestHealthOK(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "detail": "all good"})
	}))

	detail, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if detail != "all good" {
		t.Errorf("expected diagnostic detail, got %q", detail)
	}
}

func TestHealthUnhealthyBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "detail": "index rebuilding"})
	}))

	_, err := c.Health(context.Background())
	if KindOf(err) != KindServer {
		t.Errorf("unhealthy report should be a server error, got %v", err)
	}
}

func TestRetainRoundTrip(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/banks/proj/memories" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Items []model.MemoryItem `json:"items"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]int{"stored": len(req.Items)})
	}))

	n, err := c.Retain(context.Background(), []model.MemoryItem{
		{Text: "a", FactType: model.FactWorld},
		{Text: "b", FactType: model.FactExperience},
	})
	if err != nil {
		t.Fatalf("retain: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 stored, got %d", n)
	}
}

func TestRecallLabelsBackendSource(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{"id": "m1", "text": "hit", "score": 0.9}},
		})
	}))

	items, err := c.Recall(context.Background(), "query", RecallOptions{Limit: 5})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(items) != 1 || items[0].Source != "backend" {
		t.Fatalf("expected backend-sourced item, got %+v", items)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{400, KindValidation},
		{404, KindNotFound},
		{422, KindValidation},
		{429, KindRateLimited},
		{500, KindServer},
		{503, KindServer},
	}

	for _, tc := range cases {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
		}))

		err := c.EnsureBank(context.Background())
		if KindOf(err) != tc.want {
			t.Errorf("status %d: kind = %v, want %v", tc.status, KindOf(err), tc.want)
		}
	}
}

func TestRetryAfterHintParsed(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(429)
	}))

	err := c.EnsureBank(context.Background())
	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("expected a backend error, got %v", err)
	}
	if be.RetryAfter != 7*time.Second {
		t.Errorf("expected 7s retry-after hint, got %v", be.RetryAfter)
	}
	if !be.Retryable() {
		t.Error("rate limiting is retryable")
	}
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listens here anymore

	c := New(config.Backend{
		URL: url, Bank: "proj",
		HealthTimeoutMs: 1000, StoreTimeoutMs: 1000,
		RecallTimeoutMs: 1000, ReflectTimeoutMs: 1000,
	})

	_, err := c.Health(context.Background())
	if KindOf(err) != KindUnavailable {
		t.Errorf("connection refused must classify as unavailable, got %v", err)
	}
}

func TestSlowBackendIsTimeout(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	c.cfg.HealthTimeoutMs = 20

	_, err := c.Health(context.Background())
	if KindOf(err) != KindTimeout {
		t.Errorf("deadline expiry must classify as timeout, got %v", err)
	}
}

func TestSignalBatch(t *testing.T) {
	var got []model.FeedbackSignal
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/banks/proj/signals" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Signals []model.FeedbackSignal `json:"signals"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		got = req.Signals
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.Signal(context.Background(), []model.FeedbackSignal{
		{FactID: "f1", SignalType: "helpful", SessionID: "s"},
		{FactID: "f2", SignalType: "used", SessionID: "s"},
	})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected both signals in one request, got %d", len(got))
	}
}

func TestReflect(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.Reflection{
			Answer:   "the team prefers explicit errors",
			Opinions: []string{"wrap with %w"},
			Evidence: []model.RecalledItem{{ID: "m1", Text: "evidence"}},
		})
	}))

	refl, err := c.Reflect(context.Background(), "what are our error conventions?")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if refl.Answer == "" || len(refl.Evidence) != 1 {
		t.Errorf("unexpected reflection %+v", refl)
	}
}
