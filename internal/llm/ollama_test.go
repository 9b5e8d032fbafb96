package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string, retries int) *Ollama {
	return NewOllama(Config{
		URL:              url,
		Model:            "mistral",
		Timeout:          2 * time.Second,
		MaxRetries:       retries,
		Backoff:          time.Millisecond,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	}, nil)
}

func TestGenerate_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "mistral" || req.Stream || req.Prompt != "hello" {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: `{"company":"Acme"}`, Done: true})
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL, 0).Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"company":"Acme"}` {
		t.Errorf("got %q", out)
	}
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL, 2).Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" || calls.Load() != 3 {
		t.Errorf("got %q after %d calls", out, calls.Load())
	}
}

func TestGenerate_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Generate(context.Background(), "p")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestGenerate_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	for i := 0; i < 2; i++ {
		if _, err := c.Generate(context.Background(), "p"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if _, err := c.Generate(context.Background(), "p"); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("open breaker should not reach the server; calls=%d", calls.Load())
	}
}

func TestGenerate_ServiceErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Error: "model 'x' not found"})
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL, 0).Generate(context.Background(), "p"); err == nil {
		t.Fatal("expected error from error field")
	}
}

func TestGenerate_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "late"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestClient(srv.URL, 2).Generate(ctx, "p"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBreakerCooldown(t *testing.T) {
	now := time.Date(2025, 5, 17, 10, 0, 0, 0, time.UTC)
	b := newBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	if !b.allow() {
		t.Fatal("closed breaker should allow")
	}
	if !b.failure() {
		t.Fatal("threshold 1 should open on first failure")
	}
	if b.allow() {
		t.Fatal("open breaker should reject")
	}
	now = now.Add(time.Minute)
	if !b.allow() {
		t.Fatal("breaker should allow a trial after cooldown")
	}
	b.success()
	if !b.allow() {
		t.Fatal("success should close the breaker")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"5xx", &StatusError{Code: 502}, true},
		{"429", &StatusError{Code: 429}, true},
		{"400", &StatusError{Code: 400}, false},
		{"json", &json.SyntaxError{}, false},
		{"other", errors.New("weird"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
