package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"placement-engine/internal/domain"
	"placement-engine/internal/events"
	"placement-engine/internal/ingest"
	"placement-engine/internal/metrics"
)

func newServer(t *testing.T) (*httptest.Server, *Tracker, *events.Hub) {
	t.Helper()
	hub := events.NewHub()
	tr := NewTracker(hub)
	m := metrics.New()
	m.Record(ingest.Result{Mode: ingest.ModeIncremental, Fetched: 4}, nil, time.Second)
	srv := httptest.NewServer(Handler(Deps{Tracker: tr, Hub: hub, Gatherer: m.Registry()}))
	t.Cleanup(srv.Close)
	return srv, tr, hub
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, body := get(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"ok":true`) {
		t.Errorf("health: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestStatus(t *testing.T) {
	srv, tr, _ := newServer(t)

	tr.Begin()
	tr.Finish(ingest.Result{
		Mode:      ingest.ModeBackfill,
		Fetched:   3,
		Rows:      make([]domain.OutputRow, 2),
		Skipped:   map[string]int{ingest.SkipClassifier: 1},
		Watermark: 42,
	}, nil)

	_, body := get(t, srv.URL+"/status")
	var st RunStatus
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	if st.Running || st.Runs != 1 || st.LastRows != 2 || st.LastMode != "backfill" || st.Watermark != 42 || st.LastOkAt == "" {
		t.Errorf("status: %+v", st)
	}

	tr.Begin()
	tr.Finish(ingest.Result{Mode: ingest.ModeIncremental}, errors.New("sheets append: 503"))
	st = tr.Load()
	if st.LastError == "" || st.Watermark != 42 || st.Runs != 2 {
		t.Errorf("after failure: %+v", st)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newServer(t)
	_, body := get(t, srv.URL+"/metrics")
	if !strings.Contains(body, "placement_messages_fetched_total 4") {
		t.Errorf("metrics:\n%s", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status code: %d", resp.StatusCode)
	}
}

func TestEventsStream(t *testing.T) {
	srv, tr, hub := newServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		event := ""
		for lines.Scan() {
			l := lines.Text()
			if strings.HasPrefix(l, "event: ") {
				event = strings.TrimPrefix(l, "event: ")
			}
			if strings.HasPrefix(l, "data: ") {
				if event != "run" {
					t.Errorf("event name: %q", event)
				}
				return strings.TrimPrefix(l, "data: ")
			}
		}
		return ""
	}
	if got := next(); !strings.Contains(got, `"type":"ping"`) {
		t.Fatalf("first event: %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	tr.Begin()
	if got := next(); !strings.Contains(got, `"type":"run_started"`) {
		t.Fatalf("second event: %q", got)
	}
}

type plainWriter struct {
	h    http.Header
	code int
}

func (p *plainWriter) Header() http.Header { return p.h }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(code int) { p.code = code }

func TestRunEvents_NeedsFlusher(t *testing.T) {
	w := &plainWriter{h: http.Header{}}
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	RunEvents{Hub: events.NewHub()}.Stream(w, req)
	if w.code != http.StatusNotImplemented {
		t.Errorf("status code: %d", w.code)
	}
}

func TestServe_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, NewMux(Deps{}), nil) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
