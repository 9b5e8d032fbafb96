package gmailsrc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"placement-engine/internal/mail"
)

type fakeGmail struct {
	t       *testing.T
	ids     []string
	failGet map[string]bool

	mu        sync.Mutex
	listCalls []listCall
}

type listCall struct {
	q, pageToken string
	maxResults   int
}

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const prefix = "/gmail/v1/users/me/messages"
	switch {
	case r.URL.Path == prefix:
		max, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		tok := r.URL.Query().Get("pageToken")
		f.mu.Lock()
		f.listCalls = append(f.listCalls, listCall{q: r.URL.Query().Get("q"), pageToken: tok, maxResults: max})
		f.mu.Unlock()

		start, _ := strconv.Atoi(tok)
		end := min(start+max, len(f.ids))
		resp := gmail.ListMessagesResponse{}
		for _, id := range f.ids[start:end] {
			resp.Messages = append(resp.Messages, &gmail.Message{Id: id})
		}
		if end < len(f.ids) {
			resp.NextPageToken = strconv.Itoa(end)
		}
		_ = json.NewEncoder(w).Encode(resp)

	case strings.HasPrefix(r.URL.Path, prefix+"/"):
		id := strings.TrimPrefix(r.URL.Path, prefix+"/")
		if r.URL.Query().Get("format") != "full" {
			f.t.Errorf("get %s: format=%q", id, r.URL.Query().Get("format"))
		}
		if f.failGet[id] {
			http.Error(w, `{"error":{"code":500,"message":"backend"}}`, http.StatusInternalServerError)
			return
		}
		msg := gmail.Message{
			Id:           id,
			InternalDate: 1747470000000,
			Payload: &gmail.MessagePart{
				MimeType: "multipart/alternative",
				Headers: []*gmail.MessagePartHeader{
					{Name: "Subject", Value: "Campus Placement Drive - " + id},
					{Name: "From", Value: `"Placement Cell" <placements@college.edu>`},
				},
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>html " + id + "</p>")}},
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("Eligible Branches: CSE, IT")}},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(msg)

	default:
		http.NotFound(w, r)
	}
}

func newTestSource(t *testing.T, f *fakeGmail) *Source {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("gmail service: %v", err)
	}
	return New(svc, 0, nil)
}

func TestFetch_PaginatesUpToLimit(t *testing.T) {
	f := &fakeGmail{t: t}
	for i := 0; i < 1200; i++ {
		f.ids = append(f.ids, "m"+strconv.Itoa(i))
	}
	src := newTestSource(t, f)

	q := mail.Query{
		Limit:  700,
		Sender: "placements@college.edu",
		After:  time.Date(2025, 5, 17, 0, 0, 0, 0, time.UTC),
	}
	msgs, err := src.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 700 {
		t.Fatalf("got %d messages, want 700", len(msgs))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.listCalls) != 2 || f.listCalls[0].maxResults != 500 || f.listCalls[1].maxResults != 200 {
		t.Errorf("unexpected list calls: %+v", f.listCalls)
	}
	if f.listCalls[0].q != "from:placements@college.edu after:2025/05/17" {
		t.Errorf("query: got %q", f.listCalls[0].q)
	}
	if f.listCalls[1].pageToken != "500" {
		t.Errorf("second page token: got %q", f.listCalls[1].pageToken)
	}

	m := msgs[0]
	if m.ID != "m0" || m.Sender != "placements@college.edu" || m.Subject != "Campus Placement Drive - m0" {
		t.Errorf("headers: %+v", m)
	}
	if m.Body != "Eligible Branches: CSE, IT" {
		t.Errorf("plain part should win: %q", m.Body)
	}
	if m.ReceivedAt != 1747470000000 {
		t.Errorf("ReceivedAt: %d", m.ReceivedAt)
	}
}

func TestFetch_SkipsBrokenMessages(t *testing.T) {
	f := &fakeGmail{t: t, ids: []string{"a", "b", "c"}, failGet: map[string]bool{"b": true}}
	msgs, err := newTestSource(t, f).Fetch(context.Background(), mail.Query{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "a" || msgs[1].ID != "c" {
		t.Errorf("got %+v", msgs)
	}
}

func TestFetch_ListFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	svc, err := gmail.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(svc, 0, nil).Fetch(context.Background(), mail.Query{Limit: 10}); err == nil {
		t.Fatal("expected list error")
	}
}

func TestToMessage_HTMLOnly(t *testing.T) {
	msg := &gmail.Message{
		Id: "h1",
		Payload: &gmail.MessagePart{
			MimeType: "text/html",
			Headers:  []*gmail.MessagePartHeader{{Name: "from", Value: "tpo@college.edu"}},
			Body: &gmail.MessagePartBody{
				Data: strings.TrimRight(b64(`<p>Apply <a href="https://forms.gle/x">here</a></p>`), "="),
			},
		},
	}
	m := toMessage(msg, zap.NewNop())
	if m.Body != "Apply here <https://forms.gle/x>" {
		t.Errorf("body: %q", m.Body)
	}
	if m.Sender != "tpo@college.edu" {
		t.Errorf("sender: %q", m.Sender)
	}
}

func TestToMessage_BadPartIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	msg := &gmail.Message{
		Id: "b1",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{PartId: "0", MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "!!not base64!!"}},
				{PartId: "1", MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>Eligible Branches: CSE</p>")}},
			},
		},
	}
	m := toMessage(msg, zap.New(core))
	if m.Body != "Eligible Branches: CSE" {
		t.Errorf("body: %q", m.Body)
	}
	entries := logs.FilterMessage("dropping undecodable body part").All()
	if len(entries) != 1 {
		t.Fatalf("warnings: got %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["id"]; got != "b1" {
		t.Errorf("logged id: %v", got)
	}
}
