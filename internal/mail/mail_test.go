package mail

import (
	"context"
	"testing"
	"time"

	"placement-engine/internal/domain"
)

func TestHTMLToText(t *testing.T) {
	src := `<html><head><title>x</title><style>p{color:red}</style></head><body>
<p>Eligible Branches:
   <b>CSE</b>, IT</p>
<p>Register <a href="https://forms.gle/x">here</a> or at <a href="https://acme.example.com">https://acme.example.com</a></p>
<p>Mail <a href="mailto:tpo@college.edu">the TPO</a></p><br>CTC: 10&nbsp;LPA
</body></html>`

	want := "Eligible Branches: CSE, IT\n\n" +
		"Register here <https://forms.gle/x> or at https://acme.example.com\n\n" +
		"Mail the TPO\n\n" +
		"CTC: 10 LPA"
	if got := HTMLToText(src); got != want {
		t.Errorf("HTMLToText mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestBodyText(t *testing.T) {
	if got := BodyText("  plain body \n", "<p>html</p>"); got != "plain body" {
		t.Errorf("plain should win, got %q", got)
	}
	if got := BodyText("", "<p>html <i>only</i></p>"); got != "html only" {
		t.Errorf("html fallback: got %q", got)
	}
	if got := BodyText(" ", ""); got != "" {
		t.Errorf("empty: got %q", got)
	}
}

func TestQueryString(t *testing.T) {
	q := Query{
		Sender:  "placements@college.edu",
		Subject: "Drive",
		After:   time.Date(2025, 5, 17, 0, 0, 0, 0, time.UTC),
	}
	if got := q.String(); got != "from:placements@college.edu subject:Drive after:2025/05/17" {
		t.Errorf("got %q", got)
	}
	if got := (Query{}).String(); got != "" {
		t.Errorf("empty query: got %q", got)
	}
}

func TestQueryRemaining(t *testing.T) {
	tests := []struct {
		limit, fetched, want int
	}{
		{0, 1000, 500},
		{3000, 0, 500},
		{3000, 2900, 100},
		{20, 0, 20},
		{20, 20, 0},
	}
	for _, tt := range tests {
		if got := (Query{Limit: tt.limit}).Remaining(tt.fetched, 500); got != tt.want {
			t.Errorf("Remaining(limit=%d, fetched=%d) = %d, want %d", tt.limit, tt.fetched, got, tt.want)
		}
	}
}

func TestSenderAddress(t *testing.T) {
	tests := map[string]string{
		`"Placement Cell" <placements@college.edu>`: "placements@college.edu",
		"placements@college.edu":                    "placements@college.edu",
		"Broken Name <x@y":                          "Broken Name <x@y",
	}
	for in, want := range tests {
		if got := SenderAddress(in); got != want {
			t.Errorf("SenderAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatic(t *testing.T) {
	after := time.Date(2025, 5, 17, 0, 0, 0, 0, time.UTC)
	src := &Static{Messages: []domain.Message{
		{ID: "a", Sender: "TPO <placements@college.edu>", Subject: "Drive", ReceivedAt: after.Add(time.Hour).UnixMilli()},
		{ID: "b", Sender: "someone@else.edu", Subject: "Drive", ReceivedAt: after.Add(time.Hour).UnixMilli()},
		{ID: "c", Sender: "placements@college.edu", Subject: "Old drive", ReceivedAt: after.Add(-time.Hour).UnixMilli()},
		{ID: "d", Sender: "placements@college.edu", Subject: "Drive 2", ReceivedAt: after.Add(2 * time.Hour).UnixMilli()},
	}}

	got, err := src.Fetch(context.Background(), Query{Sender: "placements@college.edu", After: after})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "d" {
		t.Errorf("got %+v", got)
	}

	got, _ = src.Fetch(context.Background(), Query{Limit: 1})
	if len(got) != 1 {
		t.Errorf("limit ignored: %d", len(got))
	}
	if len(src.Queries) != 2 {
		t.Errorf("queries not recorded")
	}
}
