package classify

import (
	"testing"

	"placement-engine/internal/config"
	"placement-engine/internal/domain"
)

func defaultClassifier() *Classifier {
	cfg := config.Default()
	return New(Keywords{Include: cfg.Classifier.Include, Exclude: cfg.Classifier.Exclude})
}

func TestClassify(t *testing.T) {
	c := defaultClassifier()

	tests := []struct {
		name    string
		subject string
		body    string
		want    bool
	}{
		{
			name:    "drive announcement",
			subject: "Campus Placement Drive - Acme Corp",
			body:    "Eligible Branches: CSE, IT. CTC: 10 LPA. Last date: 5th Dec 2025.",
			want:    true,
		},
		{
			name:    "include keyword only in body",
			subject: "Acme Corp",
			body:    "Great Opportunity for 2026 batch",
			want:    true,
		},
		{
			name:    "shortlist subject dominates",
			subject: "Shortlisted candidates for Acme Corp",
			body:    "Placement drive category: Dream offer",
			want:    false,
		},
		{
			name:    "exclude keyword in body dominates include in subject",
			subject: "Placement Drive - Acme Corp",
			body:    "The online test is scheduled for Monday.",
			want:    false,
		},
		{
			name:    "case insensitive exclusion",
			subject: "INTERVIEW SCHEDULE",
			body:    "",
			want:    false,
		},
		{
			name:    "no keyword at all",
			subject: "Library notice",
			body:    "Return your books.",
			want:    false,
		},
		{
			name:    "empty mail",
			subject: "",
			body:    "",
			want:    false,
		},
		{
			name:    "whitespace only",
			subject: "  ",
			body:    "\n\t",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(domain.Message{Subject: tt.subject, Body: tt.body})
			if got != tt.want {
				t.Errorf("Classify(%q, %q) = %v, want %v", tt.subject, tt.body, got, tt.want)
			}
		})
	}
}

func TestClassify_ExclusionDominatesEveryPair(t *testing.T) {
	cfg := config.Default()
	c := defaultClassifier()

	for _, inc := range cfg.Classifier.Include {
		for _, exc := range cfg.Classifier.Exclude {
			subjFirst := domain.Message{Subject: inc, Body: exc}
			bodyFirst := domain.Message{Subject: exc, Body: inc}
			if c.Classify(subjFirst) || c.Classify(bodyFirst) {
				t.Fatalf("include %q + exclude %q classified as offer", inc, exc)
			}
		}
	}
}

func TestReason(t *testing.T) {
	c := New(Keywords{Include: []string{" Drive "}, Exclude: []string{"", "Result"}})

	ok, kw := c.Reason(domain.Message{Subject: "Drive results"})
	if ok || kw != "result" {
		t.Errorf("got (%v, %q), want (false, \"result\")", ok, kw)
	}

	ok, kw = c.Reason(domain.Message{Subject: "Hiring drive"})
	if !ok || kw != "drive" {
		t.Errorf("got (%v, %q), want (true, \"drive\")", ok, kw)
	}

	ok, kw = c.Reason(domain.Message{Subject: "Hello"})
	if ok || kw != "" {
		t.Errorf("got (%v, %q), want (false, \"\")", ok, kw)
	}
}
