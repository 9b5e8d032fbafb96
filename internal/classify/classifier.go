// Package classify decides whether a mail is a first-round placement announcement.
package classify

import (
	"strings"

	"placement-engine/internal/domain"
)

// Keywords are matched as lower-cased substrings of subject and body.
// Exclude always wins over Include.
type Keywords struct {
	Include []string
	Exclude []string
}

type Classifier struct {
	include []string
	exclude []string
}

func New(kw Keywords) *Classifier {
	return &Classifier{
		include: lowerAll(kw.Include),
		exclude: lowerAll(kw.Exclude),
	}
}

// Classify reports whether m announces a new offer or drive.
func (c *Classifier) Classify(m domain.Message) bool {
	ok, _ := c.Reason(m)
	return ok
}

// Reason is Classify plus the keyword that decided it ("" when nothing matched).
func (c *Classifier) Reason(m domain.Message) (bool, string) {
	subj := strings.ToLower(m.Subject)
	body := strings.ToLower(m.Body)
	if strings.TrimSpace(subj) == "" && strings.TrimSpace(body) == "" {
		return false, ""
	}

	// Blocklist wins
	for _, kw := range c.exclude {
		if strings.Contains(subj, kw) || strings.Contains(body, kw) {
			return false, kw
		}
	}

	for _, kw := range c.include {
		if strings.Contains(subj, kw) || strings.Contains(body, kw) {
			return true, kw
		}
	}
	return false, ""
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
