// Package mail defines how candidate mails are fetched and turned into plain text.
package mail

import (
	"context"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"placement-engine/internal/domain"
)

// Query is a conjunction of optional filters.
type Query struct {
	Limit   int    // max messages to return; <= 0 means no limit
	Sender  string // from:
	Subject string // subject:
	After   time.Time
}

// Source fetches candidate mails. Pagination is hidden behind Limit.
// A failure to list is returned; a failure on a single message is logged
// and that message is left out.
type Source interface {
	Fetch(ctx context.Context, q Query) ([]domain.Message, error)
	Name() string
}

func (q Query) String() string {
	parts := make([]string, 0, 3)
	if q.Sender != "" {
		parts = append(parts, "from:"+q.Sender)
	}
	if q.Subject != "" {
		parts = append(parts, "subject:"+q.Subject)
	}
	if !q.After.IsZero() {
		parts = append(parts, "after:"+q.After.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

// Remaining returns the page size for the next list call.
func (q Query) Remaining(fetched, pageMax int) int {
	if q.Limit <= 0 {
		return pageMax
	}
	return min(pageMax, q.Limit-fetched)
}

// SenderAddress returns the bare address of a From header, or the trimmed
// header when it does not parse.
func SenderAddress(from string) string {
	if a, err := netmail.ParseAddress(from); err == nil {
		return a.Address
	}
	if l, r := strings.IndexByte(from, '<'), strings.LastIndexByte(from, '>'); l >= 0 && r > l {
		return strings.TrimSpace(from[l+1 : r])
	}
	return strings.TrimSpace(from)
}

// Static is an in-memory Source, used for dry runs and tests.
type Static struct {
	Messages []domain.Message
	Err      error
	Queries  []Query
}

func (s *Static) Name() string { return "static" }

func (s *Static) Fetch(ctx context.Context, q Query) ([]domain.Message, error) {
	s.Queries = append(s.Queries, q)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, fmt.Errorf("static fetch: %w", s.Err)
	}

	var out []domain.Message
	for _, m := range s.Messages {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		if q.Sender != "" && !strings.EqualFold(SenderAddress(m.Sender), q.Sender) {
			continue
		}
		if q.Subject != "" && !strings.Contains(strings.ToLower(m.Subject), strings.ToLower(q.Subject)) {
			continue
		}
		if !q.After.IsZero() && m.ReceivedAt > 0 && m.ReceivedAt < q.After.UnixMilli() {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
