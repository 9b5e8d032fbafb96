// Package gmailsrc fetches candidate mails through the Gmail API.
package gmailsrc

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"

	"placement-engine/internal/domain"
	"placement-engine/internal/mail"
)

const (
	user        = "me"
	maxPageSize = 500
)

type Source struct {
	svc *gmail.Service
	lim *rate.Limiter
	log *zap.Logger
}

// New wraps an authorized Gmail service. requestsPerSecond bounds the
// per-message Get calls; <= 0 disables limiting.
func New(svc *gmail.Service, requestsPerSecond float64, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(requestsPerSecond), max(1, int(requestsPerSecond)))
	}
	return &Source{svc: svc, lim: lim, log: log.Named("gmail")}
}

func (s *Source) Name() string { return "gmail" }

func (s *Source) Fetch(ctx context.Context, q mail.Query) ([]domain.Message, error) {
	query := q.String()
	s.log.Info("searching", zap.String("query", query), zap.Int("limit", q.Limit))

	var (
		out       []domain.Message
		pageToken string
		listed    int
	)
	for {
		n := q.Remaining(listed, maxPageSize)
		if n <= 0 {
			break
		}

		call := s.svc.Users.Messages.List(user).Q(query).MaxResults(int64(n)).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("gmail list: %w", err)
		}
		if len(page.Messages) == 0 {
			break
		}

		for _, ref := range page.Messages {
			m, err := s.get(ctx, ref.Id)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.log.Warn("skipping message", zap.String("id", ref.Id), zap.Error(err))
				continue
			}
			out = append(out, m)
		}

		listed += len(page.Messages)
		s.log.Debug("page done", zap.Int("listed", listed), zap.Int("kept", len(out)))

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	s.log.Info("fetched", zap.Int("messages", len(out)))
	return out, nil
}

func (s *Source) get(ctx context.Context, id string) (domain.Message, error) {
	if err := s.lim.Wait(ctx); err != nil {
		return domain.Message{}, err
	}
	msg, err := s.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return domain.Message{}, fmt.Errorf("gmail get %s: %w", id, err)
	}
	return toMessage(msg, s.log), nil
}

func toMessage(msg *gmail.Message, log *zap.Logger) domain.Message {
	m := domain.Message{ID: msg.Id, ReceivedAt: msg.InternalDate}
	if msg.Payload == nil {
		return m
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			m.Subject = h.Value
		case "from":
			m.Sender = mail.SenderAddress(h.Value)
		}
	}

	var plain, html strings.Builder
	for _, err := range collectParts(msg.Payload, &plain, &html) {
		log.Warn("dropping undecodable body part", zap.String("id", msg.Id), zap.Error(err))
	}
	m.Body = mail.BodyText(plain.String(), html.String())
	return m
}

// collectParts walks the MIME tree and gathers decoded text/plain and
// text/html leaves separately. Leaves that fail to decode are reported.
func collectParts(p *gmail.MessagePart, plain, html *strings.Builder) []error {
	if p == nil {
		return nil
	}
	if len(p.Parts) > 0 {
		var errs []error
		for _, part := range p.Parts {
			errs = append(errs, collectParts(part, plain, html)...)
		}
		return errs
	}
	if p.Body == nil || p.Body.Data == "" {
		return nil
	}

	mt := strings.ToLower(p.MimeType)
	if mt != "text/plain" && mt != "text/html" {
		return nil
	}
	data, err := decodeData(p.Body.Data)
	if err != nil {
		return []error{fmt.Errorf("part %q (%s): %w", p.PartId, mt, err)}
	}
	if mt == "text/plain" {
		plain.Write(data)
	} else {
		html.Write(data)
	}
	return nil
}

// decodeData accepts base64url with or without padding.
func decodeData(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
