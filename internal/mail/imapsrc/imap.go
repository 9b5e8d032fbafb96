// Package imapsrc fetches candidate mails from an IMAP mailbox (read-only).
package imapsrc

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"placement-engine/internal/domain"
	"placement-engine/internal/mail"
)

// maxBody caps how much of one raw message is parsed.
const maxBody = 25 << 20

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
}

type Source struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Source {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{cfg: cfg, log: log.Named("imap")}
}

func (s *Source) Name() string { return "imap" }

func (s *Source) Fetch(ctx context.Context, q mail.Query) ([]domain.Message, error) {
	c, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer logoutAndClose(c, s.log)

	sel, err := c.Select(s.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap select %q: %w", s.cfg.Mailbox, err)
	}

	found, err := c.UIDSearch(Criteria(q), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search: %w", err)
	}
	uids := newestFirst(found.AllUIDs(), q.Limit)
	s.log.Info("searching", zap.String("mailbox", s.cfg.Mailbox), zap.Int("matched", len(found.AllUIDs())), zap.Int("fetching", len(uids)))
	if len(uids) == 0 {
		return nil, nil
	}

	bodyAll := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierNone, Peek: true}
	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	out := make([]domain.Message, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			s.log.Warn("skipping message", zap.Error(err))
			continue
		}

		m, err := ParseRaw(buf.FindBodySection(bodyAll))
		if err != nil {
			s.log.Warn("skipping message", zap.Uint32("uid", uint32(buf.UID)), zap.Error(err))
			continue
		}
		m.ID = MessageID(sel.UIDValidity, buf.UID)
		if !buf.InternalDate.IsZero() {
			m.ReceivedAt = buf.InternalDate.UnixMilli()
		}
		if m.Subject == "" && buf.Envelope != nil {
			m.Subject = buf.Envelope.Subject
		}
		out = append(out, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}
	s.log.Info("fetched", zap.Int("messages", len(out)))
	return out, nil
}

func (s *Source) dial(ctx context.Context) (*imapclient.Client, error) {
	if s.cfg.Host == "" {
		return nil, errors.New("imap host is required")
	}
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return nil, errors.New("imap username/password is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: s.cfg.Host},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}
	if err := c.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}

func logoutAndClose(c *imapclient.Client, log *zap.Logger) {
	if err := c.Logout().Wait(); err != nil {
		log.Debug("imap logout", zap.Error(err))
	}
	_ = c.Close()
}

// Criteria maps a Query onto IMAP SEARCH keys.
func Criteria(q mail.Query) *imap.SearchCriteria {
	c := &imap.SearchCriteria{}
	if q.Sender != "" {
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: "From", Value: q.Sender})
	}
	if q.Subject != "" {
		c.Header = append(c.Header, imap.SearchCriteriaHeaderField{Key: "Subject", Value: q.Subject})
	}
	if !q.After.IsZero() {
		c.Since = q.After
	}
	return c
}

// newestFirst reverses ascending UIDs and keeps at most limit of them.
func newestFirst(uids []imap.UID, limit int) []imap.UID {
	out := make([]imap.UID, len(uids))
	for i, u := range uids {
		out[len(uids)-1-i] = u
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MessageID is stable for as long as the mailbox keeps its UIDVALIDITY.
func MessageID(validity uint32, uid imap.UID) string {
	return fmt.Sprintf("imap:%d:%d", validity, uint32(uid))
}

// ParseRaw decodes an RFC 822 message into subject, sender and body text.
// Transfer encodings and charsets are decoded by go-message.
func ParseRaw(raw []byte) (domain.Message, error) {
	if len(raw) == 0 {
		return domain.Message{}, errors.New("empty message")
	}
	e, err := message.Read(io.LimitReader(bytes.NewReader(raw), maxBody))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return domain.Message{}, fmt.Errorf("parse message: %w", err)
	}

	h := gomail.Header{Header: e.Header}
	var m domain.Message
	m.Subject, _ = h.Subject()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		m.Sender = from[0].Address
	} else {
		m.Sender = mail.SenderAddress(e.Header.Get("From"))
	}
	if d, err := h.Date(); err == nil && !d.IsZero() {
		m.ReceivedAt = d.UnixMilli()
	}

	var plain, html strings.Builder
	walkErr := e.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return err
		}
		mt, _, _ := part.Header.ContentType()
		switch strings.ToLower(mt) {
		case "text/plain":
			b, _ := io.ReadAll(part.Body)
			plain.Write(b)
		case "text/html":
			b, _ := io.ReadAll(part.Body)
			html.Write(b)
		case "":
			// no Content-Type means text/plain
			if part.MultipartReader() == nil {
				b, _ := io.ReadAll(part.Body)
				plain.Write(b)
			}
		}
		return nil
	})
	if walkErr != nil && plain.Len() == 0 && html.Len() == 0 {
		return domain.Message{}, fmt.Errorf("walk message: %w", walkErr)
	}

	m.Body = mail.BodyText(plain.String(), html.String())
	return m, nil
}
