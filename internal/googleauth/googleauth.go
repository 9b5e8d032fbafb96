// Package googleauth runs the installed-app OAuth flow shared by the Gmail
// source and the Sheets sink.
package googleauth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"placement-engine/internal/secrets"
)

// Prompt is where the consent URL is printed and the auth code is read from.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// StdPrompt uses the terminal.
func StdPrompt() Prompt { return Prompt{In: os.Stdin, Out: os.Stderr} }

// Client returns an authorized HTTP client for scopes. A cached token is reused
// and refreshed tokens are written back to store; without one the user is sent
// through the consent URL once.
func Client(ctx context.Context, credentialsFile string, store secrets.TokenStore, p Prompt, log *zap.Logger, scopes ...string) (*http.Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read client secret %s: %w", credentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secret %s: %w", credentialsFile, err)
	}

	tok, err := store.Load()
	if err != nil {
		log.Info("no cached token, starting consent flow", zap.String("account", store.Account))
		tok, err = tokenFromWeb(ctx, cfg, p)
		if err != nil {
			return nil, err
		}
		if err := store.Save(tok); err != nil {
			return nil, fmt.Errorf("save token: %w", err)
		}
	}

	src := &savingSource{
		base:  cfg.TokenSource(ctx, tok),
		store: store,
		last:  tok.AccessToken,
		log:   log,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, p Prompt) (*oauth2.Token, error) {
	if p.In == nil || p.Out == nil {
		return nil, errors.New("oauth consent needs an interactive terminal")
	}
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(p.Out, "Go to the following link in your browser then type the authorization code:\n%v\n", authURL)

	code, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty authorization code")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// savingSource persists every token the refresh flow hands out.
type savingSource struct {
	base  oauth2.TokenSource
	store secrets.TokenStore
	log   *zap.Logger

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(tok); err != nil {
			s.log.Warn("could not persist refreshed token", zap.Error(err))
		}
	}
	return tok, nil
}
