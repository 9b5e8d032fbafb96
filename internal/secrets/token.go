package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// TokenStore persists an OAuth token in the keychain, falling back to a
// 0600 JSON file when no keychain is available.
type TokenStore struct {
	Account string // keychain account, e.g. "placement:oauth:gmail"
	File    string // fallback path; empty disables the file
}

func (s TokenStore) Load() (*oauth2.Token, error) {
	if s.Account != "" {
		if raw, err := keyring.Get(KeyringService, s.Account); err == nil && raw != "" {
			return decodeToken([]byte(raw))
		}
	}
	if s.File == "" {
		return nil, os.ErrNotExist
	}
	b, err := os.ReadFile(s.File)
	if err != nil {
		return nil, err
	}
	return decodeToken(b)
}

// Save writes to the keychain when it can, otherwise to File.
func (s TokenStore) Save(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("nil token")
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}

	if s.Account != "" {
		if err := keyring.Set(KeyringService, s.Account, string(b)); err == nil {
			return nil
		}
	}
	if s.File == "" {
		return errors.New("no keychain and no token file configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.File), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(s.File, b, 0o600); err != nil {
		return fmt.Errorf("save token %s: %w", s.File, err)
	}
	return nil
}

func decodeToken(b []byte) (*oauth2.Token, error) {
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return tok, nil
}
