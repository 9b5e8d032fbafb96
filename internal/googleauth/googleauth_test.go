package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"placement-engine/internal/secrets"
)

func writeCredentials(t *testing.T, tokenURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	body := fmt.Sprintf(`{"installed":{"client_id":"cid","client_secret":"csecret",
"auth_uri":"https://accounts.example.com/auth","token_uri":%q,"redirect_uris":["http://localhost"]}}`, tokenURL)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClient_ConsentFlow(t *testing.T) {
	keyring.MockInitWithError(errors.New("no keychain"))

	var gotCode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotCode = r.Form.Get("code")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`)
	}))
	defer srv.Close()

	creds := writeCredentials(t, srv.URL)
	store := secrets.TokenStore{Account: "placement:oauth:test", File: filepath.Join(t.TempDir(), "token.json")}
	var out strings.Builder
	p := Prompt{In: strings.NewReader("  the-code \n"), Out: &out}

	c, err := Client(context.Background(), creds, store, p, nil, "scope-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("nil client")
	}
	if gotCode != "the-code" {
		t.Errorf("code sent: %q", gotCode)
	}
	if !strings.Contains(out.String(), "https://accounts.example.com/auth") {
		t.Errorf("consent URL not printed: %q", out.String())
	}
	tok, err := store.Load()
	if err != nil || tok.RefreshToken != "rt" {
		t.Fatalf("token not saved: %+v, %v", tok, err)
	}
}

func TestClient_CachedToken(t *testing.T) {
	keyring.MockInitWithError(errors.New("no keychain"))

	creds := writeCredentials(t, "http://127.0.0.1:1/token")
	store := secrets.TokenStore{File: filepath.Join(t.TempDir(), "token.json")}
	if err := store.Save(&oauth2.Token{AccessToken: "cached", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	var seen string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
	}))
	defer api.Close()

	c, err := Client(context.Background(), creds, store, Prompt{}, nil, "scope-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := c.Get(api.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if seen != "Bearer cached" {
		t.Errorf("authorization header: %q", seen)
	}
}

func TestClient_NoTerminal(t *testing.T) {
	keyring.MockInitWithError(errors.New("no keychain"))
	creds := writeCredentials(t, "http://127.0.0.1:1/token")
	store := secrets.TokenStore{File: filepath.Join(t.TempDir(), "missing.json")}

	if _, err := Client(context.Background(), creds, store, Prompt{}, nil, "scope-a"); err == nil {
		t.Fatal("expected error without a prompt")
	}
}

func TestClient_MissingCredentials(t *testing.T) {
	_, err := Client(context.Background(), filepath.Join(t.TempDir(), "nope.json"), secrets.TokenStore{}, Prompt{}, nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v", err)
	}
}
