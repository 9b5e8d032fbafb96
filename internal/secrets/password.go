package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"placement-engine/internal/config"
)

const (
	// KeyringService groups the app's secrets in the OS keychain.
	KeyringService = "placement-engine"

	// IMAPPasswordEnv is read when the keychain has no entry (headless hosts).
	IMAPPasswordEnv = "PLACEMENT_IMAP_PASSWORD"
)

func GetIMAPPassword(keyringAccount string) (string, error) {
	// Keyring first
	if strings.TrimSpace(keyringAccount) != "" {
		pw, err := keyring.Get(KeyringService, keyringAccount)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}

	if pw := os.Getenv(IMAPPasswordEnv); strings.TrimSpace(pw) != "" {
		return pw, nil
	}

	return "", fmt.Errorf("IMAP password not found (set it with -set-imap-password or %s)", IMAPPasswordEnv)
}

func SetIMAPPassword(keyringAccount string, password string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, keyringAccount, password)
}

func DeleteIMAPPassword(keyringAccount string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, keyringAccount)
}

func IMAPKeyringAccount(cfg config.Config) string {
	return fmt.Sprintf(
		"placement:imap:%s@%s",
		cfg.Mail.IMAP.Username,
		cfg.Mail.IMAP.Host,
	)
}
