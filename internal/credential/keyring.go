package credential

import (
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/service"
)

const serviceName = "chatsearch"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/chatsearch/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("chatsearch-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// cookieKey is the keyring entry name for a service's session cookie
// header.
func cookieKey(svc model.Service) string {
	return string(svc) + "-cookie"
}

// Source resolves per-service session credentials from the system
// keyring. It implements sync.CredentialSource.
type Source struct{}

// Credentials returns the stored session cookie header for a service. A
// missing entry yields an AuthError: the user has not connected that
// service yet.
func (Source) Credentials(svc model.Service) (service.Credentials, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(cookieKey(svc))
	if err != nil {
		return "", &service.AuthError{
			Service: svc,
			Message: fmt.Sprintf("no stored session for %s: %v", svc, err),
		}
	}

	return service.Credentials(item.Data), nil
}

// Set stores a service's session cookie header in the system keyring.
func Set(svc model.Service, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  cookieKey(svc),
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential for %s: %w", svc, err)
	}

	return nil
}

// Delete removes a service's stored session from the system keyring.
func Delete(svc model.Service) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(cookieKey(svc))
	if err != nil {
		return fmt.Errorf("deleting credential for %s: %w", svc, err)
	}

	return nil
}
