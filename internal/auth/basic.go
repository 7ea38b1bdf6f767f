package auth

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

// BasicAuthenticator checks HTTP basic credentials against configured hashes.
//
// Unknown usernames are verified against a throwaway hash so a miss
// costs the same as a wrong password.
type BasicAuthenticator struct {
	users map[string]string

	dummyOnce sync.Once
	dummy     string
}

// NewBasicAuthenticator validates every configured hash up front.
func NewBasicAuthenticator(users []config.BasicAuthUser) (*BasicAuthenticator, error) {
	a := &BasicAuthenticator{users: make(map[string]string, len(users))}
	for _, u := range users {
		if _, _, _, err := decodePHC(u.PasswordHash); err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
		a.users[u.Username] = u.PasswordHash
	}
	return a, nil
}

// Authenticate returns nil when username and password match a configured user.
func (a *BasicAuthenticator) Authenticate(username, password string) error {
	hash, ok := a.users[username]
	if !ok {
		//nolint:errcheck // Result discarded; the call only equalises timing
		VerifyPassword(password, a.dummyHash())
		return ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, hash)
	if err != nil {
		return err
	}
	if !match {
		return ErrInvalidCredentials
	}
	return nil
}

func (a *BasicAuthenticator) dummyHash() string {
	a.dummyOnce.Do(func() {
		//nolint:errcheck // crypto/rand failure leaves an empty hash, which still fails verification
		a.dummy, _ = HashPassword("telemetry-dummy-password")
	})
	return a.dummy
}
