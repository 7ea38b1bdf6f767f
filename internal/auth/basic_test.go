package auth

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

func TestBasicAuthenticator(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	a, err := NewBasicAuthenticator([]config.BasicAuthUser{{Username: "device", PasswordHash: hash}})
	if err != nil {
		t.Fatalf("NewBasicAuthenticator() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"valid", "device", "s3cret", nil},
		{"wrong password", "device", "nope", ErrInvalidCredentials},
		{"unknown user", "ghost", "s3cret", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Authenticate(tt.username, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewBasicAuthenticator_InvalidHash(t *testing.T) {
	_, err := NewBasicAuthenticator([]config.BasicAuthUser{{Username: "device", PasswordHash: "plaintext"}})
	if !errors.Is(err, ErrInvalidHash) {
		t.Errorf("NewBasicAuthenticator() error = %v, want ErrInvalidHash", err)
	}
}
