package auth

import "errors"

// Domain errors for authentication.
var (
	// ErrInvalidCredentials is returned when a username or password does not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is returned when a token fails signature, expiry or claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidHash is returned when a stored password hash cannot be parsed.
	ErrInvalidHash = errors.New("auth: invalid password hash")

	// ErrEmptySecret is returned when signing with an empty secret.
	ErrEmptySecret = errors.New("auth: signing secret is empty")
)
