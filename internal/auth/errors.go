// errors.go -- Auth error taxonomy. Handlers map these to status codes.
package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput wraps every client-side validation failure (400).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials covers both unknown phone and wrong password (401).
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrActivationRequired    = errors.New("activation required")
	ErrInvalidActivationCode = errors.New("invalid activation code")
	ErrInvalidInvitationCode = errors.New("invalid invitation code")

	// ErrPhoneTaken is returned by Register when the phone already has an account (409).
	ErrPhoneTaken = errors.New("phone number already registered")

	// ErrSessionNotFound means the session was never issued, has expired, or was logged out.
	ErrSessionNotFound = errors.New("session not found")
)

// InputError carries a client-facing validation message.
// errors.Is(err, ErrInvalidInput) matches it.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return "invalid input: " + e.Msg }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func invalidInput(msg string) error { return &InputError{Msg: msg} }

// RateLimitedError is returned by Login while the identifier is locked out (429).
type RateLimitedError struct {
	RemainingMinutes int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many login attempts, retry in %d minutes", e.RemainingMinutes)
}
