// internal/session/errors.go
//
// Error taxonomy for the session layer.
//   - AuthError:          token missing/invalid/expired/replayed → log in again (403).
//   - ValidationError:    bad subject or guess; nothing changed (400).
//   - TerminalStateError: request against a finished session (game-over).

package session

import "fmt"

// AuthReason classifies why a token was refused.
type AuthReason string

const (
	ReasonMissing   AuthReason = "missing"
	ReasonMalformed AuthReason = "malformed"
	ReasonSignature AuthReason = "signature-invalid"
	ReasonExpired   AuthReason = "expired"
	ReasonReplayed  AuthReason = "replayed"
)

// AuthError means the caller must log in again.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	switch e.Reason {
	case ReasonMissing:
		return "Access denied. Token missing."
	case ReasonExpired:
		return "Session expired. Please log in again."
	case ReasonReplayed:
		return "Token already used."
	}
	return "Invalid token."
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError means the request input was rejected before any state changed.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// TerminalStateError is returned for requests against a finished session.
type TerminalStateError struct {
	Status Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("session is %s", e.Status)
}
