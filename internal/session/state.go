// internal/session/state.go
//
// Session state carried by the client between requests.
//
// The server keeps no per-player table in the default deployment: a
// State lives inside a signed token and is replaced, never edited, after
// each non-terminal guess.

package session

import "time"

// Status is a position in the session state machine.
type Status int

const (
	Unauthenticated Status = iota
	Active
	Success
	Exhausted // attempts reached zero without a win
	Expired   // time budget elapsed without a win
)

// Terminal reports whether no further guesses are accepted.
func (s Status) Terminal() bool {
	return s == Success || s == Exhausted || s == Expired
}

// Wire is the status string sent to clients.
func (s Status) Wire() string {
	switch s {
	case Active:
		return "in-progress"
	case Success:
		return "success"
	case Exhausted, Expired:
		return "game-over"
	}
	return "not-logged-in"
}

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Success:
		return "success"
	case Exhausted:
		return "exhausted"
	case Expired:
		return "expired"
	}
	return "unauthenticated"
}

// State is the complete mutable game state for one player.
type State struct {
	Subject           string
	AttemptsRemaining int
	StartedAt         time.Time // UTC, millisecond precision
	TokenID           string    // unique per issued token; set by the codec
}

// Token is a minted session credential.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Codec mints and opens session tokens.
// Either transport (signed bearer token, server-held table) satisfies it.
type Codec interface {
	// Issue serializes st under a fresh token id.
	Issue(st State) (Token, error)
	// Open verifies token and returns the state it carries, or an *AuthError.
	Open(token string) (State, error)
}
