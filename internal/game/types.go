// internal/game/types.go
//
// Core type definitions for the code evaluator.
// Defines:
//   - Mark: per-position verdict of a guess (match/mismatch).
//   - Alphabet: which symbols a deployment's code is drawn from.
//   - Code: the secret symbol sequence.
//   - Result: the ephemeral outcome of one evaluation.

package game

import (
	"fmt"
	"strings"
)

// Mark represents the evaluation result for a single position in a guess.
// Values are serialized the way clients render them:
//   - "green": symbol is correct at this position.
//   - "red":   symbol is wrong at this position.
type Mark string

const (
	MarkMatch    Mark = "green"
	MarkMismatch Mark = "red"
)

// Alphabet selects the symbol set and comparison rule for a deployment.
type Alphabet int

const (
	// Digits codes use 0-9 and compare raw characters.
	Digits Alphabet = iota
	// Alphanumeric codes use 0-9, a-z, A-Z and compare case-insensitively.
	Alphanumeric
)

// ParseAlphabet maps a configuration value to an Alphabet.
func ParseAlphabet(s string) (Alphabet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "digits", "numeric":
		return Digits, nil
	case "alphanumeric", "alnum":
		return Alphanumeric, nil
	}
	return Digits, fmt.Errorf("unknown alphabet %q", s)
}

func (a Alphabet) String() string {
	if a == Alphanumeric {
		return "alphanumeric"
	}
	return "digits"
}

// Contains reports whether r is a legal symbol for the alphabet.
func (a Alphabet) Contains(r rune) bool {
	if r >= '0' && r <= '9' {
		return true
	}
	if a == Alphanumeric {
		return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
	}
	return false
}

// fold applies the alphabet's normalization to a single symbol.
func (a Alphabet) fold(r rune) rune {
	if a == Alphanumeric && r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// Code is the secret, fixed-length symbol sequence. The zero value is empty
// and evaluates nothing; build one with NewCode.
type Code struct {
	symbols  []rune
	alphabet Alphabet
}

// Len returns N, the number of positions in the code.
func (c Code) Len() int { return len(c.symbols) }

// Alphabet returns the alphabet the code was validated against.
func (c Code) Alphabet() Alphabet { return c.alphabet }

// Result holds the outcome of comparing one guess to the code.
type Result struct {
	Marks []Mark // one per position, aligned with the guess
	IsWin bool   // true iff every mark is MarkMatch
}

// ShapeError reports a guess (or code) that cannot be evaluated.
type ShapeError struct {
	Want   int    // required length
	Got    int    // observed length
	Symbol rune   // offending symbol, when the length is right
	Pos    int    // position of Symbol
	What   string // "guess" or "code"
}

func (e *ShapeError) Error() string {
	if e.Got != e.Want {
		return fmt.Sprintf("%s must be %d symbols long, got %d", e.What, e.Want, e.Got)
	}
	return fmt.Sprintf("%s has invalid symbol %q at position %d", e.What, e.Symbol, e.Pos+1)
}
