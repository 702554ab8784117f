// internal/game/engine.go
//
// Positional evaluator for the crack-the-code game.
// Responsibilities:
//   - Validate codes and guesses (length N, alphabet membership).
//   - Compare a guess to the code position by position.
//
// Notes:
//   - There is no "present but misplaced" mark: each position is scored
//     independently, even when symbols repeat.
//   - Alphanumeric deployments fold case on both operands before comparing.
package game

import (
	"github.com/samber/lo"
)

// NewCode validates raw against the required length and alphabet.
func NewCode(raw string, length int, a Alphabet) (Code, error) {
	symbols, err := shape("code", raw, length, a)
	if err != nil {
		return Code{}, err
	}
	return Code{symbols: symbols, alphabet: a}, nil
}

// Evaluate scores guess against code.
// Returns a *ShapeError when the guess is the wrong length or uses a
// symbol outside the code's alphabet. Evaluate has no side effects.
func Evaluate(code Code, guess string) (Result, error) {
	symbols, err := shape("guess", guess, code.Len(), code.alphabet)
	if err != nil {
		return Result{}, err
	}
	marks := lo.Map(symbols, func(r rune, i int) Mark {
		if code.alphabet.fold(r) == code.alphabet.fold(code.symbols[i]) {
			return MarkMatch
		}
		return MarkMismatch
	})
	return Result{
		Marks: marks,
		IsWin: lo.EveryBy(marks, func(m Mark) bool { return m == MarkMatch }),
	}, nil
}

// Validate checks a guess shape without scoring it.
func Validate(code Code, guess string) error {
	_, err := shape("guess", guess, code.Len(), code.alphabet)
	return err
}

// shape splits s into symbols and enforces length and alphabet.
func shape(what, s string, length int, a Alphabet) ([]rune, error) {
	symbols := []rune(s)
	if len(symbols) != length {
		return nil, &ShapeError{What: what, Want: length, Got: len(symbols)}
	}
	for i, r := range symbols {
		if !a.Contains(r) {
			return nil, &ShapeError{What: what, Want: length, Got: length, Symbol: r, Pos: i}
		}
	}
	return symbols, nil
}
