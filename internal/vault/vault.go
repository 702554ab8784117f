// internal/vault/vault.go
//
// Holder for the deployment's secret code.
//
// Game requests only ever read the code. Rotation is a separate,
// operator-only capability exposed through the admin route.

package vault

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/robalobadob/crackcode/internal/game"
)

const (
	digitSymbols = "0123456789"
	alnumSymbols = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Vault guards the current code.
type Vault struct {
	mu       sync.RWMutex
	code     game.Code
	length   int
	alphabet game.Alphabet
}

// New validates raw and returns a vault holding it.
func New(raw string, length int, a game.Alphabet) (*Vault, error) {
	c, err := game.NewCode(raw, length, a)
	if err != nil {
		return nil, err
	}
	return &Vault{code: c, length: length, alphabet: a}, nil
}

// Generate returns a vault holding a crypto-random code.
func Generate(length int, a game.Alphabet) (*Vault, error) {
	raw, err := randomCode(length, a)
	if err != nil {
		return nil, err
	}
	return New(raw, length, a)
}

// Code returns the code in effect.
func (v *Vault) Code() game.Code {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.code
}

// Rotate replaces the code. raw must have the vault's length and alphabet.
func (v *Vault) Rotate(raw string) error {
	c, err := game.NewCode(raw, v.length, v.alphabet)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.code = c
	v.mu.Unlock()
	return nil
}

func randomCode(length int, a game.Alphabet) (string, error) {
	symbols := digitSymbols
	if a == game.Alphanumeric {
		symbols = alnumSymbols
	}
	max := big.NewInt(int64(len(symbols)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		out[i] = symbols[n.Int64()]
	}
	return string(out), nil
}
