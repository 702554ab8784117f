// internal/session/jwt.go
//
// Signed bearer-token codec.
//
// Tokens are HS256 JWTs. The claims are readable by the client; only the
// signature makes them unforgeable. The JWT "exp" claim is a safety net
// and is always configured at least as long as the game's time budget:
// the game timer derived from startedAt decides the game outcome.

package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// claims is the JWT payload.
type claims struct {
	Attempts  int   `json:"attempts"`
	StartedAt int64 `json:"startedAt"` // unix milliseconds
	jwt.RegisteredClaims
}

// JWTCodec issues and verifies HS256 session tokens.
// Instances sharing a key accept each other's tokens.
type JWTCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewJWTCodec builds a codec. key must be non-empty and ttl positive.
func NewJWTCodec(key []byte, ttl time.Duration) (*JWTCodec, error) {
	if len(key) == 0 {
		return nil, errors.New("jwt codec: empty signing key")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt codec: ttl must be positive")
	}
	return &JWTCodec{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue signs st under a fresh token id, valid for the codec's ttl.
func (c *JWTCodec) Issue(st State) (Token, error) {
	now := c.now()
	id := uuid.NewString()
	exp := jwt.NewNumericDate(now.Add(c.ttl))
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Attempts:  st.AttemptsRemaining,
		StartedAt: st.StartedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   st.Subject,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	})
	ss, err := t.SignedString(c.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: ss, ID: id, ExpiresAt: exp.Time}, nil
}

// Open verifies signature, algorithm and expiry and decodes the state.
func (c *JWTCodec) Open(token string) (State, error) {
	if token == "" {
		return State{}, &AuthError{Reason: ReasonMissing}
	}
	if err := c.verify(token); err != nil {
		return State{}, err
	}
	var cl claims
	_, err := jwt.ParseWithClaims(token, &cl,
		func(*jwt.Token) (interface{}, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return State{}, &AuthError{Reason: jwtReason(err), Err: err}
	}
	if cl.Subject == "" || cl.ID == "" || cl.StartedAt <= 0 || cl.Attempts < 0 {
		return State{}, &AuthError{Reason: ReasonMalformed, Err: errors.New("incomplete claims")}
	}
	return State{
		Subject:           cl.Subject,
		AttemptsRemaining: cl.Attempts,
		StartedAt:         time.UnixMilli(cl.StartedAt).UTC(),
		TokenID:           cl.ID,
	}, nil
}

// verify checks the HS256 MAC before any segment is decoded, so altering
// any byte of a three-part token is a signature failure even when the
// altered header or payload no longer decodes.
func (c *JWTCodec) verify(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return &AuthError{Reason: ReasonMalformed, Err: jwt.ErrTokenMalformed}
	}
	sig, err := jwt.NewParser().DecodeSegment(parts[2])
	if err != nil {
		return &AuthError{Reason: ReasonSignature, Err: err}
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.key); err != nil {
		return &AuthError{Reason: ReasonSignature, Err: err}
	}
	return nil
}

func jwtReason(err error) AuthReason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonSignature
	}
	return ReasonMalformed
}
