// internal/session/table.go
//
// Server-held session codec (the cookie-session variant).
// The token is an opaque random id; the State stays in process memory
// until it expires or is retired. Retired ids leave a tombstone so a
// replayed id reports "replayed" rather than "unknown". Only valid for
// single-instance deployments.

package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/crackcode/internal/store"
)

// TableCodec keeps states in a store.Table keyed by token id.
type TableCodec struct {
	table   *store.Table[State]
	retired *store.Table[struct{}]
	ttl     time.Duration
	now     func() time.Time
}

// NewTableCodec builds a codec over table with entries living for ttl.
func NewTableCodec(table *store.Table[State], ttl time.Duration) *TableCodec {
	c := &TableCodec{table: table, ttl: ttl, now: time.Now}
	c.retired = store.NewTable[struct{}]().WithClock(func() time.Time { return c.now() })
	return c
}

func (c *TableCodec) Issue(st State) (Token, error) {
	id := uuid.NewString()
	st.TokenID = id
	exp := c.now().Add(c.ttl)
	c.table.Put(id, st, exp)
	return Token{Value: id, ID: id, ExpiresAt: exp}, nil
}

func (c *TableCodec) Open(token string) (State, error) {
	if token == "" {
		return State{}, &AuthError{Reason: ReasonMissing}
	}
	if _, err := uuid.Parse(token); err != nil {
		return State{}, &AuthError{Reason: ReasonMalformed, Err: err}
	}
	if _, err := c.retired.Get(token); err == nil {
		return State{}, &AuthError{Reason: ReasonReplayed, Err: store.ErrReplayed}
	}
	st, err := c.table.Get(token)
	if errors.Is(err, store.ErrNotFound) {
		// unknown and expired ids look the same once swept
		return State{}, &AuthError{Reason: ReasonSignature, Err: err}
	}
	if err != nil {
		return State{}, &AuthError{Reason: ReasonMalformed, Err: err}
	}
	return st, nil
}

// Retire drops a consumed session and remembers its id for ttl.
func (c *TableCodec) Retire(id string) {
	c.table.Delete(id)
	c.retired.Put(id, struct{}{}, c.now().Add(c.ttl))
}

// Sweep drops expired sessions and tombstones.
func (c *TableCodec) Sweep() int {
	return c.table.Sweep() + c.retired.Sweep()
}
