// internal/session/policy.go
//
// Session state machine.
//
//	Unauthenticated --login--> Active --guess--> Active | Success | Exhausted | Expired
//
// Advance and Project are pure functions of (State, code, instant). Guess
// and Status wrap them with token decoding, replay protection and token
// re-issue. Both paths compute the game clock through the same helper so
// status polling and guessing always agree on expiry.

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/robalobadob/crackcode/internal/game"
	"github.com/robalobadob/crackcode/internal/store"
)

const defaultMaxSubjectLen = 64

// CodeSource yields the secret code in effect.
type CodeSource interface {
	Code() game.Code
}

// Options are the fixed game rules of a deployment.
type Options struct {
	AttemptBudget int           // B
	TimeBudget    time.Duration // T
	ReplayTTL     time.Duration // how long consumed token ids are remembered
	AllowSpaces   bool          // subjects may contain spaces
	MaxSubjectLen int           // 0 means 64
}

// Outcome is what one Login, Guess or Status call reports.
type Outcome struct {
	Status            Status
	Subject           string
	Marks             []game.Mark // set on guesses that were evaluated
	AttemptsRemaining int
	TimeRemaining     time.Duration
	Elapsed           time.Duration
	TokenID           string // id of the token the request presented
	Token             *Token // replacement token; nil unless Active after login/guess
}

// Policy runs the session state machine.
type Policy struct {
	codes CodeSource
	codec Codec
	guard store.Guard
	opts  Options
	now   func() time.Time
}

// retirer is implemented by codecs that hold state server-side.
type retirer interface{ Retire(id string) }

// NewPolicy wires a state machine. All collaborators are required.
func NewPolicy(codes CodeSource, codec Codec, guard store.Guard, opts Options) *Policy {
	if opts.MaxSubjectLen <= 0 {
		opts.MaxSubjectLen = defaultMaxSubjectLen
	}
	if opts.ReplayTTL <= 0 {
		opts.ReplayTTL = opts.TimeBudget
	}
	return &Policy{codes: codes, codec: codec, guard: guard, opts: opts, now: time.Now}
}

// Login starts a session for subject with the full attempt budget.
func (p *Policy) Login(subject string) (Outcome, error) {
	subject = strings.TrimSpace(subject)
	if err := p.validateSubject(subject); err != nil {
		return Outcome{}, &ValidationError{Field: "subject", Err: err}
	}
	st := State{
		Subject:           subject,
		AttemptsRemaining: p.opts.AttemptBudget,
		StartedAt:         p.now().UTC().Truncate(time.Millisecond),
	}
	tok, err := p.codec.Issue(st)
	if err != nil {
		return Outcome{}, fmt.Errorf("issue token: %w", err)
	}
	return Outcome{
		Status:            Active,
		Subject:           subject,
		AttemptsRemaining: st.AttemptsRemaining,
		TimeRemaining:     p.opts.TimeBudget,
		TokenID:           tok.ID,
		Token:             &tok,
	}, nil
}

// Guess opens token, applies one guess and consumes the token.
// A malformed guess returns a *ValidationError and leaves the token usable.
func (p *Policy) Guess(ctx context.Context, token, raw string) (Outcome, error) {
	return p.GuessInput(ctx, token, raw, nil)
}

// GuessInput is Guess for callers that decode the guess themselves.
// A non-nil inputErr is reported as a *ValidationError, but only after the
// token has been opened and the session is known to be neither expired
// nor replayed.
func (p *Policy) GuessInput(ctx context.Context, token, raw string, inputErr error) (Outcome, error) {
	st, err := p.codec.Open(token)
	if err != nil {
		return Outcome{}, err
	}
	out, next, stepErr := p.advance(st, p.codes.Code(), raw, inputErr, p.now())
	var ve *ValidationError
	if errors.As(stepErr, &ve) {
		used, err := p.guard.Consumed(ctx, st.TokenID)
		if err != nil {
			return Outcome{}, fmt.Errorf("check token: %w", err)
		}
		if used {
			return Outcome{}, &AuthError{Reason: ReasonReplayed, Err: store.ErrReplayed}
		}
		return out, stepErr
	}

	if err := p.guard.Consume(ctx, st.TokenID, p.opts.ReplayTTL); err != nil {
		if errors.Is(err, store.ErrReplayed) {
			return Outcome{}, &AuthError{Reason: ReasonReplayed, Err: err}
		}
		return Outcome{}, fmt.Errorf("consume token: %w", err)
	}
	if r, ok := p.codec.(retirer); ok {
		r.Retire(st.TokenID)
	}
	if stepErr != nil {
		return out, stepErr
	}

	if out.Status == Active {
		tok, err := p.codec.Issue(next)
		if err != nil {
			return Outcome{}, fmt.Errorf("issue token: %w", err)
		}
		out.Token = &tok
	}
	return out, nil
}

// Status reports the session's position without consuming anything.
func (p *Policy) Status(ctx context.Context, token string) (Outcome, error) {
	st, err := p.codec.Open(token)
	if err != nil {
		return Outcome{}, err
	}
	used, err := p.guard.Consumed(ctx, st.TokenID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check token: %w", err)
	}
	if used {
		return Outcome{}, &AuthError{Reason: ReasonReplayed, Err: store.ErrReplayed}
	}
	return p.Project(st, p.now()), nil
}

// Advance is the guess transition at instant now. It returns the outcome
// and the successor state (meaningful only when the outcome is Active).
//
// Order matters: expiry first (no attempt consumed), then shape validation,
// then evaluation. A win is checked before exhaustion, so a correct final
// guess is a Success.
func (p *Policy) Advance(st State, code game.Code, raw string, now time.Time) (Outcome, State, error) {
	return p.advance(st, code, raw, nil, now)
}

func (p *Policy) advance(st State, code game.Code, raw string, inputErr error, now time.Time) (Outcome, State, error) {
	out := p.Project(st, now)
	switch out.Status {
	case Expired:
		return out, st, nil
	case Exhausted:
		return out, st, &TerminalStateError{Status: Exhausted}
	}

	if inputErr != nil {
		return out, st, &ValidationError{Field: "guess", Err: inputErr}
	}
	res, err := game.Evaluate(code, raw)
	if err != nil {
		return out, st, &ValidationError{Field: "guess", Err: err}
	}
	out.Marks = res.Marks
	if res.IsWin {
		out.Status = Success
		return out, st, nil
	}

	next := st
	next.AttemptsRemaining--
	out.AttemptsRemaining = next.AttemptsRemaining
	if next.AttemptsRemaining <= 0 {
		out.AttemptsRemaining = 0
		out.Status = Exhausted
	}
	return out, next, nil
}

// Project is the read-only view of st at instant now.
func (p *Policy) Project(st State, now time.Time) Outcome {
	left, elapsed, expired := p.clock(st, now)
	out := Outcome{
		Status:            Active,
		Subject:           st.Subject,
		AttemptsRemaining: st.AttemptsRemaining,
		TimeRemaining:     left,
		Elapsed:           elapsed,
		TokenID:           st.TokenID,
	}
	switch {
	case expired:
		out.Status = Expired
	case st.AttemptsRemaining <= 0:
		out.Status = Exhausted
		out.AttemptsRemaining = 0
	}
	return out
}

// clock is the single source of truth for the game timer.
// elapsed == T counts as expired.
func (p *Policy) clock(st State, now time.Time) (left, elapsed time.Duration, expired bool) {
	elapsed = now.Sub(st.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= p.opts.TimeBudget {
		return 0, elapsed, true
	}
	return p.opts.TimeBudget - elapsed, elapsed, false
}

// validateSubject enforces the allowed-character policy:
// ASCII letters and digits, plus inner spaces when enabled.
func (p *Policy) validateSubject(s string) error {
	if s == "" {
		return errors.New("username is required")
	}
	if utf8.RuneCountInString(s) > p.opts.MaxSubjectLen {
		return fmt.Errorf("username must be at most %d characters", p.opts.MaxSubjectLen)
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ' ' && p.opts.AllowSpaces:
		default:
			if p.opts.AllowSpaces {
				return errors.New("username: letters, numbers and spaces only")
			}
			return errors.New("username: letters and numbers only")
		}
	}
	return nil
}
