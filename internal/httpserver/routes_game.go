// internal/httpserver/routes_game.go
//
// Game endpoints:
//   - POST /login  → start a session, returns a token
//   - POST /guess  → submit one guess with the current token
//   - GET  /status → read-only view of the current token's session
//
// Every non-terminal response carries a fresh token (body + cookie); the
// token sent with the request is single-use once a guess has been scored.

package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/crackcode/internal/game"
	"github.com/robalobadob/crackcode/internal/metrics"
	"github.com/robalobadob/crackcode/internal/results"
	"github.com/robalobadob/crackcode/internal/session"
)

// loginReq accepts "subject" or the older "username" field.
type loginReq struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
}

type loginRes struct {
	Message       string `json:"message"`
	Token         string `json:"token"`
	AttemptsLeft  int    `json:"attemptsLeft"`
	TimeRemaining int    `json:"timeRemaining"` // seconds
}

type guessReq struct {
	Guess guessInput `json:"guess"`
}

// guessRes covers every /guess outcome; unused fields are omitted.
type guessRes struct {
	Status        string      `json:"status"`
	Message       string      `json:"message,omitempty"`
	Marks         []game.Mark `json:"marks,omitempty"`
	AttemptsLeft  *int        `json:"attemptsLeft,omitempty"`
	Token         string      `json:"token,omitempty"`
	TimeRemaining int         `json:"timeRemaining"`
}

type statusRes struct {
	Status        string `json:"status"`
	Subject       string `json:"subject"`
	AttemptsLeft  int    `json:"attemptsLeft"`
	TimeRemaining int    `json:"timeRemaining"`
}

// handleLogin validates the subject and mints the first token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageRes{Message: "Invalid request body."})
		return
	}
	subject := req.Subject
	if subject == "" {
		subject = req.Username
	}

	out, err := s.d.Policy.Login(subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.SessionsStarted.Inc()
	s.setTokenCookie(w, out.Token)
	hlog.FromRequest(r).Info().Str("subject", out.Subject).Msg("session started")

	writeJSON(w, http.StatusOK, loginRes{
		Message:       fmt.Sprintf("Welcome, %s!", out.Subject),
		Token:         out.Token.Value,
		AttemptsLeft:  out.AttemptsRemaining,
		TimeRemaining: seconds(out.TimeRemaining),
	})
}

// handleGuess scores one guess and reports the resulting state.
func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	// Body problems are reported by the policy, after the token and the
	// game clock have been checked.
	var req guessReq
	inputErr := json.NewDecoder(r.Body).Decode(&req)
	if inputErr != nil {
		inputErr = fmt.Errorf("invalid request body: %s", rootMessage(inputErr))
	} else {
		inputErr = req.Guess.err
	}

	out, err := s.d.Policy.GuessInput(r.Context(), bearerOrCookie(r, s.d.CookieName), req.Guess.raw, inputErr)
	var te *session.TerminalStateError
	if err != nil && !errors.As(err, &te) {
		var ve *session.ValidationError
		if errors.As(err, &ve) {
			metrics.Guesses.WithLabelValues("rejected").Inc()
		}
		s.fail(w, r, err)
		return
	}
	if out.Marks != nil {
		if out.Status == session.Success {
			metrics.Guesses.WithLabelValues("match").Inc()
		} else {
			metrics.Guesses.WithLabelValues("miss").Inc()
		}
	}

	res := guessRes{
		Status:        out.Status.Wire(),
		Marks:         out.Marks,
		TimeRemaining: seconds(out.TimeRemaining),
	}
	switch out.Status {
	case session.Active:
		left := out.AttemptsRemaining
		res.AttemptsLeft = &left
		res.Token = out.Token.Value
		s.setTokenCookie(w, out.Token)
		writeJSON(w, http.StatusOK, res)
		return
	case session.Success:
		res.Message = "Correct code!"
	case session.Exhausted:
		none := 0
		res.AttemptsLeft = &none
		res.Message = "No attempts left."
	case session.Expired:
		res.Message = "Time is up."
	}

	s.clearTokenCookie(w)
	if te == nil {
		s.finish(r, out)
	}
	status := http.StatusForbidden
	if out.Status == session.Success {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// handleStatus reports the session without spending anything.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.d.Policy.Status(r.Context(), bearerOrCookie(r, s.d.CookieName))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusRes{
		Status:        out.Status.Wire(),
		Subject:       out.Subject,
		AttemptsLeft:  out.AttemptsRemaining,
		TimeRemaining: seconds(out.TimeRemaining),
	})
}

// finish records a terminal outcome (best effort) and updates counters.
func (s *Server) finish(r *http.Request, out session.Outcome) {
	metrics.SessionsFinished.WithLabelValues(out.Status.String()).Inc()
	hlog.FromRequest(r).Info().
		Str("subject", out.Subject).
		Str("outcome", out.Status.String()).
		Dur("elapsed", out.Elapsed).
		Msg("session finished")

	if s.d.Results == nil {
		return
	}
	used := s.d.AttemptBudget - out.AttemptsRemaining
	if out.Status == session.Success {
		used++
	}
	err := s.d.Results.Record(r.Context(), results.Result{
		TokenID:      out.TokenID,
		Subject:      out.Subject,
		Outcome:      out.Status.String(),
		AttemptsUsed: used,
		ElapsedMs:    out.Elapsed.Milliseconds(),
		FinishedAt:   time.Now().UTC(),
	})
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("record result")
	}
}

// seconds rounds a remaining duration up to whole seconds.
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// guessInput accepts "1234567890" or ["1","2",...] or [1,2,...].
// A value of any other shape is kept as err instead of failing the decode.
type guessInput struct {
	raw string
	err error
}

func (g *guessInput) UnmarshalJSON(b []byte) error {
	g.raw, g.err = parseGuess(b)
	return nil
}

func parseGuess(b []byte) (string, error) {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s, nil
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return "", errors.New("guess must be a string or an array of symbols")
	}
	var sb strings.Builder
	for i, p := range parts {
		var sym string
		if err := json.Unmarshal(p, &sym); err == nil {
			if utf8.RuneCountInString(sym) != 1 {
				return "", fmt.Errorf("symbol %d must be a single character", i+1)
			}
			sb.WriteString(sym)
			continue
		}
		var n int
		if err := json.Unmarshal(p, &n); err != nil || n < 0 || n > 9 {
			return "", fmt.Errorf("symbol %d must be a character or a digit 0-9", i+1)
		}
		sb.WriteByte(byte('0' + n))
	}
	return sb.String(), nil
}

// rootMessage strips encoding/json's type prefix from decode errors.
func rootMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 && strings.HasPrefix(msg, "json: ") {
		return msg[i+2:]
	}
	return msg
}

// ------------------------------ token transport ----------------------------

// bearerOrCookie extracts a token from the Authorization header or the cookie.
func bearerOrCookie(r *http.Request, cookieName string) string {
	// Authorization: Bearer <token>
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) sameSite() http.SameSite {
	if s.d.Production {
		return http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	return http.SameSiteLaxMode
}

// setTokenCookie writes the session cookie alongside the body token.
func (s *Server) setTokenCookie(w http.ResponseWriter, tok *session.Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.d.CookieName,
		Value:    tok.Value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.d.Production,
		SameSite: s.sameSite(),
		Expires:  tok.ExpiresAt,
	})
}

// clearTokenCookie deletes the session cookie.
func (s *Server) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.d.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.d.Production,
		SameSite: s.sameSite(),
		MaxAge:   -1,
	})
}
