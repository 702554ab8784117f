package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/crackcode/internal/game"
	"github.com/robalobadob/crackcode/internal/results"
	"github.com/robalobadob/crackcode/internal/session"
	"github.com/robalobadob/crackcode/internal/store"
	"github.com/robalobadob/crackcode/internal/vault"
)

const (
	secret = "1234567890"
	wrong  = "0000000000"
)

type harness struct {
	t     *testing.T
	srv   *Server
	vault *vault.Vault
}

type option func(*session.Options, *Deps)

func withTimeBudget(d time.Duration) option {
	return func(o *session.Options, _ *Deps) { o.TimeBudget = d }
}

func newHarness(t *testing.T, codec session.Codec, opts ...option) *harness {
	t.Helper()
	v, err := vault.New(secret, 10, game.Digits)
	require.NoError(t, err)

	if codec == nil {
		codec, err = session.NewJWTCodec([]byte("test-key"), time.Hour)
		require.NoError(t, err)
	}
	o := session.Options{AttemptBudget: 3, TimeBudget: 10 * time.Minute, AllowSpaces: true}
	d := Deps{
		AttemptBudget:  3,
		Codes:          v,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	for _, opt := range opts {
		opt(&o, &d)
	}
	d.Policy = session.NewPolicy(v, codec, store.NewMemoryGuard(), o)
	return &harness{t: t, srv: New(d), vault: v}
}

// do sends a JSON request; tok travels as a bearer token when non-empty.
func (h *harness) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(h.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func (h *harness) login(subject string) string {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/login", "", map[string]string{"subject": subject})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode(h.t, rec)
	tok, _ := m["token"].(string)
	require.NotEmpty(h.t, tok)
	return tok
}

func TestLogin(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodPost, "/login", "", map[string]string{"subject": "Avengers"})
	require.Equal(t, http.StatusOK, rec.Code)

	m := decode(t, rec)
	assert.Equal(t, "Welcome, Avengers!", m["message"])
	assert.EqualValues(t, 3, m["attemptsLeft"])
	assert.EqualValues(t, 600, m["timeRemaining"])
	assert.NotEmpty(t, m["token"])

	c := rec.Result().Cookies()
	require.Len(t, c, 1)
	assert.Equal(t, "crackcode_token", c[0].Name)
	assert.True(t, c[0].HttpOnly)
}

func TestLogin_LegacyUsernameField(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodPost, "/login", "", map[string]string{"username": "Avengers"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_Rejected(t *testing.T) {
	h := newHarness(t, nil)
	for _, body := range []any{
		map[string]string{"subject": ""},
		map[string]string{"subject": "bad!name"},
		"{not json",
	} {
		rec := h.do(http.MethodPost, "/login", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}

func TestGuess_ThreeWrongThenGameOver(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.login("Avengers")

	for left := 2; left >= 1; left-- {
		rec := h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		m := decode(t, rec)
		assert.Equal(t, "in-progress", m["status"])
		assert.EqualValues(t, left, m["attemptsLeft"])
		assert.Len(t, m["marks"], 10)
		tok = m["token"].(string)
	}

	rec := h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
	require.Equal(t, http.StatusForbidden, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, "game-over", m["status"])
	assert.EqualValues(t, 0, m["attemptsLeft"])
	assert.Equal(t, "No attempts left.", m["message"])
	assert.NotContains(t, m, "token")
}

func TestGuess_FirstTryWin(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.login("Avengers")

	rec := h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": secret})
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, "success", m["status"])
	for _, mk := range m["marks"].([]any) {
		assert.Equal(t, "green", mk)
	}
	assert.NotContains(t, m, "token")

	// the winning token cannot be reused
	rec = h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": secret})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuess_PositionalMarks(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.login("Avengers")

	rec := h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": "1200000000"})
	require.Equal(t, http.StatusOK, rec.Code)
	marks := decode(t, rec)["marks"].([]any)
	assert.Equal(t, "green", marks[0])
	assert.Equal(t, "green", marks[1])
	assert.Equal(t, "red", marks[2])
}

func TestGuess_ArrayInput(t *testing.T) {
	h := newHarness(t, nil)

	tok := h.login("Avengers")
	rec := h.do(http.MethodPost, "/guess", tok, `{"guess":[1,2,3,4,5,6,7,8,9,0]}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", decode(t, rec)["status"])

	tok = h.login("Avengers")
	rec = h.do(http.MethodPost, "/guess", tok, `{"guess":["1","2","3","4","5","6","7","8","9","0"]}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tok = h.login("Avengers")
	rec = h.do(http.MethodPost, "/guess", tok, `{"guess":[12,3]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuess_MalformedKeepsToken(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.login("Avengers")

	for _, g := range []string{"123", "12345678901", "12345abcde"} {
		rec := h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": g})
		assert.Equal(t, http.StatusBadRequest, rec.Code, g)
	}

	rec := h.do(http.MethodGet, "/status", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["attemptsLeft"])

	rec = h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuess_TokenProblems(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/guess", "", map[string]string{"guess": secret})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied. Token missing.", decode(t, rec)["message"])

	rec = h.do(http.MethodPost, "/guess", "not.a.token", map[string]string{"guess": secret})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid token.", decode(t, rec)["message"])
}

func TestGuess_ReplayRejected(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.login("Avengers")

	rec := h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Token already used.", decode(t, rec)["message"])

	rec = h.do(http.MethodGet, "/status", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuess_CookieTransport(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodPost, "/login", "", map[string]string{"subject": "Avengers"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodPost, "/guess", bytes.NewBufferString(`{"guess":"0000000000"}`))
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	next := rec.Result().Cookies()
	require.Len(t, next, 1)
	assert.NotEqual(t, cookie.Value, next[0].Value)
	assert.Equal(t, decode(t, rec)["token"], next[0].Value)
}

func TestGuess_Expired(t *testing.T) {
	h := newHarness(t, nil, withTimeBudget(50*time.Millisecond))
	tok := h.login("Avengers")
	time.Sleep(80 * time.Millisecond)

	rec := h.do(http.MethodGet, "/status", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, "game-over", m["status"])
	assert.EqualValues(t, 0, m["timeRemaining"])

	rec = h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": secret})
	require.Equal(t, http.StatusForbidden, rec.Code)
	m = decode(t, rec)
	assert.Equal(t, "game-over", m["status"])
	assert.Equal(t, "Time is up.", m["message"])
	assert.NotContains(t, m, "marks")
}

func TestGuess_ExpiredWinsOverBadBody(t *testing.T) {
	for _, body := range []string{`{"guess":12345}`, `{"guess":["12","3"]}`, `{"guess":"12"}`, `{not json`} {
		t.Run(body, func(t *testing.T) {
			h := newHarness(t, nil, withTimeBudget(50*time.Millisecond))
			tok := h.login("Avengers")
			time.Sleep(80 * time.Millisecond)

			rec := h.do(http.MethodPost, "/guess", tok, body)
			require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
			m := decode(t, rec)
			assert.Equal(t, "game-over", m["status"])
			assert.EqualValues(t, 0, m["timeRemaining"])
		})
	}
}

func TestGuess_TokenCheckedBeforeBody(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/guess", "", `{"guess":12345}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied. Token missing.", decode(t, rec)["message"])

	tok := h.login("Avengers")
	rec = h.do(http.MethodPost, "/guess", tok, `{"guess":12345}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "guess must be a string or an array of symbols", decode(t, rec)["message"])

	rec = h.do(http.MethodPost, "/guess", tok, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuess_MalformedOnUsedToken(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.login("Avengers")

	rec := h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": "12"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Token already used.", decode(t, rec)["message"])
}

func TestStatus(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.login("Avengers")

	rec := h.do(http.MethodGet, "/status", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, "in-progress", m["status"])
	assert.Equal(t, "Avengers", m["subject"])
	assert.EqualValues(t, 3, m["attemptsLeft"])

	// polling never spends the token
	rec = h.do(http.MethodGet, "/status", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTableCodec(t *testing.T) {
	codec := session.NewTableCodec(store.NewTable[session.State](), time.Hour)
	h := newHarness(t, codec)
	tok := h.login("Avengers")

	rec := h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode(t, rec)["token"].(string)

	rec = h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Token already used.", decode(t, rec)["message"])

	rec = h.do(http.MethodGet, "/status", tok, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Token already used.", decode(t, rec)["message"])

	rec = h.do(http.MethodPost, "/guess", next, map[string]string{"guess": secret})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRotate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	h := newHarness(t, nil, func(_ *session.Options, d *Deps) { d.AdminHash = hash })

	rotate := func(pw string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPost, "/admin/code", &buf)
		if pw != "" {
			req.Header.Set("X-Admin-Password", pw)
		}
		rec := httptest.NewRecorder()
		h.srv.Router().ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, rotate("", map[string]string{"code": "9999999999"}).Code)
	assert.Equal(t, http.StatusUnauthorized, rotate("nope", map[string]string{"code": "9999999999"}).Code)
	assert.Equal(t, http.StatusBadRequest, rotate("hunter2", map[string]string{"code": "99"}).Code)

	rec := rotate("hunter2", map[string]string{"code": "9999999999"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Code updated.", decode(t, rec)["message"])

	tok := h.login("Avengers")
	rec = h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": "9999999999"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decode(t, rec)["status"])
}

func TestAdminRoute_AbsentWithoutHash(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodPost, "/admin/code", "", map[string]string{"code": "9999999999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboard(t *testing.T) {
	db, err := results.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	rs := results.NewStore(db)
	t.Cleanup(func() { _ = rs.Close() })

	h := newHarness(t, nil, func(_ *session.Options, d *Deps) { d.Results = rs })

	// one win on the second attempt, one loss
	tok := h.login("Avengers")
	rec := h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
	tok = decode(t, rec)["token"].(string)
	rec = h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": secret})
	require.Equal(t, http.StatusOK, rec.Code)

	tok = h.login("Thanos")
	for i := 0; i < 3; i++ {
		rec = h.do(http.MethodPost, "/guess", tok, map[string]string{"guess": wrong})
		if rec.Code == http.StatusOK {
			tok = decode(t, rec)["token"].(string)
		}
	}
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []results.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Avengers", rows[0].Subject)
	assert.Equal(t, 2, rows[0].AttemptsUsed)

	rec = h.do(http.MethodGet, "/leaderboard?limit=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, nil, func(_ *session.Options, d *Deps) {
		d.RateLimitRPS = 0.001
		d.RateLimitBurst = 2
	})
	for i := 0; i < 2; i++ {
		rec := h.do(http.MethodPost, "/login", "", map[string]string{"subject": "Avengers"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := h.do(http.MethodPost, "/login", "", map[string]string{"subject": "Avengers"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// guessing is not rate limited by the login bucket
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/guess", "", map[string]string{"guess": secret}).Code)
}

func TestLimiterSweep(t *testing.T) {
	l := newLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.get("10.0.0.1")
	l.get("10.0.0.2")

	now = now.Add(5 * time.Minute)
	l.get("10.0.0.2")
	now = now.Add(6 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Len(t, l.clients, 1)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 0, seconds(0))
	assert.Equal(t, 0, seconds(-time.Second))
	assert.Equal(t, 1, seconds(time.Millisecond))
	assert.Equal(t, 510, seconds(8*time.Minute+30*time.Second))
	assert.Equal(t, 511, seconds(8*time.Minute+30*time.Second+time.Nanosecond))
}

func TestHealthAndNotFound(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/metrics", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/nope", "", nil).Code)
}
