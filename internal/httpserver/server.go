// internal/httpserver/server.go
//
// HTTP server wiring for the crackcode backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs, access logs).
//   - Public endpoints: "/", "/health", "/metrics", "/leaderboard".
//   - Game endpoints: POST /login, POST /guess, GET /status.
//   - Operator endpoint: POST /admin/code (only when an admin hash is configured).
//
// Notes:
//   - Session tokens travel as "Authorization: Bearer" or as an HttpOnly cookie;
//     both are accepted on every game route.
//   - All game decisions live in session.Policy; handlers only translate.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/crackcode/internal/metrics"
	"github.com/robalobadob/crackcode/internal/results"
	"github.com/robalobadob/crackcode/internal/session"
)

// ResultStore persists finished sessions and serves the leaderboard.
type ResultStore interface {
	Record(ctx context.Context, r results.Result) error
	Leaderboard(ctx context.Context, limit int) ([]results.Entry, error)
}

// CodeRotator replaces the secret code.
type CodeRotator interface {
	Rotate(raw string) error
}

// Deps are the collaborators and settings a Server needs.
type Deps struct {
	Policy        *session.Policy
	AttemptBudget int

	Results   ResultStore // nil disables recording and /leaderboard
	Codes     CodeRotator // nil or empty AdminHash disables /admin/code
	AdminHash []byte

	ClientOrigin string
	CookieName   string
	Production   bool

	RateLimitRPS   float64
	RateLimitBurst int
}

// Server bundles router and dependencies.
type Server struct {
	r       *chi.Mux
	d       Deps
	limiter *limiter
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) *Server {
	if d.CookieName == "" {
		d.CookieName = "crackcode_token"
	}
	s := &Server{
		r:       chi.NewRouter(),
		d:       d,
		limiter: newLimiter(d.RateLimitRPS, d.RateLimitBurst),
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(hlog.NewHandler(log.Logger))     // request-scoped logger
	s.r.Use(requestIDField)                  // req_id on every log line
	s.r.Use(accessLog())                     // one line per request
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(s.cors)                          // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":   "crackcode",
			"endpoints": []string{"POST /login", "POST /guess", "GET /status", "GET /leaderboard", "/health", "/metrics"},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	s.r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// --- game ---
	s.r.With(s.limiter.middleware).Post("/login", s.handleLogin)
	s.r.Post("/guess", s.handleGuess)
	s.r.Get("/status", s.handleStatus)

	if d.Results != nil {
		s.r.Get("/leaderboard", s.handleLeaderboard)
	}
	if d.Codes != nil && len(d.AdminHash) > 0 {
		s.r.With(s.limiter.middleware).Post("/admin/code", s.handleRotateCode)
	}

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found", "path": r.URL.Path})
	})
	return s
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// Limiter exposes the rate limiter so callers can sweep idle clients.
func (s *Server) Limiter() interface{ Sweep() int } { return s.limiter }

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.d.ClientOrigin
	if origin == "" {
		origin = "http://localhost:3000"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Password")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDField copies chi's request id into the request logger.
func requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			l := zerolog.Ctx(r.Context())
			l.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog() func(http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})
}

// ------------------------------ responses ----------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type messageRes struct {
	Message string `json:"message"`
}

// fail maps policy errors to the documented status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ae *session.AuthError
		ve *session.ValidationError
	)
	switch {
	case errors.As(err, &ae):
		metrics.AuthFailures.WithLabelValues(string(ae.Reason)).Inc()
		hlog.FromRequest(r).Debug().Str("reason", string(ae.Reason)).Msg("token refused")
		if ae.Reason != session.ReasonMissing {
			s.clearTokenCookie(w)
		}
		writeJSON(w, http.StatusForbidden, messageRes{Message: ae.Error()})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, messageRes{Message: ve.Error()})
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, messageRes{Message: "Internal server error."})
	}
}
