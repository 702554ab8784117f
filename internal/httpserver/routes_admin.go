// internal/httpserver/routes_admin.go
//
// Operator and read-only endpoints:
//   - POST /admin/code   → replace the secret code (X-Admin-Password header)
//   - GET  /leaderboard  → fastest successful sessions
//
// The admin route is only mounted when an ADMIN_PASSWORD_HASH is configured.

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/crackcode/internal/metrics"
	"github.com/robalobadob/crackcode/internal/results"
)

type rotateReq struct {
	Code string `json:"code"`
}

// handleRotateCode swaps the secret code after checking the admin password.
// In-flight sessions are scored against the new code from the next guess on.
func (s *Server) handleRotateCode(w http.ResponseWriter, r *http.Request) {
	pw := r.Header.Get("X-Admin-Password")
	if pw == "" || bcrypt.CompareHashAndPassword(s.d.AdminHash, []byte(pw)) != nil {
		hlog.FromRequest(r).Warn().Msg("admin credential rejected")
		writeJSON(w, http.StatusUnauthorized, messageRes{Message: "Invalid admin credential."})
		return
	}

	var req rotateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageRes{Message: "Invalid request body."})
		return
	}
	if err := s.d.Codes.Rotate(req.Code); err != nil {
		writeJSON(w, http.StatusBadRequest, messageRes{Message: "Invalid code: " + err.Error()})
		return
	}

	metrics.CodeRotations.Inc()
	hlog.FromRequest(r).Info().Msg("secret code rotated")
	writeJSON(w, http.StatusOK, messageRes{Message: "Code updated."})
}

// handleLeaderboard returns the fastest successful sessions.
// ?limit=N (default 20, capped at 100).
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, messageRes{Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	rows, err := s.d.Results.Leaderboard(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []results.Entry{}
	}
	writeJSON(w, http.StatusOK, rows)
}
