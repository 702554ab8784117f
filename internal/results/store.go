// internal/results/store.go
//
// Results ledger queries.
//   - Record:      one row per finished session (idempotent on token id).
//   - Leaderboard: successful sessions, fastest first.

package results

import (
	"context"
	"database/sql"
	"time"

	"github.com/samber/lo"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Result is one finished session.
type Result struct {
	TokenID      string
	Subject      string
	Outcome      string // success | exhausted | expired
	AttemptsUsed int
	ElapsedMs    int64
	FinishedAt   time.Time
}

// Entry is a leaderboard row.
type Entry struct {
	Subject      string    `json:"subject"`
	AttemptsUsed int       `json:"attemptsUsed"`
	ElapsedMs    int64     `json:"elapsedMs"`
	FinishedAt   time.Time `json:"finishedAt"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Record inserts r. A second record for the same token is ignored.
func (s *Store) Record(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO results(token_id, subject, outcome, attempts_used, elapsed_ms, finished_at)
		VALUES(?,?,?,?,?,?)`,
		r.TokenID, r.Subject, r.Outcome, r.AttemptsUsed, r.ElapsedMs, r.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Leaderboard returns winners, fastest first, then fewest attempts.
// limit is clamped to 1..100; 0 means 20.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = lo.Min([]int{limit, maxLimit})

	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, attempts_used, elapsed_ms, finished_at
		FROM results
		WHERE outcome = 'success'
		ORDER BY elapsed_ms ASC, attempts_used ASC, finished_at ASC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var finished string
		if err := rows.Scan(&e.Subject, &e.AttemptsUsed, &e.ElapsedMs, &finished); err != nil {
			return nil, err
		}
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
