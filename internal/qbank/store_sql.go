package qbank

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLStore implements QuestionRepo, SessionStore, ProgressLedger,
// CategoryRepo and FeedbackRepo over database/sql. It works unchanged on
// sqlite (modernc) and postgres (pgx stdlib); both accept $n placeholders.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"

	sessionTTL time.Duration
	retention  time.Duration

	now func() time.Time
}

type SQLStoreOption func(*SQLStore)

// WithSessionTTL overrides the fixed session lifetime (default 24h).
func WithSessionTTL(d time.Duration) SQLStoreOption {
	return func(s *SQLStore) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithRetention overrides how long inactive sessions are kept before the
// sweep hard-deletes them (default 7 days).
func WithRetention(d time.Duration) SQLStoreOption {
	return func(s *SQLStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// withClock pins time for tests.
func withClock(now func() time.Time) SQLStoreOption {
	return func(s *SQLStore) { s.now = now }
}

func NewSQLStore(db *sql.DB, driver string, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{
		db:         db,
		driver:     driver,
		sessionTTL: 24 * time.Hour,
		retention:  7 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// placeholders renders "$start,$start+1,..." for dynamic IN clauses.
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
