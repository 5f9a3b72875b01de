package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/errs"
	"github.com/hamed0406/llmuptime/internal/repo"
)

var (
	_ repo.HistoryStore = (*Store)(nil)
	_ repo.AlertStore   = (*Store)(nil)
)

// tsLayout is fixed width so stored timestamps order lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Store keeps the observation log in a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "creating data dir %s", dir)
		}
	}

	// _txlock=immediate takes the write lock at BEGIN so busy_timeout applies to Record.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "opening sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "pinging sqlite db")
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "migrating status_history")
	}
	return &Store{db: db, now: time.Now}, nil
}

// WithClock replaces the clock used to stamp new rows.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS status_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp     TEXT NOT NULL,
	provider_name TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_time REAL,
	error         TEXT
);

CREATE INDEX IF NOT EXISTS idx_status_history_timestamp ON status_history(timestamp);
CREATE INDEX IF NOT EXISTS idx_status_history_provider_timestamp ON status_history(provider_name, timestamp);

CREATE TABLE IF NOT EXISTS provider_alerts (
	provider_name TEXT PRIMARY KEY,
	last_status   TEXT NOT NULL,
	last_sent_at  TEXT
);
`
	_, err := db.Exec(ddl)
	return err
}

func (s *Store) Record(ctx context.Context, o domain.Observation) error {
	if err := repo.Validate(o); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "recording %s", o.Provider)
	}
	defer func() { _ = tx.Rollback() }()

	// never stamp a row older than the newest one already stored
	_, err = tx.ExecContext(ctx, `
INSERT INTO status_history (timestamp, provider_name, status, response_time, error)
VALUES (max(?, coalesce((SELECT max(timestamp) FROM status_history), '')), ?, ?, ?, ?)`,
		formatTime(s.now()), o.Provider, string(o.Status), o.ResponseTime, o.Error)
	if err != nil {
		return errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "recording %s", o.Provider)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "committing %s", o.Provider)
	}
	return nil
}

func (s *Store) History(ctx context.Context, since time.Time) (map[string][]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT timestamp, provider_name, status, response_time, error
  FROM status_history
 WHERE timestamp > ?
 ORDER BY timestamp ASC, id ASC`, formatTime(since))
	if err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "querying history")
	}
	defer rows.Close()

	out := make(map[string][]domain.HistoryEntry)
	for rows.Next() {
		var (
			ts, provider, status string
			rt                   sql.NullFloat64
			msg                  sql.NullString
		)
		if err := rows.Scan(&ts, &provider, &status, &rt, &msg); err != nil {
			return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "scanning history")
		}
		at, err := parseTime(ts)
		if err != nil {
			return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "parsing timestamp %q", ts)
		}
		out[provider] = append(out[provider], domain.HistoryEntry{
			Timestamp:    at,
			Status:       domain.Status(status),
			ResponseTime: floatPtr(rt),
			Error:        stringPtr(msg),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "iterating history")
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context, since time.Time) (map[string]domain.UptimeStats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT provider_name,
       count(*),
       sum(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
       avg(CASE WHEN status = 'success' THEN response_time END),
       min(CASE WHEN status = 'success' THEN response_time END),
       max(CASE WHEN status = 'success' THEN response_time END)
  FROM status_history
 WHERE timestamp > ?
 GROUP BY provider_name`, formatTime(since))
	if err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "querying stats")
	}
	defer rows.Close()

	out := make(map[string]domain.UptimeStats)
	for rows.Next() {
		var (
			provider       string
			total, success int64
			avg, lo, hi    sql.NullFloat64
		)
		if err := rows.Scan(&provider, &total, &success, &avg, &lo, &hi); err != nil {
			return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "scanning stats")
		}
		out[provider] = domain.UptimeStats{
			TotalChecks:     total,
			SuccessCount:    success,
			UptimePercent:   domain.UptimePercent(success, total),
			AvgResponseTime: roundedPtr(avg),
			MinResponseTime: roundedPtr(lo),
			MaxResponseTime: roundedPtr(hi),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "iterating stats")
	}
	return out, nil
}

func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM status_history WHERE timestamp < ?`, formatTime(before))
	if err != nil {
		return 0, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "pruning history")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "counting pruned rows")
	}
	return n, nil
}

func (s *Store) GetAlert(ctx context.Context, provider string) (*repo.AlertRecord, error) {
	var (
		status string
		sent   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_status, last_sent_at FROM provider_alerts WHERE provider_name = ?`, provider).
		Scan(&status, &sent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "reading alert state for %s", provider)
	}
	r := &repo.AlertRecord{Provider: provider, LastStatus: domain.Status(status)}
	if sent.Valid {
		at, err := parseTime(sent.String)
		if err != nil {
			return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "parsing last_sent_at %q", sent.String)
		}
		r.LastSentAt = &at
	}
	return r, nil
}

func (s *Store) SetAlert(ctx context.Context, provider string, status domain.Status, sentAt time.Time) error {
	var sent *string
	if !sentAt.IsZero() {
		v := formatTime(sentAt)
		sent = &v
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO provider_alerts (provider_name, last_status, last_sent_at)
VALUES (?, ?, ?)
ON CONFLICT (provider_name)
DO UPDATE SET last_status = excluded.last_status, last_sent_at = excluded.last_sent_at`,
		provider, string(status), sent)
	if err != nil {
		return errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "writing alert state for %s", provider)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing sqlite db: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(tsLayout, s) }

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func roundedPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := domain.Round2(v.Float64)
	return &f
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
