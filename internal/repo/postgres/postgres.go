package postgres

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/errs"
	"github.com/hamed0406/llmuptime/internal/repo"
)

var (
	_ repo.HistoryStore = (*Store)(nil)
	_ repo.AlertStore   = (*Store)(nil)
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	now  func() time.Time
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "pgxpool.New")
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "ping")
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "apply schema")
	}
	log.Info("store_open", zap.String("driver", "postgres"))
	return &Store{pool: pool, log: log, now: time.Now}, nil
}

// WithClock replaces the clock used to stamp new rows.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- HistoryStore ----

func (s *Store) Record(ctx context.Context, o domain.Observation) error {
	if err := repo.Validate(o); err != nil {
		return err
	}
	// TIMESTAMPTZ keeps microseconds
	at := s.now().UTC().Truncate(time.Microsecond)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO status_history (timestamp, provider_name, status, response_time, error)
		 VALUES (GREATEST($1::timestamptz, COALESCE((SELECT max(timestamp) FROM status_history), '-infinity'::timestamptz)),
		         $2, $3, $4, $5)`,
		at, o.Provider, string(o.Status), o.ResponseTime, o.Error,
	)
	if err != nil {
		return errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "insert %s", o.Provider)
	}
	return nil
}

func (s *Store) History(ctx context.Context, since time.Time) (map[string][]domain.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, provider_name, status, response_time, error
		   FROM status_history
		  WHERE timestamp > $1
		  ORDER BY timestamp ASC, id ASC`, since)
	if err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "history")
	}
	defer rows.Close()

	out := make(map[string][]domain.HistoryEntry)
	for rows.Next() {
		var (
			at       time.Time
			provider string
			status   string
			rt       *float64
			msg      *string
		)
		if err := rows.Scan(&at, &provider, &status, &rt, &msg); err != nil {
			return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "scan history")
		}
		out[provider] = append(out[provider], domain.HistoryEntry{
			Timestamp:    at.UTC(),
			Status:       domain.Status(status),
			ResponseTime: rt,
			Error:        msg,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "history rows")
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context, since time.Time) (map[string]domain.UptimeStats, error) {
	rows, err := s.pool.Query(ctx, `
SELECT provider_name,
       count(*),
       count(*) FILTER (WHERE status = 'success'),
       avg(response_time) FILTER (WHERE status = 'success'),
       min(response_time) FILTER (WHERE status = 'success'),
       max(response_time) FILTER (WHERE status = 'success')
  FROM status_history
 WHERE timestamp > $1
 GROUP BY provider_name`, since)
	if err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "stats")
	}
	defer rows.Close()

	out := make(map[string]domain.UptimeStats)
	for rows.Next() {
		var (
			provider       string
			total, success int64
			avg, lo, hi    *float64
		)
		if err := rows.Scan(&provider, &total, &success, &avg, &lo, &hi); err != nil {
			return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "scan stats")
		}
		out[provider] = domain.UptimeStats{
			TotalChecks:     total,
			SuccessCount:    success,
			UptimePercent:   domain.UptimePercent(success, total),
			AvgResponseTime: round(avg),
			MinResponseTime: round(lo),
			MaxResponseTime: round(hi),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "stats rows")
	}
	return out, nil
}

func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM status_history WHERE timestamp < $1`, before)
	if err != nil {
		return 0, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "prune")
	}
	return tag.RowsAffected(), nil
}

// ---- AlertStore ----

func (s *Store) GetAlert(ctx context.Context, provider string) (*repo.AlertRecord, error) {
	const q = `SELECT last_status, last_sent_at FROM provider_alerts WHERE provider_name=$1`
	r := repo.AlertRecord{Provider: provider}
	var (
		status   string
		lastSent *time.Time
	)
	err := s.pool.QueryRow(ctx, q, provider).Scan(&status, &lastSent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "get alert %s", provider)
	}
	r.LastStatus = domain.Status(status)
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, provider string, status domain.Status, sentAt time.Time) error {
	const q = `
		INSERT INTO provider_alerts (provider_name, last_status, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (provider_name)
		DO UPDATE SET last_status=EXCLUDED.last_status, last_sent_at=EXCLUDED.last_sent_at
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	if _, err := s.pool.Exec(ctx, q, provider, string(status), ts); err != nil {
		return errs.Wrapf(err, errs.CodeStoreDatabaseFailure, "set alert %s", provider)
	}
	return nil
}

func round(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := domain.Round2(*v)
	return &r
}
