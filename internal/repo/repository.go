package repo

import (
	"context"
	"math"
	"time"

	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/errs"
)

const (
	DefaultHistoryHours  = 24
	DefaultRetentionDays = 7
)

// HistoryStore is the append-only log of probe observations.
// Ports implemented by each storage adapter.
type HistoryStore interface {
	// Record appends o; the store assigns the timestamp.
	Record(ctx context.Context, o domain.Observation) error
	// History returns rows newer than since, grouped by provider, oldest first.
	History(ctx context.Context, since time.Time) (map[string][]domain.HistoryEntry, error)
	// Stats rolls up rows newer than since per provider.
	Stats(ctx context.Context, since time.Time) (map[string]domain.UptimeStats, error)
	// Prune deletes rows older than before and reports how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Longest windows a time.Duration can express. Larger requests are capped
// so the cutoff never wraps into the future.
const (
	MaxWindowHours = int(math.MaxInt64 / int64(time.Hour))
	MaxWindowDays  = MaxWindowHours / 24
)

// Since is the cutoff for a trailing window of hours ending at now.
func Since(now time.Time, hours int) time.Time {
	if hours <= 0 {
		hours = DefaultHistoryHours
	}
	if hours > MaxWindowHours {
		hours = MaxWindowHours
	}
	return now.Add(-time.Duration(hours) * time.Hour)
}

// Before is the retention cutoff for a window of days ending at now.
func Before(now time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	if days > MaxWindowDays {
		days = MaxWindowDays
	}
	return now.AddDate(0, 0, -days)
}

// Validate enforces the stored-row invariant: success rows carry a
// non-negative response time and no error, error rows carry an error and no
// response time. Other statuses are never stored.
func Validate(o domain.Observation) error {
	switch o.Status {
	case domain.StatusSuccess:
		if o.ResponseTime == nil || *o.ResponseTime < 0 || o.Error != nil {
			return errs.New(errs.CodeObservationInvalid, "success needs a non-negative response_time and no error", "provider", o.Provider)
		}
	case domain.StatusError:
		if o.Error == nil || o.ResponseTime != nil {
			return errs.New(errs.CodeObservationInvalid, "error needs an error message and no response_time", "provider", o.Provider)
		}
	default:
		return errs.New(errs.CodeObservationInvalid, "status is not persisted", "provider", o.Provider, "status", string(o.Status))
	}
	return nil
}

// Store is a backend that keeps both the history and the alert state.
type Store interface {
	HistoryStore
	AlertStore
}
