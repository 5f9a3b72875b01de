package memory

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/repo"
)

var (
	_ repo.HistoryStore = (*Store)(nil)
	_ repo.AlertStore   = (*Store)(nil)
)

type Store struct {
	mu     sync.RWMutex
	rows   []domain.Observation
	next   int64
	now    func() time.Time
	alerts map[string]repo.AlertRecord
}

func New() *Store {
	return &Store{
		rows:   make([]domain.Observation, 0, 128),
		now:    time.Now,
		alerts: make(map[string]repo.AlertRecord),
	}
}

// WithClock replaces the clock used to stamp new rows.
func (m *Store) WithClock(now func() time.Time) *Store {
	m.now = now
	return m
}

func (m *Store) Record(ctx context.Context, o domain.Observation) error {
	if err := repo.Validate(o); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	o.ID = m.next
	o.Timestamp = m.now().UTC()
	// keep insertion order non-decreasing even if the clock steps back
	if n := len(m.rows); n > 0 && o.Timestamp.Before(m.rows[n-1].Timestamp) {
		o.Timestamp = m.rows[n-1].Timestamp
	}
	m.rows = append(m.rows, o)
	return nil
}

func (m *Store) History(ctx context.Context, since time.Time) (map[string][]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]domain.HistoryEntry)
	for _, o := range m.rows {
		if o.Timestamp.After(since) {
			out[o.Provider] = append(out[o.Provider], o.Entry())
		}
	}
	return out, nil
}

func (m *Store) Stats(ctx context.Context, since time.Time) (map[string]domain.UptimeStats, error) {
	type acc struct {
		total, success int64
		sum, min, max  float64
		timed          int64
	}

	m.mu.RLock()
	state := make(map[string]*acc)
	for _, o := range m.rows {
		if !o.Timestamp.After(since) {
			continue
		}
		a := state[o.Provider]
		if a == nil {
			a = &acc{min: math.Inf(1), max: math.Inf(-1)}
			state[o.Provider] = a
		}
		a.total++
		if o.Status != domain.StatusSuccess {
			continue
		}
		a.success++
		if o.ResponseTime != nil {
			v := *o.ResponseTime
			a.timed++
			a.sum += v
			a.min = math.Min(a.min, v)
			a.max = math.Max(a.max, v)
		}
	}
	m.mu.RUnlock()

	out := make(map[string]domain.UptimeStats, len(state))
	for provider, a := range state {
		s := domain.UptimeStats{
			TotalChecks:   a.total,
			SuccessCount:  a.success,
			UptimePercent: domain.UptimePercent(a.success, a.total),
		}
		if a.timed > 0 {
			avg := domain.Round2(a.sum / float64(a.timed))
			lo, hi := domain.Round2(a.min), domain.Round2(a.max)
			s.AvgResponseTime, s.MinResponseTime, s.MaxResponseTime = &avg, &lo, &hi
		}
		out[provider] = s
	}
	return out, nil
}

func (m *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rows[:0]
	var deleted int64
	for _, o := range m.rows {
		if o.Timestamp.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, o)
	}
	m.rows = kept
	return deleted, nil
}

func (m *Store) GetAlert(ctx context.Context, provider string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[provider]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) SetAlert(ctx context.Context, provider string, status domain.Status, sentAt time.Time) error {
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	m.mu.Lock()
	m.alerts[provider] = repo.AlertRecord{Provider: provider, LastStatus: status, LastSentAt: ts}
	m.mu.Unlock()
	return nil
}

func (m *Store) Close() error { return nil }
