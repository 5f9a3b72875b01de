// Package repotest holds the behaviour every repo.HistoryStore adapter must share.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/errs"
	"github.com/hamed0406/llmuptime/internal/repo"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory returns a fresh, empty store stamping rows with now.
type Factory func(t *testing.T, now func() time.Time) repo.HistoryStore

func Success(provider string, ms float64) domain.Observation {
	return domain.Observation{Provider: provider, Status: domain.StatusSuccess, ResponseTime: &ms}
}

func Failure(provider, msg string) domain.Observation {
	return domain.Observation{Provider: provider, Status: domain.StatusError, Error: &msg}
}

// Run exercises the HistoryStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTripOrdered", func(t *testing.T) { roundTrip(t, newStore) })
	t.Run("HistoryWindow", func(t *testing.T) { historyWindow(t, newStore) })
	t.Run("ReadsAreIdempotent", func(t *testing.T) { idempotentReads(t, newStore) })
	t.Run("StatsRollup", func(t *testing.T) { statsRollup(t, newStore) })
	t.Run("StatsWithoutSuccesses", func(t *testing.T) { statsWithoutSuccesses(t, newStore) })
	t.Run("StatsEmptyWindow", func(t *testing.T) { statsEmptyWindow(t, newStore) })
	t.Run("Prune", func(t *testing.T) { prune(t, newStore) })
	t.Run("ConcurrentRecord", func(t *testing.T) { concurrentRecord(t, newStore) })
	t.Run("ClockStepBack", func(t *testing.T) { clockStepBack(t, newStore) })
	t.Run("RejectsInvalid", func(t *testing.T) { rejectsInvalid(t, newStore) })
}

func start() time.Time { return time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC) }

func roundTrip(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, s.Record(ctx, Success("openai", float64(100+i))))
		require.NoError(t, s.Record(ctx, Failure("claude", "timeout")))
		clock.Advance(time.Minute)
	}
	// same-instant writes keep insertion order
	require.NoError(t, s.Record(ctx, Success("openai", 1)))
	require.NoError(t, s.Record(ctx, Success("openai", 2)))

	h, err := s.History(ctx, repo.Since(clock.Now(), 24))
	require.NoError(t, err)
	require.Len(t, h["openai"], n+2)
	require.Len(t, h["claude"], n)
	assert.NotContains(t, h, "gemini")

	for i := 1; i < len(h["openai"]); i++ {
		assert.False(t, h["openai"][i].Timestamp.Before(h["openai"][i-1].Timestamp), "oldest first")
	}
	first := h["openai"][0]
	assert.Equal(t, domain.StatusSuccess, first.Status)
	require.NotNil(t, first.ResponseTime)
	assert.Equal(t, 100.0, *first.ResponseTime)
	assert.Nil(t, first.Error)
	assert.True(t, first.Timestamp.Equal(start()), "timestamp assigned by the store clock, got %v", first.Timestamp)
	assert.Equal(t, 1.0, *h["openai"][n].ResponseTime)
	assert.Equal(t, 2.0, *h["openai"][n+1].ResponseTime)

	c := h["claude"][0]
	assert.Equal(t, domain.StatusError, c.Status)
	require.NotNil(t, c.Error)
	assert.Equal(t, "timeout", *c.Error)
	assert.Nil(t, c.ResponseTime)
}

func historyWindow(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)

	require.NoError(t, s.Record(ctx, Success("old", 5)))
	clock.Advance(25 * time.Hour)
	require.NoError(t, s.Record(ctx, Success("new", 7)))

	h, err := s.History(ctx, repo.Since(clock.Now(), 24))
	require.NoError(t, err)
	assert.NotContains(t, h, "old")
	assert.Len(t, h["new"], 1)

	h, err = s.History(ctx, repo.Since(clock.Now(), 48))
	require.NoError(t, err)
	assert.Len(t, h["old"], 1)

	// the window is exclusive at the cutoff
	h, err = s.History(ctx, clock.Now())
	require.NoError(t, err)
	assert.Empty(t, h)
}

func idempotentReads(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)
	require.NoError(t, s.Record(ctx, Success("openai", 12.5)))
	require.NoError(t, s.Record(ctx, Failure("gemini", "quota")))

	since := repo.Since(clock.Now(), 24)
	h1, err := s.History(ctx, since)
	require.NoError(t, err)
	h2, err := s.History(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	s1, err := s.Stats(ctx, since)
	require.NoError(t, err)
	s2, err := s.Stats(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func statsRollup(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)

	for _, ms := range []float64{10, 20, 30} {
		require.NoError(t, s.Record(ctx, Success("p", ms)))
	}
	require.NoError(t, s.Record(ctx, Failure("p", "502 Bad Gateway")))
	require.NoError(t, s.Record(ctx, Success("q", 10.004)))
	require.NoError(t, s.Record(ctx, Success("q", 10.0)))
	require.NoError(t, s.Record(ctx, Success("q", 10.0)))

	stats, err := s.Stats(ctx, repo.Since(clock.Now(), 24))
	require.NoError(t, err)

	p := stats["p"]
	assert.Equal(t, int64(4), p.TotalChecks)
	assert.Equal(t, int64(3), p.SuccessCount)
	assert.Equal(t, 75.0, p.UptimePercent)
	require.NotNil(t, p.AvgResponseTime)
	assert.Equal(t, 20.0, *p.AvgResponseTime)
	assert.Equal(t, 10.0, *p.MinResponseTime)
	assert.Equal(t, 30.0, *p.MaxResponseTime)

	q := stats["q"]
	assert.Equal(t, 100.0, q.UptimePercent)
	assert.Equal(t, 10.0, *q.AvgResponseTime, "rounded to two decimals")
	assert.Equal(t, 10.0, *q.MaxResponseTime)
}

func statsWithoutSuccesses(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)
	require.NoError(t, s.Record(ctx, Failure("claude", "401")))
	require.NoError(t, s.Record(ctx, Failure("claude", "401")))

	stats, err := s.Stats(ctx, repo.Since(clock.Now(), 24))
	require.NoError(t, err)
	c := stats["claude"]
	assert.Equal(t, int64(2), c.TotalChecks)
	assert.Equal(t, int64(0), c.SuccessCount)
	assert.Equal(t, 0.0, c.UptimePercent)
	assert.Nil(t, c.AvgResponseTime)
	assert.Nil(t, c.MinResponseTime)
	assert.Nil(t, c.MaxResponseTime)
}

func statsEmptyWindow(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)

	stats, err := s.Stats(ctx, repo.Since(clock.Now(), 24))
	require.NoError(t, err)
	assert.Empty(t, stats)

	require.NoError(t, s.Record(ctx, Success("gemini", 40)))
	clock.Advance(48 * time.Hour)
	require.NoError(t, s.Record(ctx, Success("openai", 40)))

	stats, err = s.Stats(ctx, repo.Since(clock.Now(), 24))
	require.NoError(t, err)
	assert.NotContains(t, stats, "gemini", "no rows in window means no entry")
	assert.Contains(t, stats, "openai")
}

func prune(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(ctx, Success("openai", 1)))
	}
	clock.Advance(24 * time.Hour)
	cutoff := clock.Now()
	require.NoError(t, s.Record(ctx, Success("openai", 2))) // exactly at the cutoff
	clock.Advance(time.Hour)
	require.NoError(t, s.Record(ctx, Failure("openai", "x")))

	deleted, err := s.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	h, err := s.History(ctx, start().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, h["openai"], 2, "rows at or after the cutoff survive")
	assert.Equal(t, 2.0, *h["openai"][0].ResponseTime)

	deleted, err = s.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	again, err := s.History(ctx, start().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, h, again)
}

func concurrentRecord(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)

	const workers, each = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			provider := fmt.Sprintf("p%d", w%2)
			for i := 0; i < each; i++ {
				if err := s.Record(ctx, Success(provider, float64(i))); err != nil {
					t.Errorf("record: %v", err)
					return
				}
				if _, err := s.Stats(ctx, repo.Since(clock.Now(), 1)); err != nil {
					t.Errorf("stats: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	stats, err := s.Stats(ctx, repo.Since(clock.Now(), 1))
	require.NoError(t, err)
	assert.Equal(t, int64(workers*each/2), stats["p0"].TotalChecks)
	assert.Equal(t, int64(workers*each/2), stats["p1"].TotalChecks)
}

func clockStepBack(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)

	require.NoError(t, s.Record(ctx, Success("openai", 1)))
	clock.Advance(-time.Minute)
	require.NoError(t, s.Record(ctx, Success("openai", 2)))

	h, err := s.History(ctx, start().Add(-time.Hour))
	require.NoError(t, err)
	rows := h["openai"]
	require.Len(t, rows, 2)
	assert.Equal(t, 1.0, *rows[0].ResponseTime)
	assert.Equal(t, 2.0, *rows[1].ResponseTime)
	assert.False(t, rows[1].Timestamp.Before(rows[0].Timestamp), "timestamps never go backwards")
}

func rejectsInvalid(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(start())
	s := newStore(t, clock.Now)

	msg := "boom"
	ms := 3.0
	neg := -1.0
	bad := []domain.Observation{
		{Provider: "openai", Status: domain.StatusDisabled},
		{Provider: "openai", Status: domain.StatusChecking},
		{Provider: "openai", Status: domain.StatusSuccess},
		{Provider: "openai", Status: domain.StatusSuccess, ResponseTime: &neg},
		{Provider: "openai", Status: domain.StatusSuccess, ResponseTime: &ms, Error: &msg},
		{Provider: "openai", Status: domain.StatusError},
		{Provider: "openai", Status: domain.StatusError, Error: &msg, ResponseTime: &ms},
	}
	for _, o := range bad {
		err := s.Record(ctx, o)
		require.Error(t, err, "%+v", o)
		assert.True(t, errs.HasCode(err, errs.CodeObservationInvalid))
	}

	h, err := s.History(ctx, start().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, h)
}

// RunAlerts exercises the AlertStore contract against a fresh store.
func RunAlerts(t *testing.T, newStore func(t *testing.T) repo.AlertStore) {
	ctx := context.Background()
	s := newStore(t)

	rec, err := s.GetAlert(ctx, "openai")
	require.NoError(t, err)
	assert.Nil(t, rec, "no record before the first SetAlert")

	require.NoError(t, s.SetAlert(ctx, "openai", domain.StatusError, time.Time{}))
	rec, err = s.GetAlert(ctx, "openai")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "openai", rec.Provider)
	assert.Equal(t, domain.StatusError, rec.LastStatus)
	assert.Nil(t, rec.LastSentAt)

	sent := start()
	require.NoError(t, s.SetAlert(ctx, "openai", domain.StatusSuccess, sent))
	rec, err = s.GetAlert(ctx, "openai")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.StatusSuccess, rec.LastStatus)
	require.NotNil(t, rec.LastSentAt)
	assert.True(t, rec.LastSentAt.Equal(sent), "got %v", rec.LastSentAt)

	other, err := s.GetAlert(ctx, "claude")
	require.NoError(t, err)
	assert.Nil(t, other)
}
