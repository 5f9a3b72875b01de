// Package status runs an on-demand check of every configured provider and
// records the outcomes.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/llmuptime/internal/config"
	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/errs"
	"github.com/hamed0406/llmuptime/internal/probe"
	"github.com/hamed0406/llmuptime/internal/repo"
)

// Observer is told about every completed check; the alerter implements it.
type Observer interface {
	Observe(ctx context.Context, outcomes []probe.Outcome) error
}

// Report is the combined result of one status check.
type Report struct {
	CheckID   string
	Timestamp time.Time
	Outcomes  []probe.Outcome
}

// MarshalJSON renders the flat wire shape: one member per provider key in
// probe order, then "timestamp".
func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, o := range r.Outcomes {
		k, err := json.Marshal(o.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(o.Result)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		buf.WriteByte(',')
	}
	ts, err := json.Marshal(r.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	buf.WriteString(`"timestamp":`)
	buf.Write(ts)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Service struct {
	ProvidersPath string
	Registry      *probe.Registry
	Store         repo.HistoryStore
	Observer      Observer
	Logger        *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewService(providersPath string, reg *probe.Registry, store repo.HistoryStore, obs Observer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ProvidersPath: providersPath,
		Registry:      reg,
		Store:         store,
		Observer:      obs,
		Logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Check reloads the provider config, probes every provider in order and
// records each success or error. Every provider is probed and recorded even
// when some writes fail; those failures come back combined alongside the
// full report.
func (s *Service) Check(ctx context.Context) (Report, error) {
	cfgs, err := config.LoadProviders(s.ProvidersPath)
	if err != nil {
		s.Logger.Error("status_check_config_error", zap.String("path", s.ProvidersPath), zap.Error(err))
		return Report{}, err
	}

	report := Report{CheckID: s.newID()}
	log := s.Logger.With(zap.String("check_id", report.CheckID))

	report.Outcomes = s.Registry.RunAll(ctx, cfgs)

	var writeErrs error
	recorded := 0
	for _, o := range report.Outcomes {
		if !o.Result.Status.Persistable() {
			continue
		}
		if err := s.Store.Record(ctx, o.Result.Observation(o.Key)); err != nil {
			log.Error("record_error", zap.String("provider", o.Key), zap.Error(err))
			writeErrs = multierr.Append(writeErrs, err)
			continue
		}
		recorded++
	}

	if s.Observer != nil {
		if err := s.Observer.Observe(ctx, report.Outcomes); err != nil {
			log.Warn("alert_state_error", zap.Error(err))
		}
	}

	report.Timestamp = s.now().UTC()
	log.Info("status_check",
		zap.Int("providers", len(report.Outcomes)),
		zap.Int("recorded", recorded),
		zap.Int("record_errors", len(multierr.Errors(writeErrs))),
	)

	if writeErrs != nil {
		return report, errs.Wrapf(writeErrs, errs.CodeStoreDatabaseFailure, "recording status check %s", report.CheckID)
	}
	return report, nil
}

// History returns the recorded rows of the trailing window of hours.
func (s *Service) History(ctx context.Context, hours int) (map[string][]domain.HistoryEntry, error) {
	return s.Store.History(ctx, repo.Since(s.now(), hours))
}

// Stats rolls up the trailing window of hours per provider.
func (s *Service) Stats(ctx context.Context, hours int) (map[string]domain.UptimeStats, error) {
	return s.Store.Stats(ctx, repo.Since(s.now(), hours))
}

// Prune deletes rows older than days and returns how many went.
func (s *Service) Prune(ctx context.Context, days int) (int64, error) {
	before := repo.Before(s.now(), days)
	n, err := s.Store.Prune(ctx, before)
	if err != nil {
		return 0, err
	}
	s.Logger.Info("prune_done", zap.Time("before", before), zap.Int64("deleted", n), zap.String("trigger", "api"))
	return n, nil
}
