package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/notify"
	"github.com/hamed0406/llmuptime/internal/probe"
	"github.com/hamed0406/llmuptime/internal/repo"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
}

// Alerter turns success/error transitions from status checks into
// notifications. Disabled providers are ignored.
type Alerter struct {
	alertDB  repo.AlertStore
	notifier notify.Notifier
	cfg      AlerterConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewAlerter(alertDB repo.AlertStore, notifier notify.Notifier, cfg AlerterConfig, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		alertDB:  alertDB,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Observe compares each outcome with the stored state and sends alerts.
// Sending is best effort; only alert-state storage errors are returned.
func (a *Alerter) Observe(ctx context.Context, outcomes []probe.Outcome) error {
	var errs error
	now := a.now()

	for _, o := range outcomes {
		r := o.Result
		if !r.Status.Persistable() {
			continue
		}
		up := r.Status == domain.StatusSuccess

		rec, err := a.alertDB.GetAlert(ctx, o.Key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		// A provider seen for the first time only alerts when it is down.
		stateChanged := (rec == nil && !up) || (rec != nil && rec.LastStatus != r.Status)

		// Cooldown only matters for DOWN alerts (suppresses noisy flapping).
		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
		}

		downAlert := stateChanged && !up && cooled
		recoveryAlert := stateChanged && up && a.cfg.AlertOnRecovery

		if downAlert || recoveryAlert {
			title, text := message(o.Key, r, now)
			if err := a.notifier.Send(ctx, title, text); err != nil {
				a.logger.Warn("alert_send_error", zap.String("provider", o.Key), zap.Error(err))
			}
			errs = multierr.Append(errs, a.alertDB.SetAlert(ctx, o.Key, r.Status, now))
			continue
		}

		// Keep the previous send time so the cooldown still applies.
		if rec == nil || stateChanged {
			var sent time.Time
			if rec != nil && rec.LastSentAt != nil {
				sent = *rec.LastSentAt
			}
			errs = multierr.Append(errs, a.alertDB.SetAlert(ctx, o.Key, r.Status, sent))
		}
	}
	return errs
}

func message(key string, r domain.ProviderResult, at time.Time) (string, string) {
	title := "🔴 Provider DOWN"
	if r.Status == domain.StatusSuccess {
		title = "🟢 Provider RECOVERED"
	}

	latencyTxt := "n/a"
	if r.ResponseTime != nil {
		latencyTxt = fmt.Sprintf("%.0f ms", *r.ResponseTime)
	}
	errTxt := "none"
	if r.Error != nil {
		errTxt = *r.Error
	}

	text := fmt.Sprintf(
		"Provider: %s (%s)\nLatency: %s\nError: %s\nChecked: %s",
		r.Name, key, latencyTxt, errTxt, at.UTC().Format(time.RFC3339),
	)
	return title, text
}
