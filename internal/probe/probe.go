package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/llmuptime/internal/config"
	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/errs"
)

// Probe sends one fixed test message to a provider and returns the primary
// text of the answer. Implementations must not retry.
type Probe interface {
	Call(ctx context.Context, cfg config.Provider) (string, error)
}

// ProbeFunc adapts a plain function to Probe.
type ProbeFunc func(ctx context.Context, cfg config.Provider) (string, error)

func (f ProbeFunc) Call(ctx context.Context, cfg config.Provider) (string, error) {
	return f(ctx, cfg)
}

// Run probes one provider and folds the outcome into a uniform result.
// A nil or disabled cfg, or a nil p, yields a disabled result without any
// network call.
func Run(ctx context.Context, key string, cfg *config.Provider, p Probe) domain.ProviderResult {
	if cfg == nil || !cfg.IsEnabled() || p == nil {
		name := key
		if cfg != nil && cfg.Name != "" {
			name = cfg.Name
		}
		return domain.ProviderResult{Name: name, Status: domain.StatusDisabled}
	}

	res := domain.ProviderResult{Name: cfg.Name, Status: domain.StatusChecking}

	start := time.Now()
	text, err := call(ctx, p, *cfg)
	end := time.Now()

	if err != nil {
		msg := describe(err)
		res.Status = domain.StatusError
		res.Error = &msg
		return res
	}

	elapsed := domain.MillisBetween(start, end)
	res.Status = domain.StatusSuccess
	res.Response = &text
	res.ResponseTime = &elapsed
	return res
}

// call shields the caller from a panicking SDK. Failures carry
// CodeProviderCallFailure.
func call(ctx context.Context, p Probe, cfg config.Provider) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panic: %v", r)
		}
		err = errs.Wrap(err, errs.CodeProviderCallFailure)
	}()
	return p.Call(ctx, cfg)
}

func describe(err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	if inner := errors.Unwrap(err); inner != nil {
		return fmt.Sprintf("%T", inner)
	}
	return fmt.Sprintf("%T", err)
}
