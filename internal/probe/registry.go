package probe

import (
	"context"

	"go.uber.org/zap"

	"github.com/hamed0406/llmuptime/internal/config"
	"github.com/hamed0406/llmuptime/internal/domain"
)

// Outcome pairs a provider key with its result.
type Outcome struct {
	Key    string
	Result domain.ProviderResult
}

// Registry maps provider keys to probes and runs them in registration order.
type Registry struct {
	logger *zap.Logger
	keys   []string
	probes map[string]Probe
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger, probes: make(map[string]Probe)}
}

// Register adds or replaces the probe for key. Re-registering keeps the
// original position.
func (r *Registry) Register(key string, p Probe) *Registry {
	if _, ok := r.probes[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.probes[key] = p
	return r
}

func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// RunAll probes every registered provider one after another. Keys missing
// from cfgs come back disabled; configured keys with no probe are logged and
// skipped.
func (r *Registry) RunAll(ctx context.Context, cfgs config.Providers) []Outcome {
	for key, err := range cfgs.Invalid {
		r.logger.Warn("provider_config_invalid", zap.String("provider", key), zap.Error(err))
	}
	for _, key := range cfgs.Keys() {
		if _, ok := r.probes[key]; !ok {
			r.logger.Warn("provider_unregistered", zap.String("provider", key), zap.Strings("known", r.keys))
		}
	}

	out := make([]Outcome, 0, len(r.keys))
	for _, key := range r.keys {
		res := Run(ctx, key, cfgs.Lookup(key), r.probes[key])
		out = append(out, Outcome{Key: key, Result: res})

		fields := []zap.Field{
			zap.String("provider", key),
			zap.String("status", string(res.Status)),
		}
		if res.ResponseTime != nil {
			fields = append(fields, zap.Float64("response_time_ms", *res.ResponseTime))
		}
		if res.Error != nil {
			fields = append(fields, zap.String("error", *res.Error))
		}
		r.logger.Info("probe_result", fields...)
	}
	return out
}

// Defaults returns the built-in provider roster.
func Defaults(logger *zap.Logger) *Registry {
	return NewRegistry(logger).
		Register("openai", OpenAI{SystemPrompt: "You are a helpful assistant."}).
		Register("huggingface", OpenAI{}).
		Register("claude", Anthropic{MaxTokens: 1024}).
		Register("gemini", Gemini{})
}
