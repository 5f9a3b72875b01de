package probe

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/llmuptime/internal/config"
	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/errs"
)

func enabled(name string) *config.Provider {
	return &config.Provider{Name: name, Model: "m", TestMessage: "ping"}
}

func TestRun_Success(t *testing.T) {
	p := ProbeFunc(func(ctx context.Context, cfg config.Provider) (string, error) {
		time.Sleep(2 * time.Millisecond)
		return "pong: " + cfg.TestMessage, nil
	})

	res := Run(context.Background(), "openai", enabled("OpenAI"), p)

	assert.Equal(t, "OpenAI", res.Name)
	assert.Equal(t, domain.StatusSuccess, res.Status)
	require.NotNil(t, res.Response)
	assert.Equal(t, "pong: ping", *res.Response)
	assert.Nil(t, res.Error)
	require.NotNil(t, res.ResponseTime)
	assert.GreaterOrEqual(t, *res.ResponseTime, 2.0)
	assert.Equal(t, *res.ResponseTime, math.Round(*res.ResponseTime*100)/100, "rounded to two decimals")
}

func TestRun_Error(t *testing.T) {
	p := ProbeFunc(func(context.Context, config.Provider) (string, error) {
		return "", errors.New("401 Unauthorized: invalid api key")
	})

	res := Run(context.Background(), "claude", enabled("Claude"), p)

	assert.Equal(t, domain.StatusError, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, "401 Unauthorized: invalid api key", *res.Error)
	assert.Nil(t, res.ResponseTime)
	assert.Nil(t, res.Response)
}

type blankErr struct{}

func (blankErr) Error() string { return "" }

func TestRun_BlankErrorStillDescribed(t *testing.T) {
	p := ProbeFunc(func(context.Context, config.Provider) (string, error) { return "", blankErr{} })
	res := Run(context.Background(), "gemini", enabled("Gemini"), p)
	require.NotNil(t, res.Error)
	assert.Equal(t, "probe.blankErr", *res.Error)
}

func TestRun_PanicBecomesError(t *testing.T) {
	p := ProbeFunc(func(context.Context, config.Provider) (string, error) { panic("nil choices") })
	res := Run(context.Background(), "openai", enabled("OpenAI"), p)
	assert.Equal(t, domain.StatusError, res.Status)
	require.NotNil(t, res.Error)
	assert.Contains(t, *res.Error, "nil choices")
}

func TestRun_DisabledMakesNoCall(t *testing.T) {
	called := false
	p := ProbeFunc(func(context.Context, config.Provider) (string, error) {
		called = true
		return "", nil
	})
	off := false

	cases := map[string]*config.Provider{
		"absent":   nil,
		"disabled": {Name: "HF", Enabled: &off},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			res := Run(context.Background(), "huggingface", cfg, p)
			assert.Equal(t, domain.StatusDisabled, res.Status)
			assert.Nil(t, res.ResponseTime)
			assert.Nil(t, res.Error)
			assert.Nil(t, res.Response)
		})
	}
	assert.False(t, called)

	res := Run(context.Background(), "huggingface", nil, p)
	assert.Equal(t, "huggingface", res.Name, "absent config falls back to the key")
}

func TestRun_UnregisteredProbeIsDisabled(t *testing.T) {
	res := Run(context.Background(), "mistral", enabled("Mistral"), nil)
	assert.Equal(t, domain.StatusDisabled, res.Status)
	assert.Equal(t, "Mistral", res.Name)
}

func TestCall_TagsFailures(t *testing.T) {
	cfg := *enabled("OpenAI")

	_, err := call(context.Background(), ProbeFunc(func(context.Context, config.Provider) (string, error) {
		return "", errors.New("429 Too Many Requests")
	}), cfg)
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeProviderCallFailure))
	assert.Equal(t, "429 Too Many Requests", err.Error(), "message is passed through unchanged")

	_, err = call(context.Background(), ProbeFunc(func(context.Context, config.Provider) (string, error) {
		panic("index out of range")
	}), cfg)
	assert.True(t, errs.HasCode(err, errs.CodeProviderCallFailure))
	assert.Contains(t, err.Error(), "index out of range")

	text, err := call(context.Background(), ProbeFunc(func(context.Context, config.Provider) (string, error) {
		return "pong", nil
	}), cfg)
	assert.NoError(t, err)
	assert.Equal(t, "pong", text)
}
