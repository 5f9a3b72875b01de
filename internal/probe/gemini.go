package probe

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/hamed0406/llmuptime/internal/config"
)

// Gemini probes the Gemini API through the genai SDK.
type Gemini struct{}

func (Gemini) Call(ctx context.Context, cfg config.Provider) (string, error) {
	hc, err := HTTPClient(cfg)
	if err != nil {
		return "", err
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, cfg.Model, genai.Text(cfg.TestMessage), nil)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("malformed response: no text candidates")
	}
	return text, nil
}
