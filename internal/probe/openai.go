package probe

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hamed0406/llmuptime/internal/config"
)

// OpenAI probes any OpenAI-compatible chat completions endpoint. With an
// empty SystemPrompt only the user message is sent.
type OpenAI struct {
	SystemPrompt string
}

func (o OpenAI) Call(ctx context.Context, cfg config.Provider) (string, error) {
	hc, err := HTTPClient(cfg)
	if err != nil {
		return "", err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openaisdk.NewClient(opts...)

	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if o.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(o.SystemPrompt))
	}
	msgs = append(msgs, openaisdk.UserMessage(cfg.TestMessage))

	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(cfg.Model),
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("malformed response: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
