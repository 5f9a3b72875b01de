package probe

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/llmuptime/internal/config"
	"github.com/hamed0406/llmuptime/internal/domain"
)

// trustedServer starts a TLS server and writes its certificate to a PEM file
// usable as ca_file.
func trustedServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, string) {
	t.Helper()
	ts := httptest.NewTLSServer(h)
	t.Cleanup(ts.Close)

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	require.NoError(t, os.WriteFile(caFile, block, 0o600))
	return ts, caFile
}

func TestOpenAI_SystemAndUserMessages(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string
	ts, caFile := trustedServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"pong"}}]}`))
	})

	cfg := &config.Provider{
		Name: "OpenAI", BaseURL: ts.URL + "/v1/", APIKey: "sk-test",
		Model: "gpt-test", TestMessage: "ping", CAFile: caFile,
	}
	res := Run(context.Background(), "openai", cfg, OpenAI{SystemPrompt: "You are a helpful assistant."})

	require.Equal(t, domain.StatusSuccess, res.Status, "error: %v", res.Error)
	assert.Equal(t, "pong", *res.Response)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "ping", got.Messages[1].Content)
}

func TestOpenAI_UserOnlyWithoutSystemPrompt(t *testing.T) {
	var roles []string
	ts, caFile := trustedServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, m := range body.Messages {
			roles = append(roles, m.Role)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi"}}]}`))
	})

	cfg := &config.Provider{Name: "HF", BaseURL: ts.URL + "/v1/", APIKey: "hf", Model: "m", TestMessage: "ping", CAFile: caFile}
	res := Run(context.Background(), "huggingface", cfg, OpenAI{})
	require.Equal(t, domain.StatusSuccess, res.Status, "error: %v", res.Error)
	assert.Equal(t, []string{"user"}, roles)
}

func TestOpenAI_NoChoicesIsError(t *testing.T) {
	ts, caFile := trustedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	})
	cfg := &config.Provider{Name: "OpenAI", BaseURL: ts.URL + "/v1/", APIKey: "k", Model: "m", TestMessage: "ping", CAFile: caFile}
	res := Run(context.Background(), "openai", cfg, OpenAI{})
	require.Equal(t, domain.StatusError, res.Status)
	assert.Contains(t, *res.Error, "no choices")
}

func TestOpenAI_UpstreamErrorNotRetried(t *testing.T) {
	calls := 0
	ts, caFile := trustedServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})
	cfg := &config.Provider{Name: "OpenAI", BaseURL: ts.URL + "/v1/", APIKey: "k", Model: "m", TestMessage: "ping", CAFile: caFile}
	res := Run(context.Background(), "openai", cfg, OpenAI{})
	require.Equal(t, domain.StatusError, res.Status)
	assert.NotEmpty(t, *res.Error)
	assert.Nil(t, res.ResponseTime)
	assert.Equal(t, 1, calls, "a failed attempt is terminal")
}

func TestOpenAI_UntrustedCertificateFails(t *testing.T) {
	ts, _ := trustedServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request should not reach the server")
	})
	cfg := &config.Provider{Name: "OpenAI", BaseURL: ts.URL + "/v1/", APIKey: "k", Model: "m", TestMessage: "ping"}
	res := Run(context.Background(), "openai", cfg, OpenAI{})
	require.Equal(t, domain.StatusError, res.Status)
	assert.Contains(t, strings.ToLower(*res.Error), "certificate")
}

func TestAnthropic_FirstTextBlock(t *testing.T) {
	var body struct {
		MaxTokens int `json:"max_tokens"`
		Messages  []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	var path, key string
	ts, caFile := trustedServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"pong"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":3,"output_tokens":1}}`))
	})

	cfg := &config.Provider{Name: "Claude", BaseURL: ts.URL, APIKey: "sk-ant", Model: "claude-test", TestMessage: "ping", CAFile: caFile}
	res := Run(context.Background(), "claude", cfg, Anthropic{MaxTokens: 1024})

	require.Equal(t, domain.StatusSuccess, res.Status, "error: %v", res.Error)
	assert.Equal(t, "pong", *res.Response)
	assert.Equal(t, "/v1/messages", path)
	assert.Equal(t, "sk-ant", key)
	assert.Equal(t, 1024, body.MaxTokens)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "user", body.Messages[0].Role)
}

func TestGemini_GenerateContent(t *testing.T) {
	var path string
	ts, caFile := trustedServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"pong"}]},"finishReason":"STOP"}]}`))
	})

	cfg := &config.Provider{Name: "Gemini", BaseURL: ts.URL + "/", APIKey: "g-key", Model: "gemini-test", TestMessage: "ping", CAFile: caFile}
	res := Run(context.Background(), "gemini", cfg, Gemini{})

	require.Equal(t, domain.StatusSuccess, res.Status, "error: %v", res.Error)
	assert.Equal(t, "pong", *res.Response)
	assert.Contains(t, path, "gemini-test:generateContent")
}

func TestHTTPClient_BadCAFile(t *testing.T) {
	caFile := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(caFile, []byte("not a cert"), 0o600))

	_, err := HTTPClient(config.Provider{CAFile: caFile})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PEM certificates")

	_, err = HTTPClient(config.Provider{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
	require.Error(t, err)
}
