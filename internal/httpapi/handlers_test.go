package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/llmuptime/internal/config"
	"github.com/hamed0406/llmuptime/internal/domain"
	"github.com/hamed0406/llmuptime/internal/errs"
	apimw "github.com/hamed0406/llmuptime/internal/httpapi/middleware"
	"github.com/hamed0406/llmuptime/internal/probe"
	"github.com/hamed0406/llmuptime/internal/repo"
	"github.com/hamed0406/llmuptime/internal/repo/memory"
	"github.com/hamed0406/llmuptime/internal/status"
)

// ---- test helpers ----

const testProviders = `
models:
  openai:
    name: OpenAI
    model: gpt-test
    test_message: ping
  claude:
    name: Claude
    model: claude-test
    test_message: ping
`

func fakeRegistry() *probe.Registry {
	return probe.NewRegistry(zap.NewNop()).
		Register("openai", probe.ProbeFunc(func(ctx context.Context, cfg config.Provider) (string, error) {
			return "pong", nil
		})).
		Register("claude", probe.ProbeFunc(func(ctx context.Context, cfg config.Provider) (string, error) {
			return "", errors.New("overloaded")
		})).
		Register("gemini", probe.ProbeFunc(func(ctx context.Context, cfg config.Provider) (string, error) {
			return "never called", nil
		}))
}

func setupRouter(t *testing.T, store repo.HistoryStore, providers string) http.Handler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if providers != "" {
		require.NoError(t, os.WriteFile(path, []byte(providers), 0o600))
	}
	svc := status.NewService(path, fakeRegistry(), store, nil, zap.NewNop())
	srv := NewServer(zap.NewNop(), svc)

	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	return srv.Router(keys, nil, 10_000, 10_000)
}

func do(t *testing.T, h http.Handler, method, target, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---- tests ----

func TestHealthz(t *testing.T) {
	rec := do(t, setupRouter(t, memory.New(), testProviders), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatus_ReturnsFlatResultsAndRecords(t *testing.T) {
	store := memory.New()
	h := setupRouter(t, store, testProviders)

	rec := do(t, h, http.MethodGet, "/api/status", "pub_test")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(CheckIDHeader))

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "timestamp")

	var openai, claude, gemini domain.ProviderResult
	require.NoError(t, json.Unmarshal(body["openai"], &openai))
	require.NoError(t, json.Unmarshal(body["claude"], &claude))
	require.NoError(t, json.Unmarshal(body["gemini"], &gemini))

	assert.Equal(t, domain.StatusSuccess, openai.Status)
	require.NotNil(t, openai.Response)
	assert.Equal(t, "pong", *openai.Response)
	require.NotNil(t, openai.ResponseTime)
	assert.GreaterOrEqual(t, *openai.ResponseTime, 0.0)

	assert.Equal(t, domain.StatusError, claude.Status)
	require.NotNil(t, claude.Error)
	assert.Equal(t, "overloaded", *claude.Error)

	assert.Equal(t, domain.StatusDisabled, gemini.Status, "not in config")

	hist, err := store.History(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, hist["openai"], 1)
	assert.Len(t, hist["claude"], 1)
	assert.NotContains(t, hist, "gemini")
}

func TestStatus_MissingConfigIs500(t *testing.T) {
	rec := do(t, setupRouter(t, memory.New(), ""), http.MethodGet, "/api/status", "pub_test")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

type failingStore struct{ *memory.Store }

func (failingStore) Record(ctx context.Context, o domain.Observation) error {
	return errs.New(errs.CodeStoreDatabaseFailure, "disk full")
}

func TestStatus_StoreFailureIs500(t *testing.T) {
	rec := do(t, setupRouter(t, failingStore{memory.New()}, testProviders), http.MethodGet, "/api/status", "pub_test")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(CheckIDHeader))
	assert.Contains(t, rec.Body.String(), "disk full")
}

func TestHistoryAndStats(t *testing.T) {
	store := memory.New()
	h := setupRouter(t, store, testProviders)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", "pub_test").Code)
	}

	rec := do(t, h, http.MethodGet, "/api/history?hours=1", "pub_test")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		History map[string][]domain.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Len(t, hist.History["openai"], 2)
	assert.Len(t, hist.History["claude"], 2)

	rec = do(t, h, http.MethodGet, "/api/stats", "adm_test")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Stats map[string]domain.UptimeStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.Stats["openai"].TotalChecks)
	assert.Equal(t, 100.0, stats.Stats["openai"].UptimePercent)
	assert.Equal(t, 0.0, stats.Stats["claude"].UptimePercent)
	assert.Nil(t, stats.Stats["claude"].AvgResponseTime)
}

func TestEmptyStore(t *testing.T) {
	h := setupRouter(t, memory.New(), testProviders)
	rec := do(t, h, http.MethodGet, "/api/history", "pub_test")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"history":{}}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/stats", "pub_test")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stats":{}}`, rec.Body.String())
}

func TestHugeWindowCoversEverything(t *testing.T) {
	h := setupRouter(t, memory.New(), testProviders)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", "pub_test").Code)

	for _, hours := range []string{"3000000", "9223372036854775807"} {
		rec := do(t, h, http.MethodGet, "/api/history?hours="+hours, "pub_test")
		require.Equal(t, http.StatusOK, rec.Code, hours)
		var hist struct {
			History map[string][]domain.HistoryEntry `json:"history"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
		assert.Len(t, hist.History, 2, hours)

		rec = do(t, h, http.MethodGet, "/api/stats?hours="+hours, "pub_test")
		require.Equal(t, http.StatusOK, rec.Code, hours)
		var stats struct {
			Stats map[string]domain.UptimeStats `json:"stats"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, int64(1), stats.Stats["openai"].TotalChecks, hours)
	}

	rec := do(t, h, http.MethodPost, "/api/admin/prune?days=9223372036854775807", "adm_test")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":0}`, rec.Body.String())
}

func TestInvalidWindowIs400(t *testing.T) {
	h := setupRouter(t, memory.New(), testProviders)
	for _, target := range []string{
		"/api/history?hours=abc",
		"/api/history?hours=0",
		"/api/stats?hours=-3",
	} {
		rec := do(t, h, http.MethodGet, target, "pub_test")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	rec := do(t, h, http.MethodPost, "/api/admin/prune?days=x", "adm_test")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	h := setupRouter(t, memory.New(), testProviders)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", "nope").Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/api/admin/prune", "pub_test").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/admin/prune", "adm_test").Code)
}

func TestPrune(t *testing.T) {
	clock := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New().WithClock(func() time.Time { return clock })
	ms := 10.0
	require.NoError(t, store.Record(context.Background(), domain.Observation{
		Provider: "openai", Status: domain.StatusSuccess, ResponseTime: &ms,
	}))

	h := setupRouter(t, store, testProviders)
	rec := do(t, h, http.MethodPost, "/api/admin/prune?days=1", "adm_test")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())
}

func TestStatus_RateLimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testProviders), 0o600))
	svc := status.NewService(path, fakeRegistry(), memory.New(), nil, zap.NewNop())
	h := NewServer(nil, svc).Router(apimw.Keys{}, []string{"https://dash.example.com"}, 1, 1)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/status", "").Code)
	// reads are not limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/stats", "").Code)
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	svc := status.NewService("", fakeRegistry(), memory.New(), nil, nil)
	h := NewServer(nil, svc).Router(apimw.Keys{}, []string{"https://dash.example.com"}, 0, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
