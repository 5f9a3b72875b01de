package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/llmuptime/internal/errs"
	apimw "github.com/hamed0406/llmuptime/internal/httpapi/middleware"
	"github.com/hamed0406/llmuptime/internal/repo"
	"github.com/hamed0406/llmuptime/internal/status"
)

// CheckIDHeader carries the id of the status check that produced a response.
const CheckIDHeader = "X-Check-ID"

type Server struct {
	Logger *zap.Logger
	Status *status.Service
}

func NewServer(l *zap.Logger, svc *status.Service) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Status: svc}
}

// Router wires the API. statusRPM/statusBurst limit /api/status per client
// IP because every call there fans out to the providers.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, statusRPM, statusBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAny(keys))
			r.With(apimw.RateLimit(statusRPM, statusBurst)).Get("/status", s.handleStatus)
			r.Get("/history", s.handleHistory)
			r.Get("/stats", s.handleStats)
		})
		r.With(apimw.RequireAdmin(keys)).Post("/admin/prune", s.handlePrune)
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
		ExposedHeaders: []string{CheckIDHeader},
		MaxAge:         300,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.Status.Check(r.Context())
	if report.CheckID != "" {
		w.Header().Set(CheckIDHeader, report.CheckID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hours, err := positiveInt(r, "hours", repo.DefaultHistoryHours)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.Status.History(r.Context(), hours)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": h})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hours, err := positiveInt(r, "hours", repo.DefaultHistoryHours)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.Status.Stats(r.Context(), hours)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": st})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	days, err := positiveInt(r, "days", repo.DefaultRetentionDays)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.Status.Prune(r.Context(), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// positiveInt reads an optional query parameter; absent means def.
func positiveInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errs.New(errs.CodeRequestInvalid, name+" must be a positive integer", name, raw)
	}
	return n, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		s.Logger.Error("api_error",
			zap.String("path", r.URL.Path),
			zap.String("code", string(errs.CodeOf(err))),
			zap.Error(err),
		)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
