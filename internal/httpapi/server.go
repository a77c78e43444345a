package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"uplite/internal/probe"
	"uplite/internal/repo"
	"uplite/internal/stats"
)

// Server exposes the reporting and target CRUD surface consumed by the
// web layer.
type Server struct {
	Logger  *zap.Logger
	Targets repo.TargetStore
	History repo.HistoryStore
	Stats   *stats.Engine
	Checker probe.Checker
}

func NewServer(l *zap.Logger, ts repo.TargetStore, hs repo.HistoryStore, e *stats.Engine, c probe.Checker) *Server {
	return &Server{Logger: l, Targets: ts, History: hs, Stats: e, Checker: c}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/targets", func(r chi.Router) {
		r.Get("/", s.handleListTargets)
		r.Post("/", s.handleCreateTarget)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetTarget)
			r.Put("/", s.handleUpdateTarget)
			r.Delete("/", s.handleDeleteTarget)
			r.Post("/check", s.handleCheckNow)
			r.Get("/statistics", s.handleStatistics)
			r.Get("/median", s.handleMedian)
			r.Get("/history", s.handleHistory)
			r.Get("/status-counts", s.handleStatusCounts)
		})
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("api_encode_error", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}
	s.Logger.Warn("api_store_error", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "storage error")
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// queryInt returns the named query parameter clamped to [1, max], or the
// default when absent or unparsable.
func queryInt(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
