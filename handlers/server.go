package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"

	"licensedesk.app/server/internal/config"
	"licensedesk.app/server/internal/logger"
	"licensedesk.app/server/internal/ratelimit"
	"licensedesk.app/server/license"
)

type Server struct {
	Router  *chi.Mux
	Engine  *license.Engine
	Config  *config.Config
	Version string

	limiter  ratelimit.RateLimit
	requests atomic.Int64
}

type HealthResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	Timestamp      time.Time `json:"timestamp"`
	RequestsServed int64     `json:"requests_served"`
}

func NewHTTPServer(cfg *config.Config, engine *license.Engine, version string) *Server {
	s := &Server{
		Router:  chi.NewRouter(),
		Engine:  engine,
		Config:  cfg,
		Version: version,
		limiter: ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow),
	}

	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	s.Router.Use(s.countRequests)

	s.Router.Get("/health", s.Health)
	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Post("/licenses", s.IssueOrRenew)
		r.Get("/licenses", s.ListLicenses)
		r.Post("/licenses/deactivate", s.Deactivate)
		r.Post("/licenses/reactivate", s.Reactivate)
		r.With(s.rateLimit).Post("/licenses/validate", s.ValidateCredentials)
		r.Post("/webhooks/stripe", s.StripeWebhook)
	})

	return s
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		Version:        s.Version,
		Timestamp:      time.Now(),
		RequestsServed: s.requests.Load(),
	})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Inc()
		logger.Debug("request", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// storeContext bounds every store access so a wedged database surfaces as
// a 503 instead of an unbounded hang.
func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := s.Config.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, license.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, license.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable, retry later")
	default:
		logger.Error("unexpected engine error", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
