// Package apimock serves an in-memory company registry API used to
// exercise contract suites offline.
package apimock

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler holds all API handler state.
type Handler struct {
	store  *MemoryStore
	logger *slog.Logger
}

func NewHandler(s *MemoryStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: s, logger: logger}
}

// NewRouter returns the full API with middleware applied.
func NewRouter(s *MemoryStore, logger *slog.Logger) http.Handler {
	h := NewHandler(s, logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Rota não encontrada")
	})
	h.Routes(r)
	return r
}

// Routes mounts the company routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/company", func(r chi.Router) {
		r.Get("/", h.ListCompanies)
		r.Post("/", h.CreateCompany)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCompany)
			r.Delete("/", h.DeleteCompany)

			mountSubresource(r, h, products)
			mountSubresource(r, h, employees)
			mountSubresource(r, h, services)
		})
	})
}

func requestLogger(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			l.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
