package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loom/pkg/requestcontext"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func() error

// NewRouter assembles the full route table. Checks run on /healthz; a nil
// checker map means the process is healthy whenever it answers.
func NewRouter(h *Handlers, checks map[string]HealthChecker) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(propagateRequestID)

	r.Post("/intents", h.SubmitIntent)

	r.Route("/artifacts", func(r chi.Router) {
		r.Get("/{id}", h.GetArtifact)
		r.Post("/{id}/archive", h.ArchiveArtifact)
		r.Post("/{id}/delete", h.DeleteArtifact)
		r.Post("/{id}/accept", h.AcceptArtifact)
	})

	r.Route("/promotions", func(r chi.Router) {
		r.Post("/record-of-fact", h.PromoteRecordOfFact)
		r.Post("/platform-dna", h.PromotePlatformDNA)
	})

	r.Get("/executions/{id}/events", h.ListExecutionEvents)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
			} else {
				body[name] = "ok"
			}
		}
		respondJSON(w, status, body)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// propagateRequestID copies chi's request id into the HTTP-independent
// request context, so services can log it without importing net/http.
func propagateRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if rid := middleware.GetReqID(req.Context()); rid != "" {
			req = req.WithContext(requestcontext.WithRequestID(req.Context(), rid))
		}
		next.ServeHTTP(w, req)
	})
}
