package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter sets up HTTP routes. /version, /healthz and /metrics are
// exempt from API-key auth.
func SetupRouter(handler *Handler, apiKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger)
	r.Use(MetricsMiddleware)

	r.Get("/version", handler.GetVersion)
	r.Get("/healthz", handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(apiKey))

		r.Post("/upload", handler.Upload)
		r.Get("/batches/{batchID}", handler.GetBatchStatus)
		r.Post("/batches/{batchID}/cancel", handler.CancelBatch)
	})

	return r
}
