package v1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zimshelf/zim-library/internal/api/common"
	"github.com/zimshelf/zim-library/internal/versions"
)

// ReadinessCheck reports whether the service can serve requests
type ReadinessCheck func(ctx context.Context) error

// HealthRouter creates a router for health check endpoints
func HealthRouter(ready ReadinessCheck) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(ready))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func readinessHandler(ready ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				common.WriteErrorResponse(w, "Service not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
