// Package v1 provides the REST API v1 endpoints for browsing the package
// library and driving catalog syncs.
package v1

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zimshelf/zim-library/internal/api/common"
	"github.com/zimshelf/zim-library/internal/library"
	"github.com/zimshelf/zim-library/internal/settings"
	"github.com/zimshelf/zim-library/internal/status"
	"github.com/zimshelf/zim-library/internal/store"
	"github.com/zimshelf/zim-library/internal/sync/coordinator"
)

// maxRequestBody caps JSON request bodies
const maxRequestBody = 64 * 1024

// SyncService is the part of the sync coordinator the API drives
type SyncService interface {
	Submit(preserveExisting bool) (*coordinator.Handle, error)
	Latest() (coordinator.Snapshot, bool)
	Lookup(id uuid.UUID) (coordinator.Snapshot, error)
	CancelJob(id uuid.UUID) error
}

// Backend groups the components served by the v1 API
type Backend struct {
	Store    store.Store
	Sync     SyncService
	Status   status.StatusPersistence
	Settings settings.Store
}

// Routes handles HTTP requests for the v1 endpoints
type Routes struct {
	backend Backend
}

// NewRoutes creates a new Routes instance for the given backend
func NewRoutes(backend Backend) *Routes {
	return &Routes{backend: backend}
}

// Router creates and configures the HTTP router for the v1 endpoints
func Router(backend Backend) http.Handler {
	routes := NewRoutes(backend)

	r := chi.NewRouter()

	r.Get("/packages", routes.listPackages)
	r.Get("/packages/{id}", routes.getPackage)
	r.Delete("/packages/{id}", routes.deletePackage)

	r.Post("/sync", routes.submitSync)
	r.Get("/sync/current", routes.currentSync)
	r.Get("/sync/jobs/{id}", routes.getSyncJob)
	r.Delete("/sync/jobs/{id}", routes.cancelSyncJob)

	r.Get("/settings", routes.getSettings)
	r.Post("/settings/language-hint", routes.markLanguageHintShown)

	return r
}

// listPackages handles GET /v1/packages. The state and language query
// parameters accept repeated or comma separated values.
func (routes *Routes) listPackages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var preds []store.Predicate

	if raw := splitQuery(query["state"]); len(raw) > 0 {
		states := make([]library.State, 0, len(raw))
		for _, s := range raw {
			state, ok := library.ParseState(s)
			if !ok {
				common.WriteErrorResponse(w, "Invalid state parameter: "+s, http.StatusBadRequest)
				return
			}
			states = append(states, state)
		}
		preds = append(preds, store.ByState(states...))
	}

	if languages := splitQuery(query["language"]); len(languages) > 0 {
		preds = append(preds, store.ByLanguage(languages...))
	}

	packages, err := routes.backend.Store.Scan(r.Context(), store.All(preds...))
	if err != nil {
		slog.Error("Failed to list packages", "error", err)
		common.WriteErrorResponse(w, "Failed to list packages", http.StatusInternalServerError)
		return
	}
	if packages == nil {
		packages = []*library.Package{}
	}

	common.WriteJSONResponse(w, PackageListResponse{Packages: packages, Count: len(packages)}, http.StatusOK)
}

// getPackage handles GET /v1/packages/{id}
func (routes *Routes) getPackage(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	pkg, err := routes.backend.Store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		common.WriteErrorResponse(w, "Package not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to get package", "package_id", id, "error", err)
		common.WriteErrorResponse(w, "Failed to get package", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, pkg, http.StatusOK)
}

// deletePackage handles DELETE /v1/packages/{id}, the explicit removal of a
// record in any state
func (routes *Routes) deletePackage(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = routes.backend.Store.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		common.WriteErrorResponse(w, "Package not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to delete package", "package_id", id, "error", err)
		common.WriteErrorResponse(w, "Failed to delete package", http.StatusInternalServerError)
		return
	}

	slog.Info("Package removed", "package_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// submitSync handles POST /v1/sync. A sync requested through the API is a
// user refresh unless the body sets refresh to false.
func (routes *Routes) submitSync(w http.ResponseWriter, r *http.Request) {
	req := SubmitSyncRequest{Refresh: true}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		common.WriteErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			common.WriteErrorResponse(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	handle, err := routes.backend.Sync.Submit(!req.Refresh)
	if errors.Is(err, coordinator.ErrStopped) {
		common.WriteErrorResponse(w, "Sync is not accepting jobs", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		slog.Error("Failed to submit sync", "error", err)
		common.WriteErrorResponse(w, "Failed to submit sync", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/v1/sync/jobs/"+handle.ID().String())
	common.WriteJSONResponse(w, SubmitSyncResponse{Job: handle.Snapshot()}, http.StatusAccepted)
}

// currentSync handles GET /v1/sync/current
func (routes *Routes) currentSync(w http.ResponseWriter, r *http.Request) {
	resp := CurrentSyncResponse{}

	if latest, ok := routes.backend.Sync.Latest(); ok {
		resp.Job = &latest
	}

	if routes.backend.Status != nil {
		s, err := routes.backend.Status.LoadStatus(r.Context())
		if err != nil {
			slog.Warn("Failed to load sync status", "error", err)
		} else {
			resp.Status = s
		}
	}

	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// getSyncJob handles GET /v1/sync/jobs/{id}. Only queued and running jobs
// are known; completed ones are reported through the sync status.
func (routes *Routes) getSyncJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	snapshot, err := routes.backend.Sync.Lookup(id)
	if errors.Is(err, coordinator.ErrJobNotFound) {
		common.WriteErrorResponse(w, "Sync job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, snapshot, http.StatusOK)
}

// cancelSyncJob handles DELETE /v1/sync/jobs/{id}
func (routes *Routes) cancelSyncJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	err := routes.backend.Sync.CancelJob(id)
	if errors.Is(err, coordinator.ErrJobNotFound) {
		common.WriteErrorResponse(w, "Sync job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getSettings handles GET /v1/settings
func (routes *Routes) getSettings(w http.ResponseWriter, r *http.Request) {
	current, err := routes.backend.Settings.Load(r.Context())
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		common.WriteErrorResponse(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, newSettingsResponse(current), http.StatusOK)
}

// markLanguageHintShown handles POST /v1/settings/language-hint
func (routes *Routes) markLanguageHintShown(w http.ResponseWriter, r *http.Request) {
	var updated *settings.Settings
	err := routes.backend.Settings.Update(r.Context(), func(s *settings.Settings) error {
		s.HasShownLanguageHintOnce = true
		updated = s.Clone()
		return nil
	})
	if err != nil {
		slog.Error("Failed to update settings", "error", err)
		common.WriteErrorResponse(w, "Failed to update settings", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, newSettingsResponse(updated), http.StatusOK)
}

func newSettingsResponse(s *settings.Settings) SettingsResponse {
	resp := SettingsResponse{
		FilterLanguageCodes:      s.FilterLanguageCodes,
		HasShownLanguageHintOnce: s.HasShownLanguageHintOnce,
		NeedsLanguageHint:        s.NeedsLanguageHint(),
	}
	if resp.FilterLanguageCodes == nil {
		resp.FilterLanguageCodes = []string{}
	}
	if s.LastSyncTimestamp != nil {
		ts := s.LastSyncTimestamp.UTC().Format(time.RFC3339)
		resp.LastSyncTimestamp = &ts
	}
	return resp
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, err := common.PathParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.WriteErrorResponse(w, "Invalid job id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// splitQuery flattens repeated and comma separated query values
func splitQuery(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
