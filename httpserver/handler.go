package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mediastack/media-storage-backend/interfaces"
	"github.com/mediastack/media-storage-backend/orchestrator"
)

// Handler implements the admin API on top of the orchestrator.
type Handler struct {
	orc *orchestrator.Orchestrator
	log *slog.Logger
}

// NewHandler creates a handler routing through orc.
func NewHandler(orc *orchestrator.Orchestrator, log *slog.Logger) *Handler {
	return &Handler{orc: orc, log: log}
}

// provisionRequest is the body of POST /api/admin/tenants/{tenant}/provision.
type provisionRequest struct {
	Categories []string `json:"categories"`
	Subfolders []string `json:"subfolders"`
}

// provisionEntry is one backend's entry in the provisioning response.
type provisionEntry struct {
	Created []string `json:"created,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// HandleProvision provisions the folder hierarchy for a tenant across all its
// configured backends. The response is a partial-success map; the status is
// 200 when every backend succeeded and 207 otherwise.
func (h *Handler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")

	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if tenant == "" || len(req.Categories) == 0 {
		http.Error(w, "tenant and categories are required", http.StatusBadRequest)
		return
	}

	results := h.orc.ProvisionHierarchy(r.Context(), tenant, req.Categories, req.Subfolders)

	response := make(map[string]provisionEntry, len(results))
	status := http.StatusOK
	for name, result := range results {
		entry := provisionEntry{Created: result.Created}
		if result.Err != nil {
			entry.Error = result.Err.Error()
			status = http.StatusMultiStatus
		}
		response[name] = entry
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// HandleInvalidate drops the cached backend instance for a tenant binding so
// the next resolution rebuilds it from fresh configuration.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	category := chi.URLParam(r, "category")
	if tenant == "" || category == "" {
		http.Error(w, "tenant and category are required", http.StatusBadRequest)
		return
	}

	h.orc.Invalidate(tenant, category)
	h.log.Info("Invalidated cached backend instance",
		slog.String("tenant", tenant),
		slog.String("category", category))

	w.WriteHeader(http.StatusNoContent)
}

// HandlePublicURL resolves the backend for a tenant/category and returns the
// templated public URL for the requested path. No backend round-trip is made.
func (h *Handler) HandlePublicURL(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	category := chi.URLParam(r, "category")
	rel := chi.URLParam(r, "*")

	var segments []string
	if rel != "" {
		segments = strings.Split(rel, "/")
	}
	p, err := interfaces.NewLogicalPath(tenant, category, segments...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	backend, err := h.orc.Resolve(r.Context(), tenant, category)
	if err != nil {
		h.log.Error("Failed to resolve backend", "err", err,
			slog.String("tenant", tenant),
			slog.String("category", category))
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"url":     backend.PublicURL(p),
		"backend": backend.Name(),
	})
}
