package registry

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paperbird/harvest/horosafe"
	"github.com/paperbird/harvest/preset"
)

// maxImportBody caps preset documents on the wire. 1 MiB is far beyond any
// legitimate preset.
const maxImportBody = 1 << 20

// RegisterRoutes mounts the registry HTTP API:
//
//	POST /api/v1/presets/import[?activate=0]      import (and by default activate) a preset document
//	GET  /api/v1/presets?name=                    list stored versions
//	GET  /api/v1/presets/{name}/snapshot          active version snapshot
//	POST /api/v1/presets/{name}/{version}/activate
//	POST /api/v1/presets/{name}/deactivate
func (r *Registry) RegisterRoutes(mux chi.Router) {
	mux.Route("/api/v1/presets", func(pr chi.Router) {
		pr.Post("/import", r.handleImport)
		pr.Get("/", r.handleList)
		pr.Get("/{name}/snapshot", r.handleSnapshot)
		pr.Post("/{name}/{version}/activate", r.handleActivate)
		pr.Post("/{name}/deactivate", r.handleDeactivate)
	})
}

type apiError struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var verr *preset.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Message: verr.Message, Path: verr.Path})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, apiError{Message: err.Error()})
	}
}

// ImportResponse is the body returned by the import endpoint.
type ImportResponse struct {
	Preset  *Record `json:"preset"`
	Created bool    `json:"created"`
}

func (r *Registry) handleImport(w http.ResponseWriter, req *http.Request) {
	raw, err := horosafe.LimitedReadAll(req.Body, maxImportBody)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Message: err.Error()})
		return
	}

	// Imports activate by default; pass activate=0 to store without going
	// live.
	activate := true
	if q := req.URL.Query().Get("activate"); q == "0" || q == "false" {
		activate = false
	}

	rec, created, err := r.Import(req.Context(), raw, activate)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ImportResponse{Preset: rec, Created: created})
}

func (r *Registry) handleList(w http.ResponseWriter, req *http.Request) {
	recs, err := r.List(req.Context(), req.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []*Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (r *Registry) handleSnapshot(w http.ResponseWriter, req *http.Request) {
	snap, err := r.Snapshot(req.Context(), chi.URLParam(req, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (r *Registry) handleActivate(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	version := chi.URLParam(req, "version")
	if err := r.Activate(req.Context(), name, version); err != nil {
		writeError(w, err)
		return
	}
	rec, err := r.Get(req.Context(), name, version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (r *Registry) handleDeactivate(w http.ResponseWriter, req *http.Request) {
	if err := r.Deactivate(req.Context(), chi.URLParam(req, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
