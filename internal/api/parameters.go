package api

import (
	"net/http"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/store"
)

// ParameterResponse is the JSON representation of a lookup table entry.
type ParameterResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func parameterToResponse(p *store.Parameter) ParameterResponse {
	return ParameterResponse{
		ID:        p.ID,
		Kind:      p.Kind,
		Name:      p.Name,
		Position:  p.Position,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
}

// ParameterRequest is the body of POST and PATCH on /v1/parameters/{kind}.
type ParameterRequest struct {
	Name     *string `json:"name"`
	Position *int    `json:"position"`
	Active   *bool   `json:"active"`
}

// parameterKind returns the {kind} path value, writing a 404 for unknown tables.
func parameterKind(w http.ResponseWriter, r *http.Request) (string, bool) {
	kind := r.PathValue("kind")
	if !store.IsValidParameterKind(kind) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown parameter kind: "+kind)
		return "", false
	}
	return kind, true
}

func (s *Server) handleListParameters(w http.ResponseWriter, r *http.Request) {
	kind, ok := parameterKind(w, r)
	if !ok {
		return
	}
	onlyActive := r.URL.Query().Get("active") == "true"
	params, err := s.store.ListParameters(r.Context(), kind, onlyActive)
	if err != nil {
		writeStoreError(w, r, "list parameters", err)
		return
	}
	resp := make([]ParameterResponse, 0, len(params))
	for _, p := range params {
		resp = append(resp, parameterToResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateParameter(w http.ResponseWriter, r *http.Request) {
	kind, ok := parameterKind(w, r)
	if !ok {
		return
	}
	var req ParameterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	position := 0
	if req.Position != nil {
		position = *req.Position
	}
	p, err := s.store.CreateParameter(r.Context(), kind, deref(req.Name), position)
	if err != nil {
		writeStoreError(w, r, "create parameter", err)
		return
	}
	writeJSON(w, http.StatusCreated, parameterToResponse(p))
}

func (s *Server) handleUpdateParameter(w http.ResponseWriter, r *http.Request) {
	kind, ok := parameterKind(w, r)
	if !ok {
		return
	}
	var req ParameterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.store.UpdateParameter(r.Context(), kind, r.PathValue("id"), store.ParameterPatch{
		Name:     req.Name,
		Position: req.Position,
		Active:   req.Active,
	})
	if err != nil {
		writeStoreError(w, r, "update parameter", err)
		return
	}
	writeJSON(w, http.StatusOK, parameterToResponse(p))
}

func (s *Server) handleDeleteParameter(w http.ResponseWriter, r *http.Request) {
	kind, ok := parameterKind(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteParameter(r.Context(), kind, r.PathValue("id")); err != nil {
		writeStoreError(w, r, "delete parameter", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
