package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/store"
	"github.com/diegolsarmond/jus-connect/internal/webhook"
)

// ClientResponse is the JSON representation of a client.
type ClientResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Document  string    `json:"document,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func clientToResponse(c *store.Client) ClientResponse {
	return ClientResponse{
		ID:        c.ID,
		Name:      c.Name,
		Kind:      c.Kind,
		Document:  c.Document,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		City:      c.City,
		State:     c.State,
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// ClientRequest is the body of POST and PATCH on /v1/clients. On create,
// missing fields are empty.
type ClientRequest struct {
	Name     *string `json:"name"`
	Kind     *string `json:"kind"`
	Document *string `json:"document"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
	City     *string `json:"city"`
	State    *string `json:"state"`
	Notes    *string `json:"notes"`
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// pagination reads limit and offset query parameters; invalid values are ignored.
func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	clients, err := s.store.ListClients(r.Context(), store.ClientFilter{
		Search: r.URL.Query().Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeStoreError(w, r, "list clients", err)
		return
	}
	resp := make([]ClientResponse, 0, len(clients))
	for _, c := range clients {
		resp = append(resp, clientToResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.store.CreateClient(r.Context(), store.Client{
		Name:     deref(req.Name),
		Kind:     deref(req.Kind),
		Document: deref(req.Document),
		Email:    deref(req.Email),
		Phone:    deref(req.Phone),
		Address:  deref(req.Address),
		City:     deref(req.City),
		State:    deref(req.State),
		Notes:    deref(req.Notes),
	})
	if err != nil {
		writeStoreError(w, r, "create client", err)
		return
	}
	resp := clientToResponse(c)
	s.hooks.Notify(webhook.ClientCreated, resp)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetClient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get client", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, clientToResponse(c))
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.store.UpdateClient(r.Context(), r.PathValue("id"), store.ClientPatch{
		Name:     req.Name,
		Kind:     req.Kind,
		Document: req.Document,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		City:     req.City,
		State:    req.State,
		Notes:    req.Notes,
	})
	if err != nil {
		writeStoreError(w, r, "update client", err)
		return
	}
	writeJSON(w, http.StatusOK, clientToResponse(c))
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SoftDeleteClient(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, r, "delete client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
