package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/dateparse"
	"github.com/diegolsarmond/jus-connect/internal/store"
	"github.com/diegolsarmond/jus-connect/internal/webhook"
)

// AppointmentResponse is the JSON representation of an appointment.
type AppointmentResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Kind          string    `json:"kind,omitempty"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Location      string    `json:"location,omitempty"`
	ClientID      string    `json:"client_id,omitempty"`
	OpportunityID string    `json:"opportunity_id,omitempty"`
	Status        string    `json:"status"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func appointmentToResponse(a *store.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		Title:         a.Title,
		Description:   a.Description,
		Kind:          a.Kind,
		StartsAt:      a.StartsAt,
		EndsAt:        a.EndsAt,
		Location:      a.Location,
		ClientID:      a.ClientID,
		OpportunityID: a.OpportunityID,
		Status:        a.Status,
		CreatedBy:     a.CreatedBy,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// AppointmentRequest is the body of POST and PATCH on /v1/appointments.
// Times accept RFC 3339 or the formats understood by the date parser.
type AppointmentRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Kind          *string `json:"kind"`
	StartsAt      *string `json:"starts_at"`
	EndsAt        *string `json:"ends_at"`
	Location      *string `json:"location"`
	ClientID      *string `json:"client_id"`
	OpportunityID *string `json:"opportunity_id"`
	Status        *string `json:"status"`
}

// parseInstant reads a timestamp, or a (possibly relative) date meaning
// midnight UTC of that day.
func (s *Server) parseInstant(raw string) (time.Time, error) {
	if strings.ContainsAny(raw, "T:") {
		return dateparse.ParseTime(raw, time.UTC)
	}
	d, err := dateparse.ParseDateFrom(raw, s.now())
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(store.DateLayout, d)
}

func (s *Server) optionalInstant(w http.ResponseWriter, name string, raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	t, err := s.parseInstant(*raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, name+": "+err.Error())
		return nil, false
	}
	return &t, true
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	f := store.AppointmentFilter{
		OpportunityID: q.Get("opportunity_id"),
		ClientID:      q.Get("client_id"),
		Status:        q.Get("status"),
	}
	var ok bool
	if f.From, ok = s.optionalInstant(w, "from", &from); !ok {
		return
	}
	if f.To, ok = s.optionalInstant(w, "to", &to); !ok {
		return
	}

	items, err := s.store.ListAppointments(r.Context(), f)
	if err != nil {
		writeStoreError(w, r, "list appointments", err)
		return
	}
	resp := make([]AppointmentResponse, 0, len(items))
	for _, a := range items {
		resp = append(resp, appointmentToResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req AppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	startsAt, ok := s.optionalInstant(w, "starts_at", req.StartsAt)
	if !ok {
		return
	}
	endsAt, ok := s.optionalInstant(w, "ends_at", req.EndsAt)
	if !ok {
		return
	}

	a := store.Appointment{
		Title:         deref(req.Title),
		Description:   deref(req.Description),
		Kind:          deref(req.Kind),
		Location:      deref(req.Location),
		ClientID:      deref(req.ClientID),
		OpportunityID: deref(req.OpportunityID),
		Status:        deref(req.Status),
		CreatedBy:     getUserFromContext(r.Context()).UserID,
	}
	if startsAt != nil {
		a.StartsAt = *startsAt
	}
	if endsAt != nil {
		a.EndsAt = *endsAt
	}

	created, err := s.store.CreateAppointment(r.Context(), a)
	if err != nil {
		writeStoreError(w, r, "create appointment", err)
		return
	}
	resp := appointmentToResponse(created)
	s.hooks.Notify(webhook.AppointmentCreated, resp)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get appointment", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "appointment not found")
		return
	}
	writeJSON(w, http.StatusOK, appointmentToResponse(a))
}

func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var req AppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	startsAt, ok := s.optionalInstant(w, "starts_at", req.StartsAt)
	if !ok {
		return
	}
	endsAt, ok := s.optionalInstant(w, "ends_at", req.EndsAt)
	if !ok {
		return
	}

	a, err := s.store.UpdateAppointment(r.Context(), r.PathValue("id"), store.AppointmentPatch{
		Title:         req.Title,
		Description:   req.Description,
		Kind:          req.Kind,
		StartsAt:      startsAt,
		EndsAt:        endsAt,
		Location:      req.Location,
		ClientID:      req.ClientID,
		OpportunityID: req.OpportunityID,
		Status:        req.Status,
	})
	if err != nil {
		writeStoreError(w, r, "update appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentToResponse(a))
}

func (s *Server) handleDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAppointment(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, r, "delete appointment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
