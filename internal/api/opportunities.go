package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diegolsarmond/jus-connect/internal/store"
	"github.com/diegolsarmond/jus-connect/internal/webhook"
)

// OpportunityResponse is the JSON representation of an opportunity.
type OpportunityResponse struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	ClientID      string          `json:"client_id"`
	Area          string          `json:"area,omitempty"`
	Stage         string          `json:"stage,omitempty"`
	ProcessNumber string          `json:"process_number,omitempty"`
	ResponsibleID string          `json:"responsible_id,omitempty"`
	Value         decimal.Decimal `json:"value"`
	Installments  int             `json:"installments"`
	FirstDueDate  string          `json:"first_due_date,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Status        string          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func opportunityToResponse(o *store.Opportunity) OpportunityResponse {
	return OpportunityResponse{
		ID:            o.ID,
		Title:         o.Title,
		ClientID:      o.ClientID,
		Area:          o.Area,
		Stage:         o.Stage,
		ProcessNumber: o.ProcessNumber,
		ResponsibleID: o.ResponsibleID,
		Value:         o.Value,
		Installments:  o.Installments,
		FirstDueDate:  o.FirstDueDate,
		PaymentMethod: o.PaymentMethod,
		Status:        o.Status,
		Notes:         o.Notes,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// InstallmentResponse is the JSON representation of an installment.
type InstallmentResponse struct {
	ID            string          `json:"id"`
	OpportunityID string          `json:"opportunity_id"`
	Number        int             `json:"number"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       string          `json:"due_date"`
	PaidAt        *string         `json:"paid_at,omitempty"`
	Status        string          `json:"status"`
}

func installmentsToResponse(in []*store.Installment) []InstallmentResponse {
	resp := make([]InstallmentResponse, 0, len(in))
	for _, i := range in {
		resp = append(resp, InstallmentResponse{
			ID:            i.ID,
			OpportunityID: i.OpportunityID,
			Number:        i.Number,
			Amount:        i.Amount,
			DueDate:       i.DueDate,
			PaidAt:        i.PaidAt,
			Status:        i.Status,
		})
	}
	return resp
}

// OpportunityRequest is the body of POST and PATCH on /v1/opportunities.
type OpportunityRequest struct {
	Title         *string          `json:"title"`
	ClientID      *string          `json:"client_id"`
	Area          *string          `json:"area"`
	Stage         *string          `json:"stage"`
	ProcessNumber *string          `json:"process_number"`
	ResponsibleID *string          `json:"responsible_id"`
	Value         *decimal.Decimal `json:"value"`
	Installments  *int             `json:"installments"`
	FirstDueDate  *string          `json:"first_due_date"`
	PaymentMethod *string          `json:"payment_method"`
	Status        *string          `json:"status"`
	Notes         *string          `json:"notes"`
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(r)
	opps, err := s.store.ListOpportunities(r.Context(), store.OpportunityFilter{
		ClientID:      q.Get("client_id"),
		Stage:         q.Get("stage"),
		Status:        q.Get("status"),
		ResponsibleID: q.Get("responsible_id"),
		Search:        q.Get("q"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		writeStoreError(w, r, "list opportunities", err)
		return
	}
	resp := make([]OpportunityResponse, 0, len(opps))
	for _, o := range opps {
		resp = append(resp, opportunityToResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateOpportunity(w http.ResponseWriter, r *http.Request) {
	var req OpportunityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o := store.Opportunity{
		Title:         deref(req.Title),
		ClientID:      deref(req.ClientID),
		Area:          deref(req.Area),
		Stage:         deref(req.Stage),
		ProcessNumber: deref(req.ProcessNumber),
		ResponsibleID: deref(req.ResponsibleID),
		FirstDueDate:  deref(req.FirstDueDate),
		PaymentMethod: deref(req.PaymentMethod),
		Status:        deref(req.Status),
		Notes:         deref(req.Notes),
	}
	if o.ResponsibleID == "" {
		o.ResponsibleID = getUserFromContext(r.Context()).UserID
	}
	if req.Value != nil {
		o.Value = *req.Value
	}
	if req.Installments != nil {
		o.Installments = *req.Installments
	}

	created, err := s.store.CreateOpportunity(r.Context(), o)
	if err != nil {
		writeStoreError(w, r, "create opportunity", err)
		return
	}
	resp := opportunityToResponse(created)
	s.hooks.Notify(webhook.OpportunityCreated, resp)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	o, err := s.store.GetOpportunity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get opportunity", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "opportunity not found")
		return
	}
	writeJSON(w, http.StatusOK, opportunityToResponse(o))
}

func (s *Server) handleUpdateOpportunity(w http.ResponseWriter, r *http.Request) {
	var req OpportunityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := s.store.UpdateOpportunity(r.Context(), r.PathValue("id"), store.OpportunityPatch{
		Title:         req.Title,
		ClientID:      req.ClientID,
		Area:          req.Area,
		Stage:         req.Stage,
		ProcessNumber: req.ProcessNumber,
		ResponsibleID: req.ResponsibleID,
		Value:         req.Value,
		Installments:  req.Installments,
		FirstDueDate:  req.FirstDueDate,
		PaymentMethod: req.PaymentMethod,
		Status:        req.Status,
		Notes:         req.Notes,
	})
	if err != nil {
		writeStoreError(w, r, "update opportunity", err)
		return
	}
	writeJSON(w, http.StatusOK, opportunityToResponse(o))
}

func (s *Server) handleDeleteOpportunity(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SoftDeleteOpportunity(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, r, "delete opportunity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListInstallments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	o, err := s.store.GetOpportunity(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "get opportunity", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "opportunity not found")
		return
	}
	items, err := s.store.ListInstallments(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "list installments", err)
		return
	}
	writeJSON(w, http.StatusOK, installmentsToResponse(items))
}

func (s *Server) handleRegenerateInstallments(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.RegenerateInstallments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "regenerate installments", err)
		return
	}
	logFor(r.Context()).Info("installments regenerated", "opportunity", r.PathValue("id"), "count", len(items))
	writeJSON(w, http.StatusOK, installmentsToResponse(items))
}
