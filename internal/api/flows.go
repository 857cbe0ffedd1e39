package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/diegolsarmond/jus-connect/internal/dateparse"
	"github.com/diegolsarmond/jus-connect/internal/financial"
	"github.com/diegolsarmond/jus-connect/internal/webhook"
)

// FlowRequest is the body of POST and PATCH on /v1/financial/flows.
type FlowRequest struct {
	Kind          *string          `json:"kind"`
	Description   *string          `json:"description"`
	Amount        *decimal.Decimal `json:"amount"`
	DueDate       *string          `json:"due_date"`
	Status        *string          `json:"status"`
	ClientID      *string          `json:"client_id"`
	OpportunityID *string          `json:"opportunity_id"`
	Category      *string          `json:"category"`
}

// SettleRequest is the body of POST /v1/financial/flows/{id}/settle.
type SettleRequest struct {
	PaidAt string `json:"paid_at"`
}

// FlowListResponse wraps a page of flows.
type FlowListResponse struct {
	Flows  []financial.Flow `json:"flows"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// flowQuery builds a financial.Query from query parameters. Dates may be
// relative ("-30d", "month-start") and are resolved against the server clock.
func (s *Server) flowQuery(r *http.Request) (financial.Query, string) {
	v := r.URL.Query()
	limit, offset := pagination(r)
	q := financial.Query{
		Kind:          v.Get("kind"),
		Status:        v.Get("status"),
		ClientID:      v.Get("client_id"),
		OpportunityID: v.Get("opportunity_id"),
		Search:        v.Get("q"),
		Limit:         limit,
		Offset:        offset,
	}
	for name, dst := range map[string]*string{"from": &q.From, "to": &q.To} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		d, err := dateparse.ParseDateFrom(raw, s.now())
		if err != nil {
			return q, "invalid " + name + " date: " + raw
		}
		*dst = d
	}
	return q, ""
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	q, problem := s.flowQuery(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, problem)
		return
	}
	flows, err := s.flows.List(r.Context(), q)
	if err != nil {
		writeStoreError(w, r, "list flows", err)
		return
	}
	if flows == nil {
		flows = []financial.Flow{}
	}
	writeJSON(w, http.StatusOK, FlowListResponse{Flows: flows, Limit: q.Limit, Offset: q.Offset})
}

func (s *Server) handleFlowSummary(w http.ResponseWriter, r *http.Request) {
	q, problem := s.flowQuery(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, problem)
		return
	}
	sum, err := s.flows.Summary(r.Context(), q)
	if err != nil {
		writeStoreError(w, r, "summarize flows", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var req FlowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := financial.NewFlow{
		Kind:          deref(req.Kind),
		Description:   deref(req.Description),
		DueDate:       deref(req.DueDate),
		ClientID:      deref(req.ClientID),
		OpportunityID: deref(req.OpportunityID),
		Category:      deref(req.Category),
	}
	if req.Amount != nil {
		in.Amount = *req.Amount
	}
	f, err := s.flows.Create(r.Context(), in)
	if err != nil {
		writeStoreError(w, r, "create flow", err)
		return
	}
	s.hooks.Notify(webhook.FlowCreated, f)
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flows.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get flow", err)
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "flow not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	var req FlowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := s.flows.Update(r.Context(), r.PathValue("id"), financial.FlowPatch{
		Kind:        req.Kind,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     req.DueDate,
		Status:      req.Status,
		Category:    req.Category,
	})
	if err != nil {
		writeStoreError(w, r, "update flow", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, r, "delete flow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSettleFlow(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	paidAt := req.PaidAt
	if paidAt != "" {
		d, err := dateparse.ParseDateFrom(paidAt, s.now())
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "paid_at: "+err.Error())
			return
		}
		paidAt = d
	}
	f, err := s.flows.Settle(r.Context(), r.PathValue("id"), paidAt)
	if err != nil {
		writeStoreError(w, r, "settle flow", err)
		return
	}
	logFor(r.Context()).Info("flow settled", "id", f.ID, "origin", f.Origin, "paid_at", paidAt)
	s.hooks.Notify(webhook.FlowSettled, f)
	writeJSON(w, http.StatusOK, f)
}
