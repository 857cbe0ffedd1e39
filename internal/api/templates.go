package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/store"
	"github.com/diegolsarmond/jus-connect/internal/templating"
)

// TemplateResponse is the JSON representation of a template.
type TemplateResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Content     json.RawMessage `json:"content"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func templateToResponse(t *store.Template) TemplateResponse {
	return TemplateResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Content:     t.Content,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// TemplateRequest is the body of POST and PATCH on /v1/templates.
type TemplateRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Content     json.RawMessage `json:"content"`
}

// RenderRequest is the body of POST /v1/templates/{id}/render.
type RenderRequest struct {
	OpportunityID string            `json:"opportunity_id"`
	ClientID      string            `json:"client_id"`
	Extra         map[string]string `json:"extra"`
}

// RenderResponse is a rendered document in every output form.
type RenderResponse struct {
	HTML    string           `json:"html"`
	Text    string           `json:"text"`
	Content *templating.Node `json:"content"`
	Missing []string         `json:"missing"`
}

// VariablesResponse lists what a template references and what the server can fill.
type VariablesResponse struct {
	Placeholders []string `json:"placeholders"`
	Known        []string `json:"known"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context())
	if err != nil {
		writeStoreError(w, r, "list templates", err)
		return
	}
	resp := make([]TemplateResponse, 0, len(templates))
	for _, t := range templates {
		resp = append(resp, templateToResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Content) > 0 {
		if _, err := templating.Parse(req.Content); err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
			return
		}
	}
	t, err := s.store.CreateTemplate(r.Context(), store.Template{
		Title:       deref(req.Title),
		Description: deref(req.Description),
		Content:     req.Content,
	})
	if err != nil {
		writeStoreError(w, r, "create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, templateToResponse(t))
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) *store.Template {
	t, err := s.store.GetTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get template", err)
		return nil
	}
	if t == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "template not found")
		return nil
	}
	return t
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	if t := s.getTemplate(w, r); t != nil {
		writeJSON(w, http.StatusOK, templateToResponse(t))
	}
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Content) > 0 {
		if _, err := templating.Parse(req.Content); err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
			return
		}
	}
	t, err := s.store.UpdateTemplate(r.Context(), r.PathValue("id"), store.TemplatePatch{
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
	})
	if err != nil {
		writeStoreError(w, r, "update template", err)
		return
	}
	writeJSON(w, http.StatusOK, templateToResponse(t))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTemplate(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, r, "delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTemplateVariables(w http.ResponseWriter, r *http.Request) {
	t := s.getTemplate(w, r)
	if t == nil {
		return
	}
	doc, err := templating.Parse(t.Content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, VariablesResponse{
		Placeholders: templating.Placeholders(doc),
		Known:        templating.Known,
	})
}

// handleRenderTemplate fills a template from an opportunity (or a bare
// client), its installments, its responsible lawyer and the office.
func (s *Server) handleRenderTemplate(w http.ResponseWriter, r *http.Request) {
	t := s.getTemplate(w, r)
	if t == nil {
		return
	}
	var req RenderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject, ok := s.renderSubject(w, r, req)
	if !ok {
		return
	}

	doc, err := templating.Parse(t.Content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}
	res, err := templating.Render(doc, templating.Variables(subject))
	if err != nil {
		writeStoreError(w, r, "render template", err)
		return
	}
	s.metrics.RecordRender()
	if len(res.Missing) > 0 {
		logFor(r.Context()).Debug("template rendered with missing values", "template", t.ID, "missing", res.Missing)
	}

	writeJSON(w, http.StatusOK, RenderResponse{
		HTML:    templating.ToHTML(res.Content),
		Text:    templating.ToText(res.Content),
		Content: res.Content,
		Missing: res.Missing,
	})
}

func (s *Server) renderSubject(w http.ResponseWriter, r *http.Request, req RenderRequest) (templating.Subject, bool) {
	ctx := r.Context()
	subject := templating.Subject{
		Office: s.config.OfficeName,
		Now:    s.now(),
		Extra:  req.Extra,
	}

	clientID := req.ClientID
	responsibleID := getUserFromContext(ctx).UserID
	if req.OpportunityID != "" {
		o, err := s.store.GetOpportunity(ctx, req.OpportunityID)
		if err != nil {
			writeStoreError(w, r, "get opportunity", err)
			return subject, false
		}
		if o == nil {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "opportunity not found")
			return subject, false
		}
		subject.Opportunity = o
		clientID = o.ClientID
		if o.ResponsibleID != "" {
			responsibleID = o.ResponsibleID
		}
		if subject.Installments, err = s.store.ListInstallments(ctx, o.ID); err != nil {
			writeStoreError(w, r, "list installments", err)
			return subject, false
		}
	}

	if clientID != "" {
		c, err := s.store.GetClient(ctx, clientID)
		if err != nil {
			writeStoreError(w, r, "get client", err)
			return subject, false
		}
		subject.Client = c
	}

	u, err := s.store.GetUserByID(ctx, responsibleID)
	if err != nil {
		writeStoreError(w, r, "get user", err)
		return subject, false
	}
	subject.User = u
	return subject, true
}
