package api

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/diegolsarmond/jus-connect/internal/financial"
	"github.com/diegolsarmond/jus-connect/internal/store"
)

func TestClientCRUD(t *testing.T) {
	h := newTestHarness(t)
	_, token := h.CreateUser("lawyer@example.com", store.RoleLawyer)

	id := h.CreateClient(token, "Maria Souza")

	var c ClientResponse
	h.DoJSON("GET", "/v1/clients/"+id, token, nil, &c)
	if c.Document != "12345678909" {
		t.Fatalf("expected normalized document, got %q", c.Document)
	}

	h.DoJSON("PATCH", "/v1/clients/"+id, token, map[string]any{"city": "Campinas", "state": "SP"}, &c)
	if c.City != "Campinas" || c.Name != "Maria Souza" {
		t.Fatalf("unexpected patched client: %+v", c)
	}

	resp := h.Do("POST", "/v1/clients", token, map[string]any{"name": "Empresa X", "kind": "pj", "document": "123"})
	AssertErrorResponse(t, resp, http.StatusUnprocessableEntity, ErrCodeValidation)

	h.CreateClient(token, "João Pereira")
	var list []ClientResponse
	h.DoJSON("GET", "/v1/clients?q=souza", token, nil, &list)
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("expected search to return Maria, got %+v", list)
	}

	resp = h.Do("DELETE", "/v1/clients/"+id, token, nil)
	AssertStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = h.Do("GET", "/v1/clients/"+id, token, nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)
}

func TestOpportunityInstallments(t *testing.T) {
	h := newTestHarness(t)
	uid, token := h.CreateUser("lawyer@example.com", store.RoleLawyer)
	clientID := h.CreateClient(token, "Maria Souza")

	o := h.CreateOpportunity(token, clientID)
	if o.ResponsibleID != uid {
		t.Fatalf("expected creator as responsible, got %q", o.ResponsibleID)
	}
	if o.Status != store.OpportunityOpen {
		t.Fatalf("expected open status, got %q", o.Status)
	}

	var items []InstallmentResponse
	h.DoJSON("GET", "/v1/opportunities/"+o.ID+"/installments", token, nil, &items)
	if len(items) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(items))
	}
	wantAmounts := []string{"333.33", "333.33", "333.34"}
	wantDates := []string{"2026-01-10", "2026-02-10", "2026-03-10"}
	for i, it := range items {
		if it.Amount.StringFixed(2) != wantAmounts[i] || it.DueDate != wantDates[i] || it.Number != i+1 {
			t.Errorf("installment %d: got %s due %s, want %s due %s", i+1, it.Amount.StringFixed(2), it.DueDate, wantAmounts[i], wantDates[i])
		}
	}

	// Change the value and regenerate the plan.
	h.DoJSON("PATCH", "/v1/opportunities/"+o.ID, token, map[string]any{"value": "1200.00", "installments": 2}, &o)
	h.DoJSON("POST", "/v1/opportunities/"+o.ID+"/installments/regenerate", token, nil, &items)
	if len(items) != 2 || items[0].Amount.StringFixed(2) != "600.00" {
		t.Fatalf("unexpected regenerated plan: %+v", items)
	}

	// Once an installment is paid the plan is frozen.
	var settled financial.Flow
	h.DoJSON("POST", "/v1/financial/flows/"+items[0].ID+"/settle", token, SettleRequest{PaidAt: "2026-01-09"}, &settled)
	if settled.Status != financial.StatusPaid || settled.Origin != financial.OriginInstallment {
		t.Fatalf("unexpected settled row: %+v", settled)
	}
	resp := h.Do("POST", "/v1/opportunities/"+o.ID+"/installments/regenerate", token, nil)
	AssertErrorResponse(t, resp, http.StatusConflict, ErrCodeConflict)

	resp = h.Do("POST", "/v1/opportunities", token, map[string]any{"title": "Sem cliente", "client_id": "c_missing"})
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)

	resp = h.Do("GET", "/v1/opportunities/o_missing/installments", token, nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)
}

func TestFinancialFlowEndpoints(t *testing.T) {
	h := newTestHarness(t)
	_, token := h.CreateUser("lawyer@example.com", store.RoleLawyer)
	clientID := h.CreateClient(token, "Maria Souza")
	o := h.CreateOpportunity(token, clientID)

	var created financial.Flow
	resp := h.DoJSON("POST", "/v1/financial/flows", token, map[string]any{
		"kind":        financial.KindExpense,
		"description": "Custas processuais",
		"amount":      "150.50",
		"due_date":    "2026-02-01",
		"category":    "custas",
	}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if created.Origin != financial.OriginFlow || !strings.HasPrefix(created.ID, "f_") {
		t.Fatalf("unexpected created flow: %+v", created)
	}

	var list FlowListResponse
	h.DoJSON("GET", "/v1/financial/flows", token, nil, &list)
	if len(list.Flows) != 4 {
		t.Fatalf("expected 1 flow and 3 installments, got %d", len(list.Flows))
	}

	h.DoJSON("GET", "/v1/financial/flows?kind=despesa", token, nil, &list)
	if len(list.Flows) != 1 || list.Flows[0].ID != created.ID {
		t.Fatalf("expected only the expense, got %+v", list.Flows)
	}

	h.DoJSON("GET", "/v1/financial/flows?opportunity_id="+o.ID+"&from=2026-02-01&to=2026-03-31", token, nil, &list)
	if len(list.Flows) != 2 {
		t.Fatalf("expected 2 installments in range, got %d", len(list.Flows))
	}

	resp = h.Do("GET", "/v1/financial/flows?from=2026-13-45", token, nil)
	AssertErrorResponse(t, resp, http.StatusBadRequest, ErrCodeBadRequest)

	var sum financial.Summary
	h.DoJSON("GET", "/v1/financial/summary", token, nil, &sum)
	if sum.Count != 4 {
		t.Fatalf("expected 4 rows summarized, got %d", sum.Count)
	}
	if !sum.Income.Total.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("income total = %s, want 1000", sum.Income.Total)
	}
	if !sum.Expense.Total.Equal(decimal.RequireFromString("150.50")) {
		t.Errorf("expense total = %s, want 150.50", sum.Expense.Total)
	}
	if len(sum.Months) != 3 {
		t.Errorf("expected 3 months, got %d", len(sum.Months))
	}

	var updated financial.Flow
	h.DoJSON("PATCH", "/v1/financial/flows/"+created.ID, token, map[string]any{"amount": "175.00"}, &updated)
	if updated.Amount.StringFixed(2) != "175.00" || updated.Description != "Custas processuais" {
		t.Fatalf("unexpected updated flow: %+v", updated)
	}

	var settled financial.Flow
	h.DoJSON("POST", "/v1/financial/flows/"+created.ID+"/settle", token, SettleRequest{PaidAt: "2026-02-03"}, &settled)
	if settled.Status != financial.StatusPaid || settled.PaidAt == nil || *settled.PaidAt != "2026-02-03" {
		t.Fatalf("unexpected settled flow: %+v", settled)
	}

	resp = h.Do("POST", "/v1/financial/flows", token, map[string]any{
		"kind": financial.KindIncome, "description": "x", "amount": "-5", "due_date": "2026-02-01",
	})
	AssertErrorResponse(t, resp, http.StatusUnprocessableEntity, ErrCodeValidation)

	resp = h.Do("DELETE", "/v1/financial/flows/"+created.ID, token, nil)
	AssertStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = h.Do("GET", "/v1/financial/flows/"+created.ID, token, nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)

	resp = h.Do("DELETE", "/v1/financial/flows/f_missing", token, nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)
}

func TestTemplateRender(t *testing.T) {
	h := newTestHarness(t)
	_, token := h.CreateUser("lawyer@example.com", store.RoleLawyer)
	clientID := h.CreateClient(token, "Maria Souza")
	o := h.CreateOpportunity(token, clientID)

	content := map[string]any{
		"type": "doc",
		"content": []any{
			map[string]any{
				"type": "paragraph",
				"content": []any{
					map[string]any{"type": "text", "text": "{{escritorio.nome}}: {{ cliente.nome }}, processo {{processo.numero}}. {{desconhecido}}"},
				},
			},
		},
	}

	var tpl TemplateResponse
	resp := h.DoJSON("POST", "/v1/templates", token, map[string]any{"title": "Procuração", "content": content}, &tpl)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var vars VariablesResponse
	h.DoJSON("GET", "/v1/templates/"+tpl.ID+"/variables", token, nil, &vars)
	want := "escritorio.nome,cliente.nome,processo.numero,desconhecido"
	if got := strings.Join(vars.Placeholders, ","); got != want {
		t.Fatalf("placeholders = %s, want %s", got, want)
	}
	if len(vars.Known) == 0 {
		t.Fatal("expected known variables")
	}

	var out RenderResponse
	h.DoJSON("POST", "/v1/templates/"+tpl.ID+"/render", token, RenderRequest{OpportunityID: o.ID}, &out)
	wantText := "Souza & Lima Advogados: Maria Souza, processo 0001234-56.2026.5.02.0001. {{desconhecido}}"
	if out.Text != wantText {
		t.Fatalf("text = %q, want %q", out.Text, wantText)
	}
	if !strings.Contains(out.HTML, "Souza &amp; Lima Advogados") {
		t.Fatalf("expected escaped office name in html: %s", out.HTML)
	}
	if len(out.Missing) != 1 || out.Missing[0] != "desconhecido" {
		t.Fatalf("missing = %v", out.Missing)
	}

	h.DoJSON("POST", "/v1/templates/"+tpl.ID+"/render", token, RenderRequest{
		OpportunityID: o.ID,
		Extra:         map[string]string{"desconhecido": "valor extra"},
	}, &out)
	if len(out.Missing) != 0 || !strings.HasSuffix(out.Text, "valor extra") {
		t.Fatalf("expected extra value to fill the gap, got %q missing %v", out.Text, out.Missing)
	}

	resp = h.Do("POST", "/v1/templates/"+tpl.ID+"/render", token, RenderRequest{OpportunityID: "o_missing"})
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)

	resp = h.Do("POST", "/v1/templates", token, map[string]any{"title": "Vazio", "content": "not a tree"})
	AssertErrorResponse(t, resp, http.StatusUnprocessableEntity, ErrCodeValidation)

	resp = h.Do("DELETE", "/v1/templates/"+tpl.ID, token, nil)
	AssertStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
}

func TestParameterEndpoints(t *testing.T) {
	h := newTestHarness(t)
	_, admin := h.CreateUser("admin@example.com", store.RoleAdmin)
	_, assistant := h.CreateUser("assistente@example.com", store.RoleAssistant)

	var p ParameterResponse
	resp := h.DoJSON("POST", "/v1/parameters/area", admin, map[string]any{"name": "  Trabalhista ", "position": 1}, &p)
	if resp.StatusCode != http.StatusCreated || p.Name != "Trabalhista" {
		t.Fatalf("unexpected parameter: %d %+v", resp.StatusCode, p)
	}

	resp = h.Do("POST", "/v1/parameters/area", admin, map[string]any{"name": "trabalhista"})
	AssertErrorResponse(t, resp, http.StatusConflict, ErrCodeConflict)

	resp = h.Do("POST", "/v1/parameters/area", assistant, map[string]any{"name": "Cível"})
	AssertErrorResponse(t, resp, http.StatusForbidden, ErrCodeForbidden)

	resp = h.Do("GET", "/v1/parameters/bogus", assistant, nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)

	h.DoJSON("PATCH", "/v1/parameters/area/"+p.ID, admin, map[string]any{"active": false}, &p)
	if p.Active {
		t.Fatal("expected parameter to be deactivated")
	}

	var list []ParameterResponse
	h.DoJSON("GET", "/v1/parameters/area?active=true", assistant, nil, &list)
	if len(list) != 0 {
		t.Fatalf("expected no active areas, got %d", len(list))
	}
	h.DoJSON("GET", "/v1/parameters/area", assistant, nil, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 area, got %d", len(list))
	}

	resp = h.Do("DELETE", "/v1/parameters/stage/"+p.ID, admin, nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)
	resp = h.Do("DELETE", "/v1/parameters/area/"+p.ID, admin, nil)
	AssertStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
}

func TestPostEndpoints(t *testing.T) {
	h := newTestHarness(t)
	_, admin := h.CreateUser("admin@example.com", store.RoleAdmin)

	var post PostResponse
	resp := h.DoJSON("POST", "/v1/admin/posts", admin, map[string]any{
		"title": "Direito do Consumidor: guia",
		"body":  "# Olá\n\nTexto **forte**.",
	}, &post)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if post.Slug != "direito-do-consumidor-guia" {
		t.Fatalf("slug = %q", post.Slug)
	}
	if post.Published || post.PublishedAt != nil {
		t.Fatal("expected draft post")
	}

	resp = h.Do("GET", "/v1/posts/"+post.Slug, "", nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)

	h.DoJSON("PATCH", "/v1/admin/posts/"+post.ID, admin, map[string]any{"published": true}, &post)
	if !post.Published || post.PublishedAt == nil {
		t.Fatal("expected published post with timestamp")
	}

	var public PostResponse
	h.DoJSON("GET", "/v1/posts/"+post.Slug, "", nil, &public)
	if !strings.Contains(public.HTML, "<strong>forte</strong>") {
		t.Fatalf("unexpected html: %s", public.HTML)
	}
	if public.Body != "" {
		t.Fatal("public view should not expose the markdown body")
	}

	var second PostResponse
	h.DoJSON("POST", "/v1/admin/posts", admin, map[string]any{"title": "Direito do consumidor — guia", "body": "x"}, &second)
	if second.Slug != "direito-do-consumidor-guia-2" {
		t.Fatalf("expected deduplicated slug, got %q", second.Slug)
	}

	var feed []PostResponse
	h.DoJSON("GET", "/v1/posts", "", nil, &feed)
	if len(feed) != 1 {
		t.Fatalf("expected 1 published post, got %d", len(feed))
	}
	h.DoJSON("GET", "/v1/admin/posts", admin, nil, &feed)
	if len(feed) != 2 {
		t.Fatalf("expected 2 posts in admin list, got %d", len(feed))
	}

	resp = h.Do("POST", "/v1/admin/posts", admin, map[string]any{"title": "   "})
	AssertErrorResponse(t, resp, http.StatusUnprocessableEntity, ErrCodeValidation)

	resp = h.Do("DELETE", "/v1/admin/posts/"+second.ID, admin, nil)
	AssertStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
}

func TestAppointmentEndpoints(t *testing.T) {
	h := newTestHarness(t)
	uid, token := h.CreateUser("lawyer@example.com", store.RoleLawyer)

	var a AppointmentResponse
	resp := h.DoJSON("POST", "/v1/appointments", token, map[string]any{
		"title":     "Audiência de conciliação",
		"starts_at": "2026-03-10T14:00:00Z",
		"location":  "Fórum Trabalhista",
	}, &a)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if a.EndsAt.Sub(a.StartsAt).Hours() != 1 || a.CreatedBy != uid {
		t.Fatalf("unexpected appointment: %+v", a)
	}

	var list []AppointmentResponse
	h.DoJSON("GET", "/v1/appointments?from=2026-03-01&to=2026-03-31", token, nil, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 appointment in march, got %d", len(list))
	}
	h.DoJSON("GET", "/v1/appointments?from=2026-04-01", token, nil, &list)
	if len(list) != 0 {
		t.Fatalf("expected none from april, got %d", len(list))
	}

	resp = h.Do("GET", "/v1/appointments?from=2026-13-45", token, nil)
	AssertErrorResponse(t, resp, http.StatusUnprocessableEntity, ErrCodeValidation)

	h.DoJSON("PATCH", "/v1/appointments/"+a.ID, token, map[string]any{"status": store.AppointmentDone}, &a)
	if a.Status != store.AppointmentDone {
		t.Fatalf("status = %q", a.Status)
	}

	resp = h.Do("POST", "/v1/appointments", token, map[string]any{
		"title":     "Invertido",
		"starts_at": "2026-03-10T14:00:00Z",
		"ends_at":   "2026-03-10T13:00:00Z",
	})
	AssertErrorResponse(t, resp, http.StatusUnprocessableEntity, ErrCodeValidation)

	resp = h.Do("DELETE", "/v1/appointments/"+a.ID, token, nil)
	AssertStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = h.Do("GET", fmt.Sprintf("/v1/appointments/%s", a.ID), token, nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)
}
