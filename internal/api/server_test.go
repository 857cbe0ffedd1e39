package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/diegolsarmond/jus-connect/internal/config"
	"github.com/diegolsarmond/jus-connect/internal/store"
)

func TestNewServerRequiresConfig(t *testing.T) {
	if _, err := NewServer(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHarness(t)

	resp := h.Do("GET", "/healthz", "", nil)
	AssertStatus(t, resp, http.StatusOK)
	body := ReadJSON[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", body["status"])
	}
}

func TestMetricsEndpoints(t *testing.T) {
	h := newTestHarness(t)

	resp := h.Do("GET", "/healthz", "", nil)
	resp.Body.Close()

	resp = h.Do("GET", "/metricz", "", nil)
	AssertStatus(t, resp, http.StatusOK)
	snap := ReadJSON[MetricsSnapshot](t, resp)
	if snap.Requests < 1 {
		t.Fatalf("expected at least one request counted, got %d", snap.Requests)
	}

	resp = h.Do("GET", "/metrics", "", nil)
	AssertStatus(t, resp, http.StatusOK)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	text := string(raw)
	for _, want := range []string{"jus_http_requests_total", `route="GET /healthz"`, "jus_template_renders_total", "go_goroutines"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in /metrics output", want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestHarness(t)

	resp := h.Do("GET", "/healthz", "", nil)
	resp.Body.Close()
	if _, err := uuid.Parse(resp.Header.Get("X-Request-ID")); err != nil {
		t.Fatalf("expected generated uuid request id, got %q", resp.Header.Get("X-Request-ID"))
	}

	want := uuid.NewString()
	req, _ := http.NewRequest("GET", h.BaseURL+"/healthz", nil)
	req.Header.Set("X-Request-ID", want)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != want {
		t.Fatalf("expected request id %q to be echoed, got %q", want, got)
	}

	req, _ = http.NewRequest("GET", h.BaseURL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "not a uuid")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got == "not a uuid" {
		t.Fatal("expected malformed request id to be replaced")
	}
}

func TestAuthRequired(t *testing.T) {
	h := newTestHarness(t)

	resp := h.Do("GET", "/v1/clients", "", nil)
	AssertErrorResponse(t, resp, http.StatusUnauthorized, ErrCodeUnauthorized)

	resp = h.Do("GET", "/v1/clients", "jus_doesnotexist", nil)
	AssertErrorResponse(t, resp, http.StatusUnauthorized, ErrCodeUnauthorized)

	req, _ := http.NewRequest("GET", h.BaseURL+"/v1/clients", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	AssertErrorResponse(t, resp, http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestRoleEnforcement(t *testing.T) {
	h := newTestHarness(t)
	_, assistant := h.CreateUser("assistente@example.com", store.RoleAssistant)

	resp := h.Do("GET", "/v1/users", assistant, nil)
	AssertErrorResponse(t, resp, http.StatusForbidden, ErrCodeForbidden)

	resp = h.Do("GET", "/v1/clients", assistant, nil)
	AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	clientID := h.CreateClient(assistant, "Maria Souza")
	resp = h.Do("DELETE", "/v1/clients/"+clientID, assistant, nil)
	AssertErrorResponse(t, resp, http.StatusForbidden, ErrCodeForbidden)
}

func TestSignupDisabled(t *testing.T) {
	h := newTestHarness(t)

	resp := h.Do("POST", "/v1/auth/signup", "", SignupRequest{Email: "a@example.com", Password: testPassword})
	AssertErrorResponse(t, resp, http.StatusForbidden, ErrCodeSignupDisabled)
}

func TestSignupFirstUserIsAdmin(t *testing.T) {
	h := newTestHarness(t, func(cfg *config.Config) { cfg.AllowSignup = true })

	var first SessionResponse
	resp := h.DoJSON("POST", "/v1/auth/signup", "", SignupRequest{Name: "Ana", Email: "Ana@Example.com", Password: testPassword}, &first)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if first.User.Role != store.RoleAdmin || !first.User.IsAdmin {
		t.Fatalf("expected first user to be admin, got %q", first.User.Role)
	}
	if first.User.Email != "ana@example.com" {
		t.Fatalf("expected lowercased email, got %q", first.User.Email)
	}
	if first.Token == "" || first.ExpiresAt == nil {
		t.Fatal("expected a session token with expiry")
	}

	var second SessionResponse
	h.DoJSON("POST", "/v1/auth/signup", "", SignupRequest{Email: "bruno@example.com", Password: testPassword}, &second)
	if second.User.Role != store.RoleAssistant {
		t.Fatalf("expected second user to be assistant, got %q", second.User.Role)
	}

	resp = h.Do("POST", "/v1/auth/signup", "", SignupRequest{Email: "ana@example.com", Password: testPassword})
	AssertErrorResponse(t, resp, http.StatusConflict, ErrCodeConflict)

	resp = h.Do("POST", "/v1/auth/signup", "", SignupRequest{Email: "curto@example.com", Password: "short"})
	AssertErrorResponse(t, resp, http.StatusUnprocessableEntity, ErrCodeValidation)
}

func TestLoginLogout(t *testing.T) {
	h := newTestHarness(t)
	h.CreateUser("carla@example.com", store.RoleLawyer)

	resp := h.Do("POST", "/v1/auth/login", "", LoginRequest{Email: "carla@example.com", Password: "wrong-password"})
	AssertErrorResponse(t, resp, http.StatusUnauthorized, ErrCodeUnauthorized)

	resp = h.Do("POST", "/v1/auth/login", "", LoginRequest{Email: "carla@example.com"})
	AssertErrorResponse(t, resp, http.StatusBadRequest, ErrCodeBadRequest)

	var session SessionResponse
	h.DoJSON("POST", "/v1/auth/login", "", LoginRequest{Email: "carla@example.com", Password: testPassword}, &session)
	if session.User.Role != store.RoleLawyer {
		t.Fatalf("expected lawyer, got %q", session.User.Role)
	}

	var me UserResponse
	h.DoJSON("GET", "/v1/auth/me", session.Token, nil, &me)
	if me.Email != "carla@example.com" || me.LastLoginAt == nil {
		t.Fatalf("unexpected me response: %+v", me)
	}

	resp = h.Do("POST", "/v1/auth/logout", session.Token, nil)
	AssertStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = h.Do("GET", "/v1/auth/me", session.Token, nil)
	AssertErrorResponse(t, resp, http.StatusUnauthorized, ErrCodeUnauthorized)

	events, err := h.Store.ListAuthEvents(context.Background(), "carla@example.com", 10)
	if err != nil {
		t.Fatalf("list auth events: %v", err)
	}
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.EventType)
	}
	want := []string{store.AuthEventLogout, store.AuthEventLogin, store.AuthEventLoginFailed}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
}

func TestInactiveUserCannotAuthenticate(t *testing.T) {
	h := newTestHarness(t)
	_, admin := h.CreateUser("admin@example.com", store.RoleAdmin)
	uid, token := h.CreateUser("joao@example.com", store.RoleAssistant)

	var updated UserResponse
	h.DoJSON("PATCH", "/v1/users/"+uid, admin, map[string]any{"active": false}, &updated)
	if updated.Active {
		t.Fatal("expected user to be deactivated")
	}

	resp := h.Do("GET", "/v1/clients", token, nil)
	AssertErrorResponse(t, resp, http.StatusUnauthorized, ErrCodeUnauthorized)

	resp = h.Do("POST", "/v1/auth/login", "", LoginRequest{Email: "joao@example.com", Password: testPassword})
	AssertErrorResponse(t, resp, http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestUserAdministration(t *testing.T) {
	h := newTestHarness(t)
	adminID, admin := h.CreateUser("admin@example.com", store.RoleAdmin)

	var created UserResponse
	resp := h.DoJSON("POST", "/v1/users", admin, CreateUserRequest{
		Name:     "Dra. Beatriz",
		Email:    "beatriz@example.com",
		Password: testPassword,
		Role:     store.RoleLawyer,
		OAB:      "SP123456",
	}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if created.OAB != "SP123456" || created.IsAdmin {
		t.Fatalf("unexpected user: %+v", created)
	}

	resp = h.Do("POST", "/v1/users", admin, CreateUserRequest{Email: "x@example.com", Role: "owner"})
	AssertErrorResponse(t, resp, http.StatusUnprocessableEntity, ErrCodeValidation)

	var list []UserResponse
	h.DoJSON("GET", "/v1/users?q=beatriz", admin, nil, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("expected search to find beatriz, got %+v", list)
	}

	// The only admin can neither be demoted nor deleted.
	resp = h.Do("PATCH", "/v1/users/"+adminID, admin, map[string]any{"role": store.RoleLawyer})
	AssertErrorResponse(t, resp, http.StatusConflict, ErrCodeConflict)
	resp = h.Do("DELETE", "/v1/users/"+adminID, admin, nil)
	AssertErrorResponse(t, resp, http.StatusConflict, ErrCodeConflict)

	resp = h.Do("DELETE", "/v1/users/"+created.ID, admin, nil)
	AssertStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = h.Do("GET", "/v1/users/"+created.ID, admin, nil)
	AssertErrorResponse(t, resp, http.StatusNotFound, ErrCodeNotFound)
}

func TestInvalidJSONBody(t *testing.T) {
	h := newTestHarness(t)
	_, token := h.CreateUser("lawyer@example.com", store.RoleLawyer)

	req, _ := http.NewRequest("POST", h.BaseURL+"/v1/clients", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	AssertErrorResponse(t, resp, http.StatusBadRequest, ErrCodeBadRequest)
}
