package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/config"
	"github.com/diegolsarmond/jus-connect/internal/store"
)

const testPassword = "correct-horse-battery"

// TestHarness wraps a full Server with a real HTTP listener for integration tests.
type TestHarness struct {
	t       *testing.T
	Server  *Server
	Store   *store.Store
	BaseURL string
	client  *http.Client
	httpSrv *httptest.Server
}

// newTestHarness creates a TestHarness over an in-memory database.
func newTestHarness(t *testing.T, opts ...func(*config.Config)) *TestHarness {
	t.Helper()

	st, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	cfg := &config.Config{
		ListenAddr:     ":0",
		RateLimitAuth:  100000,
		RateLimitOther: 100000,
		SessionTTL:     time.Hour,
		OfficeName:     "Souza & Lima Advogados",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	srv, err := NewServer(cfg, st)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	httpSrv := httptest.NewServer(srv.Handler())

	h := &TestHarness{
		t:       t,
		Server:  srv,
		Store:   st,
		BaseURL: httpSrv.URL,
		client:  &http.Client{},
		httpSrv: httpSrv,
	}

	t.Cleanup(func() {
		httpSrv.Close()
		srv.hooks.Close()
		srv.cancel()
		st.Close()
	})

	return h
}

// Do sends an HTTP request and returns the response.
// Caller must close resp.Body unless using assertion helpers (AssertStatus,
// AssertErrorResponse, ReadJSON) which close it automatically.
func (h *TestHarness) Do(method, path, token string, body any) *http.Response {
	h.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
	}

	req, err := http.NewRequest(method, h.BaseURL+path, &buf)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do request %s %s: %v", method, path, err)
	}
	return resp
}

// DoJSON sends an HTTP request and decodes the JSON response into out.
// Fatals if the response status is >= 400 or if JSON decoding fails.
func (h *TestHarness) DoJSON(method, path, token string, body any, out any) *http.Response {
	h.t.Helper()

	resp := h.Do(method, path, token, body)
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("DoJSON %s %s: expected success, got %d: %s", method, path, resp.StatusCode, respBody)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
	return resp
}

// CreateUser creates a user with the given role and a session token.
func (h *TestHarness) CreateUser(email, role string) (userID, token string) {
	h.t.Helper()

	ctx := context.Background()
	user, err := h.Store.CreateUser(ctx, store.NewUser{
		Name:     email,
		Email:    email,
		Password: testPassword,
		Role:     role,
	})
	if err != nil {
		h.t.Fatalf("create user: %v", err)
	}
	tok, _, err := h.Store.GenerateAPIKey(ctx, user.ID, "test", nil)
	if err != nil {
		h.t.Fatalf("generate api key: %v", err)
	}
	return user.ID, tok
}

// CreateClient creates a client through the API and returns its ID.
func (h *TestHarness) CreateClient(token, name string) string {
	h.t.Helper()

	var c ClientResponse
	resp := h.DoJSON("POST", "/v1/clients", token, map[string]any{
		"name":     name,
		"kind":     "pf",
		"document": "123.456.789-09",
	}, &c)
	if resp.StatusCode != http.StatusCreated {
		h.t.Fatalf("create client: expected 201, got %d", resp.StatusCode)
	}
	return c.ID
}

// CreateOpportunity creates an opportunity with a three-installment plan of
// R$ 1.000,00 starting on 2026-01-10.
func (h *TestHarness) CreateOpportunity(token, clientID string) OpportunityResponse {
	h.t.Helper()

	var o OpportunityResponse
	h.DoJSON("POST", "/v1/opportunities", token, map[string]any{
		"title":          "Ação trabalhista",
		"client_id":      clientID,
		"process_number": "0001234-56.2026.5.02.0001",
		"value":          "1000.00",
		"installments":   3,
		"first_due_date": "2026-01-10",
	}, &o)
	return o
}

// --- Response assertion helpers ---

// AssertStatus checks the HTTP status code matches expected. Reads and closes the body on failure.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, string(body))
	}
}

// AssertErrorResponse checks the response has the expected status and error code.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, resp.StatusCode, string(body))
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q: %s", expectedCode, errResp.Error.Code, errResp.Error.Message)
	}
}

// ReadJSON decodes a JSON response body into the given type.
func ReadJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json response: %v", err)
	}
	return out
}
