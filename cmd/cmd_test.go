package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func mustCreateUser(t *testing.T, st *store.Store, email, role string) *store.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), store.NewUser{
		Name: email, Email: email, Password: "correct-horse-battery", Role: role,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestSetRoleGrantAndRevoke(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	mustCreateUser(t, st, "admin@example.com", store.RoleAdmin)
	mustCreateUser(t, st, "ana@example.com", store.RoleLawyer)

	u, err := setRole(ctx, st, "ana@example.com", store.RoleAdmin)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !u.IsAdmin() {
		t.Fatalf("expected admin, got %q", u.Role)
	}

	if _, err := setRole(ctx, st, "admin@example.com", store.RoleLawyer); err != nil {
		t.Fatalf("revoke with another admin left: %v", err)
	}
	if _, err := setRole(ctx, st, "ana@example.com", store.RoleAssistant); err == nil {
		t.Fatal("expected refusal to demote the last admin")
	}
	if _, err := setRole(ctx, st, "nobody@example.com", store.RoleAdmin); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestCreateKey(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	u := mustCreateUser(t, st, "ana@example.com", store.RoleLawyer)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	plaintext, key, err := createKey(ctx, st, "ana@example.com", "integracao", "90d", now)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if key.ExpiresAt == nil || !key.ExpiresAt.Equal(now.Add(90*24*time.Hour)) {
		t.Fatalf("unexpected expiry: %v", key.ExpiresAt)
	}

	_, owner, err := st.VerifyAPIKey(ctx, plaintext)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if owner == nil || owner.ID != u.ID {
		t.Fatal("expected key to authenticate its owner")
	}

	_, key, err = createKey(ctx, st, "ana@example.com", "permanente", "", now)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if key.ExpiresAt != nil {
		t.Fatal("expected key without expiry")
	}

	if _, _, err := createKey(ctx, st, "ana@example.com", "x", "soon", now); err == nil {
		t.Fatal("expected invalid expiry to fail")
	}
}

func TestLoadVarsFlattensNestedMaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.yaml")
	content := `cliente:
  nome: Maria Souza
  documento: "123.456.789-09"
processo:
  numero: 0001234-56.2026.5.02.0001
parcelas: 3
vazio:
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	vars, err := loadVars(path)
	if err != nil {
		t.Fatalf("load vars: %v", err)
	}
	want := map[string]string{
		"cliente.nome":      "Maria Souza",
		"cliente.documento": "123.456.789-09",
		"processo.numero":   "0001234-56.2026.5.02.0001",
		"parcelas":          "3",
		"vazio":             "",
	}
	for k, v := range want {
		if vars[k] != v {
			t.Errorf("%s = %q, want %q", k, vars[k], v)
		}
	}
	if len(vars) != len(want) {
		t.Errorf("got %d vars, want %d", len(vars), len(want))
	}
}

func TestLoadVarsRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.yaml")
	if err := os.WriteFile(path, []byte("cliente: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadVars(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPostTitle(t *testing.T) {
	tests := []struct {
		body, path, want string
	}{
		{"# Direito do Consumidor\n\ntexto", "a.md", "Direito do Consumidor"},
		{"intro\n\n## Segunda seção\n", "a.md", "Segunda seção"},
		{"sem título", "/tmp/guia-inventario.md", "guia-inventario"},
		{"sem título", "-", "sem-titulo"},
	}
	for _, tt := range tests {
		if got := postTitle(tt.body, tt.path); got != tt.want {
			t.Errorf("postTitle(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestRootCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"}, {"migrate"}, {"admin", "create-user"}, {"admin", "grant"},
		{"admin", "revoke"}, {"admin", "create-key"}, {"render"},
		{"flows", "summary"}, {"flows", "list"}, {"posts", "preview"},
	} {
		c, _, err := rootCmd.Find(path)
		if err != nil || c == rootCmd {
			t.Errorf("command %v not registered", path)
		}
	}
}

func TestNormalizeFlagName(t *testing.T) {
	if got := normalizeFlagName(nil, "paid_at"); got != "paid-at" {
		t.Errorf("normalizeFlagName = %q, want paid-at", got)
	}
	if f := flowsSummaryCmd.Flags().Lookup("from"); f == nil {
		t.Fatal("summary --from flag missing")
	}
}
