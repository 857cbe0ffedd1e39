package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Client kinds: natural person (CPF) or legal entity (CNPJ).
const (
	ClientPF = "pf"
	ClientPJ = "pj"
)

// Client is a person or company represented by the office.
type Client struct {
	ID        string
	Name      string
	Kind      string
	Document  string
	Email     string
	Phone     string
	Address   string
	City      string
	State     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ClientPatch carries optional client updates; nil fields are left unchanged.
type ClientPatch struct {
	Name     *string
	Kind     *string
	Document *string
	Email    *string
	Phone    *string
	Address  *string
	City     *string
	State    *string
	Notes    *string
}

// ClientFilter narrows ListClients.
type ClientFilter struct {
	Search string
	Limit  int
	Offset int
}

const clientColumns = `id, name, kind, document, email, phone, address, city, state, notes, created_at, updated_at, deleted_at`

func scanClient(sc interface{ Scan(...any) error }) (*Client, error) {
	c := &Client{}
	err := sc.Scan(&c.ID, &c.Name, &c.Kind, &c.Document, &c.Email, &c.Phone, &c.Address, &c.City, &c.State, &c.Notes, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	return c, err
}

// DigitsOnly strips everything but ASCII digits; documents are stored normalized.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validateClient(c *Client) error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalidf("client name is required")
	}
	switch c.Kind {
	case ClientPF, ClientPJ:
	default:
		return Invalidf("invalid client kind: %s", c.Kind)
	}
	if c.Document != "" {
		want := 11
		if c.Kind == ClientPJ {
			want = 14
		}
		if len(c.Document) != want {
			return Invalidf("document must have %d digits for kind %s", want, c.Kind)
		}
	}
	return nil
}

// CreateClient inserts a client. Kind defaults to pf.
func (s *Store) CreateClient(ctx context.Context, c Client) (*Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Document = DigitsOnly(c.Document)
	if c.Kind == "" {
		c.Kind = ClientPF
	}
	if err := validateClient(&c); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c.ID = mustID("c_")
	c.CreatedAt, c.UpdatedAt, c.DeletedAt = now, now, nil

	_, err := s.ExecContext(ctx,
		`INSERT INTO clients (id, name, kind, document, email, phone, address, city, state, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Kind, c.Document, c.Email, c.Phone, c.Address, c.City, c.State, c.Notes, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return &c, nil
}

// GetClient returns a live client by ID, or nil if not found.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	c, err := scanClient(s.queryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ? AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// ListClients returns live clients ordered by name.
func (s *Store) ListClients(ctx context.Context, f ClientFilter) ([]*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE deleted_at IS NULL`
	var args []any
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		args = append(args, like, like)
		if digits := DigitsOnly(search); digits != "" {
			query += ` AND (LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR document LIKE ?)`
			args = append(args, "%"+digits+"%")
		} else {
			query += ` AND (LOWER(name) LIKE ? OR LOWER(email) LIKE ?)`
		}
	}
	query += ` ORDER BY name LIMIT ? OFFSET ?`
	args = append(args, normalizeLimit(f.Limit), max(f.Offset, 0))

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list clients: iterate: %w", err)
	}
	return clients, nil
}

// UpdateClient applies a partial update and returns the stored client.
func (s *Store) UpdateClient(ctx context.Context, id string, p ClientPatch) (*Client, error) {
	c, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&c.Name, p.Name)
	set(&c.Kind, p.Kind)
	set(&c.Phone, p.Phone)
	set(&c.Address, p.Address)
	set(&c.City, p.City)
	set(&c.State, p.State)
	set(&c.Notes, p.Notes)
	if p.Email != nil {
		c.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.Document != nil {
		c.Document = DigitsOnly(*p.Document)
	}
	if err := validateClient(c); err != nil {
		return nil, err
	}

	c.UpdatedAt = time.Now().UTC()
	res, err := s.ExecContext(ctx,
		`UPDATE clients SET name = ?, kind = ?, document = ?, email = ?, phone = ?, address = ?, city = ?, state = ?, notes = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		c.Name, c.Kind, c.Document, c.Email, c.Phone, c.Address, c.City, c.State, c.Notes, c.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	if err := affected(res, "client", id); err != nil {
		return nil, err
	}
	return c, nil
}

// SoftDeleteClient marks a client as deleted.
func (s *Store) SoftDeleteClient(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.ExecContext(ctx,
		`UPDATE clients SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("soft delete client: %w", err)
	}
	return affected(res, "client", id)
}
