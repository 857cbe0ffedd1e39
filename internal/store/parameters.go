package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Parameter kinds backing the office's lookup tables.
const (
	ParamArea      = "area"
	ParamStage     = "stage"
	ParamEventType = "event_type"
	ParamSituation = "situation"
)

// IsValidParameterKind reports whether kind names a lookup table.
func IsValidParameterKind(kind string) bool {
	switch kind {
	case ParamArea, ParamStage, ParamEventType, ParamSituation:
		return true
	}
	return false
}

// Parameter is one entry of a lookup table (practice area, pipeline stage...).
type Parameter struct {
	ID        string
	Kind      string
	Name      string
	Position  int
	Active    bool
	CreatedAt time.Time
}

// ParameterPatch carries optional updates.
type ParameterPatch struct {
	Name     *string
	Position *int
	Active   *bool
}

func nameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// CreateParameter inserts a parameter; names are unique per kind, ignoring case.
func (s *Store) CreateParameter(ctx context.Context, kind, name string, position int) (*Parameter, error) {
	if !IsValidParameterKind(kind) {
		return nil, Invalidf("invalid parameter kind: %s", kind)
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil, Invalidf("name is required")
	}

	p := &Parameter{ID: mustID("pm_"), Kind: kind, Name: name, Position: position, Active: true, CreatedAt: time.Now().UTC()}
	_, err := s.ExecContext(ctx,
		`INSERT INTO parameters (id, kind, name, name_key, position, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Kind, p.Name, nameKey(name), p.Position, p.Active, p.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("%s %q already exists: %w", kind, name, ErrConflict)
		}
		return nil, fmt.Errorf("insert parameter: %w", err)
	}
	return p, nil
}

// ListParameters returns the entries of a kind ordered by position then name.
func (s *Store) ListParameters(ctx context.Context, kind string, onlyActive bool) ([]*Parameter, error) {
	query := `SELECT id, kind, name, position, active, created_at FROM parameters WHERE kind = ?`
	args := []any{kind}
	if onlyActive {
		query += ` AND active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY position, name`

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	defer rows.Close()

	var out []*Parameter
	for rows.Next() {
		p := &Parameter{}
		if err := rows.Scan(&p.ID, &p.Kind, &p.Name, &p.Position, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list parameters: iterate: %w", err)
	}
	return out, nil
}

// UpdateParameter applies a partial update to a parameter of the given kind.
func (s *Store) UpdateParameter(ctx context.Context, kind, id string, patch ParameterPatch) (*Parameter, error) {
	p := &Parameter{}
	err := s.queryRow(ctx,
		`SELECT id, kind, name, position, active, created_at FROM parameters WHERE id = ? AND kind = ?`, id, kind,
	).Scan(&p.ID, &p.Kind, &p.Name, &p.Position, &p.Active, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("parameter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get parameter: %w", err)
	}
	if patch.Name != nil {
		name := strings.Join(strings.Fields(*patch.Name), " ")
		if name == "" {
			return nil, Invalidf("name cannot be empty")
		}
		p.Name = name
	}
	if patch.Position != nil {
		p.Position = *patch.Position
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}

	_, err = s.ExecContext(ctx,
		`UPDATE parameters SET name = ?, name_key = ?, position = ?, active = ? WHERE id = ?`,
		p.Name, nameKey(p.Name), p.Position, p.Active, id,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("%s %q already exists: %w", kind, p.Name, ErrConflict)
		}
		return nil, fmt.Errorf("update parameter: %w", err)
	}
	return p, nil
}

// DeleteParameter removes a parameter of the given kind.
func (s *Store) DeleteParameter(ctx context.Context, kind, id string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM parameters WHERE id = ? AND kind = ?`, id, kind)
	if err != nil {
		return fmt.Errorf("delete parameter: %w", err)
	}
	return affected(res, "parameter", id)
}
