package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Template is a document template; Content holds the editor's JSON tree.
type Template struct {
	ID          string
	Title       string
	Description string
	Content     json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TemplatePatch carries optional template updates.
type TemplatePatch struct {
	Title       *string
	Description *string
	Content     json.RawMessage
}

func scanTemplate(sc interface{ Scan(...any) error }) (*Template, error) {
	t := &Template{}
	var content string
	if err := sc.Scan(&t.ID, &t.Title, &t.Description, &content, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Content = json.RawMessage(content)
	return t, nil
}

func normalizeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	if !json.Valid(raw) {
		return "", Invalidf("content must be valid JSON")
	}
	return string(raw), nil
}

// CreateTemplate inserts a template.
func (s *Store) CreateTemplate(ctx context.Context, t Template) (*Template, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return nil, Invalidf("title is required")
	}
	content, err := normalizeContent(t.Content)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.ID = mustID("t_")
	t.Content = json.RawMessage(content)
	t.CreatedAt, t.UpdatedAt = now, now
	_, err = s.ExecContext(ctx,
		`INSERT INTO templates (id, title, description, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, content, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	return &t, nil
}

// GetTemplate returns a template by ID, or nil if not found.
func (s *Store) GetTemplate(ctx context.Context, id string) (*Template, error) {
	t, err := scanTemplate(s.queryRow(ctx,
		`SELECT id, title, description, content, created_at, updated_at FROM templates WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns all templates ordered by title.
func (s *Store) ListTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := s.QueryContext(ctx, `SELECT id, title, description, content, created_at, updated_at FROM templates ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: iterate: %w", err)
	}
	return out, nil
}

// UpdateTemplate applies a partial update.
func (s *Store) UpdateTemplate(ctx context.Context, id string, p TemplatePatch) (*Template, error) {
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return nil, Invalidf("title cannot be empty")
		}
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Content != nil {
		content, err := normalizeContent(p.Content)
		if err != nil {
			return nil, err
		}
		t.Content = json.RawMessage(content)
	}

	t.UpdatedAt = time.Now().UTC()
	res, err := s.ExecContext(ctx,
		`UPDATE templates SET title = ?, description = ?, content = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, string(t.Content), t.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	if err := affected(res, "template", id); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return affected(res, "template", id)
}
