package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Post is a blog article. HTML and Excerpt are derived from Body by the caller.
type Post struct {
	ID          string
	Title       string
	Slug        string
	Body        string
	HTML        string
	Excerpt     string
	Published   bool
	PublishedAt *time.Time
	AuthorID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const postColumns = `id, title, slug, body, html, excerpt, published, published_at, author_id, created_at, updated_at`

func scanPost(sc interface{ Scan(...any) error }) (*Post, error) {
	p := &Post{}
	err := sc.Scan(&p.ID, &p.Title, &p.Slug, &p.Body, &p.HTML, &p.Excerpt, &p.Published, &p.PublishedAt, &p.AuthorID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreatePost inserts a post. A published post gets PublishedAt set to now when unset.
func (s *Store) CreatePost(ctx context.Context, p Post) (*Post, error) {
	if p.Title == "" || p.Slug == "" {
		return nil, Invalidf("title and slug are required")
	}
	now := time.Now().UTC()
	p.ID = mustID("bp_")
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Published && p.PublishedAt == nil {
		p.PublishedAt = &now
	}
	_, err := s.ExecContext(ctx,
		`INSERT INTO posts (id, title, slug, body, html, excerpt, published, published_at, author_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Slug, p.Body, p.HTML, p.Excerpt, p.Published, p.PublishedAt, p.AuthorID, now, now,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("slug %q already used: %w", p.Slug, ErrConflict)
		}
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return &p, nil
}

// GetPost returns a post by ID, or nil if not found.
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	p, err := scanPost(s.queryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// GetPostBySlug returns a post by slug, or nil if not found.
func (s *Store) GetPostBySlug(ctx context.Context, slug string) (*Post, error) {
	p, err := scanPost(s.queryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE slug = ?`, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post by slug: %w", err)
	}
	return p, nil
}

// SlugTaken reports whether slug is used by a post other than exceptID.
func (s *Store) SlugTaken(ctx context.Context, slug, exceptID string) (bool, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM posts WHERE slug = ? AND id <> ?`, slug, exceptID).Scan(&n); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return n > 0, nil
}

// ListPosts returns posts, newest first. onlyPublished restricts to the public feed.
func (s *Store) ListPosts(ctx context.Context, onlyPublished bool, limit, offset int) ([]*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts`
	var args []any
	if onlyPublished {
		query += ` WHERE published = ? ORDER BY published_at DESC`
		args = append(args, true)
	} else {
		query += ` ORDER BY created_at DESC`
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, normalizeLimit(limit), max(offset, 0))

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: iterate: %w", err)
	}
	return out, nil
}

// UpdatePost replaces the mutable fields of a post.
func (s *Store) UpdatePost(ctx context.Context, p *Post) error {
	p.UpdatedAt = time.Now().UTC()
	if p.Published && p.PublishedAt == nil {
		now := p.UpdatedAt
		p.PublishedAt = &now
	}
	if !p.Published {
		p.PublishedAt = nil
	}
	res, err := s.ExecContext(ctx,
		`UPDATE posts SET title = ?, slug = ?, body = ?, html = ?, excerpt = ?, published = ?, published_at = ?, updated_at = ? WHERE id = ?`,
		p.Title, p.Slug, p.Body, p.HTML, p.Excerpt, p.Published, p.PublishedAt, p.UpdatedAt, p.ID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("slug %q already used: %w", p.Slug, ErrConflict)
		}
		return fmt.Errorf("update post: %w", err)
	}
	return affected(res, "post", p.ID)
}

// DeletePost removes a post.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return affected(res, "post", id)
}
