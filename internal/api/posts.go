package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/blog"
	"github.com/diegolsarmond/jus-connect/internal/store"
)

// PostResponse is the JSON representation of a blog post. Body is only
// included for the admin panel.
type PostResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Body        string     `json:"body,omitempty"`
	HTML        string     `json:"html"`
	Excerpt     string     `json:"excerpt"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	AuthorID    string     `json:"author_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func postToResponse(p *store.Post, withBody bool) PostResponse {
	resp := PostResponse{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		HTML:        p.HTML,
		Excerpt:     p.Excerpt,
		Published:   p.Published,
		PublishedAt: p.PublishedAt,
		AuthorID:    p.AuthorID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if withBody {
		resp.Body = p.Body
	}
	return resp
}

// PostRequest is the body of POST and PATCH on /v1/admin/posts.
type PostRequest struct {
	Title     *string `json:"title"`
	Slug      *string `json:"slug"`
	Body      *string `json:"body"`
	Published *bool   `json:"published"`
}

func postsToResponse(posts []*store.Post, withBody bool) []PostResponse {
	resp := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, postToResponse(p, withBody))
	}
	return resp
}

func (s *Server) handleListPublishedPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	posts, err := s.store.ListPosts(r.Context(), true, limit, offset)
	if err != nil {
		writeStoreError(w, r, "list posts", err)
		return
	}
	writeJSON(w, http.StatusOK, postsToResponse(posts, false))
}

func (s *Server) handleGetPublishedPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPostBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeStoreError(w, r, "get post", err)
		return
	}
	if p == nil || !p.Published {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "post not found")
		return
	}
	writeJSON(w, http.StatusOK, postToResponse(p, false))
}

func (s *Server) handleAdminListPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	posts, err := s.store.ListPosts(r.Context(), false, limit, offset)
	if err != nil {
		writeStoreError(w, r, "list posts", err)
		return
	}
	writeJSON(w, http.StatusOK, postsToResponse(posts, true))
}

// uniqueSlug derives a slug from want (or the title) and suffixes -2, -3...
// until no other post uses it.
func (s *Server) uniqueSlug(r *http.Request, want, title, exceptID string) (string, error) {
	base := blog.Slugify(want)
	if base == "" {
		base = blog.Slugify(title)
	}
	if base == "" {
		return "", store.Invalidf("title must contain letters or digits")
	}
	slug := base
	for n := 2; ; n++ {
		taken, err := s.store.SlugTaken(r.Context(), slug, exceptID)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	title := strings.TrimSpace(deref(req.Title))
	if title == "" {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "title is required")
		return
	}
	slug, err := s.uniqueSlug(r, deref(req.Slug), title, "")
	if err != nil {
		writeStoreError(w, r, "derive slug", err)
		return
	}
	rendered, err := blog.Render(deref(req.Body))
	if err != nil {
		writeStoreError(w, r, "render post", err)
		return
	}

	p, err := s.store.CreatePost(r.Context(), store.Post{
		Title:     title,
		Slug:      slug,
		Body:      deref(req.Body),
		HTML:      rendered.HTML,
		Excerpt:   rendered.Excerpt,
		Published: req.Published != nil && *req.Published,
		AuthorID:  getUserFromContext(r.Context()).UserID,
	})
	if err != nil {
		writeStoreError(w, r, "create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, postToResponse(p, true))
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get post", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "post not found")
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "title cannot be empty")
			return
		}
		p.Title = title
	}
	if req.Slug != nil {
		if p.Slug, err = s.uniqueSlug(r, *req.Slug, p.Title, p.ID); err != nil {
			writeStoreError(w, r, "derive slug", err)
			return
		}
	}
	if req.Body != nil {
		rendered, err := blog.Render(*req.Body)
		if err != nil {
			writeStoreError(w, r, "render post", err)
			return
		}
		p.Body, p.HTML, p.Excerpt = *req.Body, rendered.HTML, rendered.Excerpt
	}
	if req.Published != nil {
		p.Published = *req.Published
	}

	if err := s.store.UpdatePost(r.Context(), p); err != nil {
		writeStoreError(w, r, "update post", err)
		return
	}
	writeJSON(w, http.StatusOK, postToResponse(p, true))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePost(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, r, "delete post", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
