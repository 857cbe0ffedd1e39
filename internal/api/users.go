package api

import (
	"net/http"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/store"
)

// UserResponse is the JSON representation of a user.
type UserResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsAdmin     bool       `json:"is_admin"`
	Active      bool       `json:"active"`
	OAB         string     `json:"oab,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func userToResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		IsAdmin:     u.IsAdmin(),
		Active:      u.Active,
		OAB:         u.OAB,
		Phone:       u.Phone,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	OAB      string `json:"oab"`
	Phone    string `json:"phone"`
}

// UpdateUserRequest is the body of PATCH /v1/users/{id}.
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
	OAB      *string `json:"oab"`
	Phone    *string `json:"phone"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeStoreError(w, r, "list users", err)
		return
	}
	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userToResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.store.CreateUser(r.Context(), store.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		OAB:      req.OAB,
		Phone:    req.Phone,
	})
	if err != nil {
		writeStoreError(w, r, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, userToResponse(u))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(u))
}

// handleUpdateUser applies a partial update. An admin cannot demote or
// deactivate the last active admin.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	demotes := (req.Role != nil && *req.Role != store.RoleAdmin) || (req.Active != nil && !*req.Active)
	if demotes {
		if ok := s.keepsAnAdmin(w, r, id); !ok {
			return
		}
	}

	u, err := s.store.UpdateUser(r.Context(), id, store.UserPatch{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Active:   req.Active,
		OAB:      req.OAB,
		Phone:    req.Phone,
	})
	if err != nil {
		writeStoreError(w, r, "update user", err)
		return
	}
	writeJSON(w, http.StatusOK, userToResponse(u))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == getUserFromContext(r.Context()).UserID {
		writeError(w, http.StatusConflict, ErrCodeConflict, "cannot delete yourself")
		return
	}
	if ok := s.keepsAnAdmin(w, r, id); !ok {
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		writeStoreError(w, r, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// keepsAnAdmin writes a 409 and returns false when removing id's admin rights
// would leave no active admin.
func (s *Server) keepsAnAdmin(w http.ResponseWriter, r *http.Request, id string) bool {
	u, err := s.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "get user", err)
		return false
	}
	if u == nil || !u.IsAdmin() || !u.Active {
		return true
	}
	n, err := s.store.CountAdmins(r.Context())
	if err != nil {
		writeStoreError(w, r, "count admins", err)
		return false
	}
	if n <= 1 {
		writeError(w, http.StatusConflict, ErrCodeConflict, "cannot remove the last admin")
		return false
	}
	return true
}
