package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/store"
)

// SignupRequest is the body of POST /v1/auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by signup and login.
type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	User      UserResponse `json:"user"`
}

// handleSignup registers a new user when self-signup is enabled. The first
// user of an office without admins becomes admin.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.config.AllowSignup {
		writeError(w, http.StatusForbidden, ErrCodeSignupDisabled, "signup is disabled")
		return
	}

	var req SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "password is required")
		return
	}

	admins, err := s.store.CountAdmins(r.Context())
	if err != nil {
		writeStoreError(w, r, "count admins", err)
		return
	}
	role := store.RoleAssistant
	if admins == 0 {
		role = store.RoleAdmin
	}

	u, err := s.store.CreateUser(r.Context(), store.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		writeStoreError(w, r, "create user", err)
		return
	}
	s.recordAuthEvent(r, u.ID, u.Email, store.AuthEventSignup)

	resp, err := s.startSession(r, u)
	if err != nil {
		writeStoreError(w, r, "create session", err)
		return
	}
	logFor(r.Context()).Info("user signed up", "uid", u.ID, "role", role)
	writeJSON(w, http.StatusCreated, resp)
}

// handleLogin exchanges email and password for a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}

	u, err := s.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeStoreError(w, r, "authenticate", err)
		return
	}
	if u == nil {
		s.recordAuthEvent(r, "", req.Email, store.AuthEventLoginFailed)
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid email or password")
		return
	}

	resp, err := s.startSession(r, u)
	if err != nil {
		writeStoreError(w, r, "create session", err)
		return
	}
	s.recordAuthEvent(r, u.ID, u.Email, store.AuthEventLogin)
	writeJSON(w, http.StatusOK, resp)
}

// handleLogout revokes the token used for the request.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	if err := s.store.RevokeAPIKey(r.Context(), user.KeyID, user.UserID); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeStoreError(w, r, "revoke session", err)
		return
	}
	s.recordAuthEvent(r, user.UserID, user.Email, store.AuthEventLogout)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	u, err := s.store.GetUserByID(r.Context(), user.UserID)
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

func (s *Server) startSession(r *http.Request, u *store.User) (*SessionResponse, error) {
	var expiresAt *time.Time
	if s.config.SessionTTL > 0 {
		t := s.now().UTC().Add(s.config.SessionTTL)
		expiresAt = &t
	}
	token, _, err := s.store.GenerateAPIKey(r.Context(), u.ID, "session", expiresAt)
	if err != nil {
		return nil, err
	}
	return &SessionResponse{Token: token, ExpiresAt: expiresAt, User: userToResponse(u)}, nil
}

func (s *Server) recordAuthEvent(r *http.Request, userID, email, event string) {
	s.metrics.RecordAuthEvent(event)
	if err := s.store.InsertAuthEvent(r.Context(), userID, email, event, clientIP(r)); err != nil {
		logFor(r.Context()).Warn("record auth event", "event", event, "err", err)
	}
}
