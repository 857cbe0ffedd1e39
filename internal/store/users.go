package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role constants
const (
	RoleAdmin     = "admin"
	RoleLawyer    = "lawyer"
	RoleAssistant = "assistant"
)

// roleLevel returns the numeric level for a role (higher = more permissions).
func roleLevel(role string) int {
	switch role {
	case RoleAdmin:
		return 3
	case RoleLawyer:
		return 2
	case RoleAssistant:
		return 1
	default:
		return 0
	}
}

// IsValidRole reports whether role is a known role.
func IsValidRole(role string) bool {
	return roleLevel(role) > 0
}

// RoleAtLeast reports whether have grants at least the permissions of need.
func RoleAtLeast(have, need string) bool {
	return roleLevel(have) >= roleLevel(need)
}

// User represents an office user.
type User struct {
	ID          string
	Name        string
	Email       string
	Role        string
	Active      bool
	OAB         string
	Phone       string
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	passwordHash string
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NewUser carries the fields accepted when creating a user.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     string
	OAB      string
	Phone    string
}

// UserPatch carries optional user updates; nil fields are left unchanged.
type UserPatch struct {
	Name     *string
	Email    *string
	Password *string
	Role     *string
	Active   *bool
	OAB      *string
	Phone    *string
}

const userColumns = `id, name, email, password_hash, role, active, oab, phone, last_login_at, created_at, updated_at`

func scanUser(sc interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	err := sc.Scan(&u.ID, &u.Name, &u.Email, &u.passwordHash, &u.Role, &u.Active, &u.OAB, &u.Phone, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func hashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", Invalidf("password must have at least 8 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CreateUser inserts a new user with the email lowercased and the password hashed.
func (s *Store) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, Invalidf("email is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email
	}
	role := in.Role
	if role == "" {
		role = RoleAssistant
	}
	if !IsValidRole(role) {
		return nil, Invalidf("invalid role: %s", role)
	}
	hash := ""
	if in.Password != "" {
		var err error
		if hash, err = hashPassword(in.Password); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	u := &User{
		ID:           mustID("u_"),
		Name:         name,
		Email:        email,
		Role:         role,
		Active:       true,
		OAB:          in.OAB,
		Phone:        in.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
		passwordHash: hash,
	}
	_, err := s.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, active, oab, phone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, hash, u.Role, true, u.OAB, u.Phone, now, now,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("email %s already registered: %w", email, ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetUserByID returns the user with the given ID, or nil if not found.
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email (case-insensitive), or nil if not found.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = ?`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns users ordered by name, optionally filtered by a search term.
func (s *Store) ListUsers(ctx context.Context, search string) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		query += ` WHERE LOWER(name) LIKE ? OR LOWER(email) LIKE ?`
		like := "%" + strings.ToLower(search) + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY name`

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: iterate: %w", err)
	}
	return users, nil
}

// UpdateUser applies a partial update and returns the stored user.
func (s *Store) UpdateUser(ctx context.Context, id string, p UserPatch) (*User, error) {
	cur, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, Invalidf("name cannot be empty")
		}
		cur.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		if email == "" {
			return nil, Invalidf("email cannot be empty")
		}
		cur.Email = email
	}
	if p.Role != nil {
		if !IsValidRole(*p.Role) {
			return nil, Invalidf("invalid role: %s", *p.Role)
		}
		cur.Role = *p.Role
	}
	if p.Active != nil {
		cur.Active = *p.Active
	}
	if p.OAB != nil {
		cur.OAB = *p.OAB
	}
	if p.Phone != nil {
		cur.Phone = *p.Phone
	}
	if p.Password != nil {
		if cur.passwordHash, err = hashPassword(*p.Password); err != nil {
			return nil, err
		}
	}

	cur.UpdatedAt = time.Now().UTC()
	_, err = s.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, password_hash = ?, role = ?, active = ?, oab = ?, phone = ?, updated_at = ? WHERE id = ?`,
		cur.Name, cur.Email, cur.passwordHash, cur.Role, cur.Active, cur.OAB, cur.Phone, cur.UpdatedAt, id,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("email %s already registered: %w", cur.Email, ErrConflict)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return cur, nil
}

// DeleteUser removes a user and, by cascade, their API keys.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return affected(res, "user", id)
}

// Authenticate checks an email/password pair. It returns nil, nil when the
// credentials do not match or the user is inactive.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Active || u.passwordHash == "" {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) != nil {
		return nil, nil
	}

	now := time.Now().UTC()
	if _, err := s.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, now, u.ID); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	u.LastLoginAt = &now
	return u, nil
}

// CountAdmins returns how many active admins exist.
func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = ? AND active = ?`, RoleAdmin, true).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}
