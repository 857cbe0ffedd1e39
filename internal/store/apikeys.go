package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

const (
	apiKeyPrefix = "jus_"
	keyLength    = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// APIKey represents a stored bearer token (without the plaintext secret).
// Login sessions and long-lived integration keys share this table.
type APIKey struct {
	ID         string
	UserID     string
	KeyPrefix  string
	Name       string
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// GenerateAPIKey creates a new key for the given user.
// Returns the plaintext key (shown once) and the stored APIKey record.
func (s *Store) GenerateAPIKey(ctx context.Context, userID, name string, expiresAt *time.Time) (string, *APIKey, error) {
	var exists int
	if err := s.queryRow(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return "", nil, fmt.Errorf("check user: %w", err)
	}

	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := apiKeyPrefix + string(secret)
	now := time.Now().UTC()
	ak := &APIKey{
		ID:        mustID("ak_"),
		UserID:    userID,
		KeyPrefix: string(secret[:8]),
		Name:      name,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	_, err := s.ExecContext(ctx,
		`INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ak.ID, userID, hashKey(plaintext), ak.KeyPrefix, name, expiresAt, now,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}
	return plaintext, ak, nil
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey checks a plaintext key against stored hashes. Unknown,
// expired keys and keys of inactive users yield nil, nil, nil.
func (s *Store) VerifyAPIKey(ctx context.Context, plaintextKey string) (*APIKey, *User, error) {
	keyHash := hashKey(plaintextKey)

	ak := &APIKey{}
	u := &User{}
	err := s.queryRow(ctx, `
		SELECT ak.id, ak.user_id, ak.key_prefix, ak.name, ak.expires_at, ak.last_used_at, ak.created_at,
		       u.id, u.name, u.email, u.password_hash, u.role, u.active, u.oab, u.phone, u.last_login_at, u.created_at, u.updated_at
		FROM api_keys ak
		JOIN users u ON u.id = ak.user_id
		WHERE ak.key_hash = ?
	`, keyHash).Scan(
		&ak.ID, &ak.UserID, &ak.KeyPrefix, &ak.Name, &ak.ExpiresAt, &ak.LastUsedAt, &ak.CreatedAt,
		&u.ID, &u.Name, &u.Email, &u.passwordHash, &u.Role, &u.Active, &u.OAB, &u.Phone, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		slog.Debug("api key not found", "key_hash_prefix", keyHash[:8])
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("verify api key: %w", err)
	}

	if ak.ExpiresAt != nil && ak.ExpiresAt.Before(time.Now().UTC()) {
		slog.Debug("api key expired", "key_id", ak.ID, "expires_at", ak.ExpiresAt)
		return nil, nil, nil
	}
	if !u.Active {
		slog.Debug("api key of inactive user", "key_id", ak.ID, "user_id", u.ID)
		return nil, nil, nil
	}

	now := time.Now().UTC()
	if _, err := s.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, ak.ID); err != nil {
		slog.Warn("update last_used_at", "key_id", ak.ID, "err", err)
	}
	ak.LastUsedAt = &now

	return ak, u, nil
}

// RevokeAPIKey deletes an API key, only if owned by the given user.
func (s *Store) RevokeAPIKey(ctx context.Context, keyID, userID string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ? AND user_id = ?`, keyID, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return affected(res, "api key", keyID)
}

// ListAPIKeys returns all API keys for a user (without secrets).
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, user_id, key_prefix, name, expires_at, last_used_at, created_at FROM api_keys WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		ak := &APIKey{}
		if err := rows.Scan(&ak.ID, &ak.UserID, &ak.KeyPrefix, &ak.Name, &ak.ExpiresAt, &ak.LastUsedAt, &ak.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, ak)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: iterate: %w", err)
	}
	return keys, nil
}

// CleanupExpiredAPIKeys deletes keys whose expiry has passed.
func (s *Store) CleanupExpiredAPIKeys(ctx context.Context) (int64, error) {
	res, err := s.ExecContext(ctx, `DELETE FROM api_keys WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired api keys: %w", err)
	}
	return res.RowsAffected()
}

// Auth event type constants.
const (
	AuthEventLogin       = "login"
	AuthEventLoginFailed = "login_failed"
	AuthEventLogout      = "logout"
	AuthEventSignup      = "signup"
)

// AuthEvent represents a row in the auth_events table.
type AuthEvent struct {
	ID        int64
	UserID    string
	Email     string
	EventType string
	IP        string
	CreatedAt time.Time
}

// InsertAuthEvent records an authentication event.
func (s *Store) InsertAuthEvent(ctx context.Context, userID, email, eventType, ip string) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO auth_events (user_id, email, event_type, ip, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, email, eventType, ip, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}

// ListAuthEvents returns the most recent auth events, newest first.
func (s *Store) ListAuthEvents(ctx context.Context, email string, limit int) ([]AuthEvent, error) {
	query := `SELECT id, user_id, email, event_type, ip, created_at FROM auth_events`
	var args []any
	if email != "" {
		query += ` WHERE email = ?`
		args = append(args, email)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list auth events: %w", err)
	}
	defer rows.Close()

	var events []AuthEvent
	for rows.Next() {
		var e AuthEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Email, &e.EventType, &e.IP, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list auth events: iterate: %w", err)
	}
	return events, nil
}

// CleanupAuthEvents deletes auth events older than the retention window.
func (s *Store) CleanupAuthEvents(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.ExecContext(ctx, `DELETE FROM auth_events WHERE created_at < ?`, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("cleanup auth events: %w", err)
	}
	return res.RowsAffected()
}
