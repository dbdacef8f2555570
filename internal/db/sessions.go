package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	MagicTokenTTL = 15 * time.Minute
	SessionTTL    = 30 * 24 * time.Hour
)

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Magic tokens

func CreateMagicToken(ctx context.Context, email string) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	_, err = DB.ExecContext(ctx,
		"INSERT INTO magic_tokens (email, token, expires_at, status) VALUES (?, ?, ?, 'pending')",
		email, token, now().Add(MagicTokenTTL),
	)
	if err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	return token, nil
}

type magicToken struct {
	email     string
	used      bool
	status    string
	expiresAt time.Time
}

func getMagicToken(ctx context.Context, token string) (*magicToken, error) {
	var mt magicToken
	err := DB.QueryRowContext(ctx,
		"SELECT email, used, status, expires_at FROM magic_tokens WHERE token = ?", token,
	).Scan(&mt.email, &mt.used, &mt.status, &mt.expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query token: %w", err)
	}
	return &mt, nil
}

// ValidateMagicToken returns the email of a token that can still be
// approved.
func ValidateMagicToken(ctx context.Context, token string) (string, error) {
	mt, err := getMagicToken(ctx, token)
	if err != nil {
		return "", err
	}
	if mt.used {
		return "", fmt.Errorf("token already used")
	}
	if now().After(mt.expiresAt) {
		return "", fmt.Errorf("token expired")
	}
	return mt.email, nil
}

func ApproveMagicToken(ctx context.Context, token string) (string, error) {
	email, err := ValidateMagicToken(ctx, token)
	if err != nil {
		return "", err
	}
	_, err = DB.ExecContext(ctx, "UPDATE magic_tokens SET status = 'approved' WHERE token = ?", token)
	if err != nil {
		return "", fmt.Errorf("approve token: %w", err)
	}
	return email, nil
}

// CheckMagicTokenStatus reports pending, approved, used or expired.
func CheckMagicTokenStatus(ctx context.Context, token string) (status string, email string, err error) {
	mt, err := getMagicToken(ctx, token)
	if err != nil {
		return "", "", err
	}
	if mt.used {
		return "used", mt.email, nil
	}
	if now().After(mt.expiresAt) {
		return "expired", mt.email, nil
	}
	return mt.status, mt.email, nil
}

// MarkMagicTokenUsed flips an approved token to used. It fails if another
// poll already consumed it, so one approval yields one session.
func MarkMagicTokenUsed(ctx context.Context, token string) error {
	res, err := DB.ExecContext(ctx,
		"UPDATE magic_tokens SET used = 1 WHERE token = ? AND used = 0 AND status = 'approved'", token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// Sessions

// CreateSession stores a new session for userID that lasts ttl, or
// SessionTTL when ttl is not positive.
func CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	_, err = DB.ExecContext(ctx,
		"INSERT INTO sessions (user_id, token, expires_at) VALUES (?, ?, ?)",
		userID, token, now().Add(ttl),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return token, nil
}

func GetUserBySession(ctx context.Context, token string) (*User, error) {
	var userID int64
	var expiresAt time.Time
	err := DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM sessions WHERE token = ?", token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		return nil, fmt.Errorf("session not found")
	}
	if now().After(expiresAt) {
		DB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
		return nil, fmt.Errorf("session expired")
	}
	return GetUserByID(ctx, userID)
}

func DeleteSession(ctx context.Context, token string) {
	DB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
}
