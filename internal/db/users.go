package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const userColumns = `id, email, display_name, bio, avatar_url, role, home_suburb, home_region,
	home_lat, home_lng, terms_accepted_at, onboarded_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*User, error) {
	var u User
	err := s.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Bio, &u.AvatarURL, &u.Role,
		&u.HomeSuburb, &u.HomeRegion, &u.HomeLat, &u.HomeLng,
		&u.TermsAcceptedAt, &u.OnboardedAt, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreateUser returns the user with email, creating it on first login.
// New users get the local part of the address as display name.
func GetOrCreateUser(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	u, err := GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("query user: %w", err)
	}

	name := strings.Split(email, "@")[0]
	res, err := DB.ExecContext(ctx,
		"INSERT INTO users (email, display_name, created_at) VALUES (?, ?, ?)",
		email, name, now())
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return GetUserByID(ctx, id)
}

func GetUserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

func GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?",
		strings.TrimSpace(strings.ToLower(email))))
}

// GetUsersByIDs loads the users that exist among ids; missing ids are
// skipped.
func GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id IN ("+placeholders+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func ListUsers(ctx context.Context) ([]User, error) {
	rows, err := DB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ProfileUpdate holds optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
	HomeSuburb  *string
	HomeRegion  *string
	HomeLat     *float64
	HomeLng     *float64
	// ClearHome drops the stored home coordinates.
	ClearHome bool
}

func UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*User, error) {
	u, err := GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.HomeSuburb != nil {
		u.HomeSuburb = strings.TrimSpace(*upd.HomeSuburb)
	}
	if upd.HomeRegion != nil {
		u.HomeRegion = *upd.HomeRegion
	}
	if upd.ClearHome {
		u.HomeLat, u.HomeLng = nil, nil
	}
	if upd.HomeLat != nil && upd.HomeLng != nil {
		u.HomeLat, u.HomeLng = upd.HomeLat, upd.HomeLng
	}

	_, err = DB.ExecContext(ctx, `UPDATE users SET display_name = ?, bio = ?, avatar_url = ?,
		home_suburb = ?, home_region = ?, home_lat = ?, home_lng = ? WHERE id = ?`,
		u.DisplayName, u.Bio, u.AvatarURL, u.HomeSuburb, u.HomeRegion, u.HomeLat, u.HomeLng, id)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// AcceptTerms records acceptance once; later calls keep the first time.
func AcceptTerms(ctx context.Context, id int64) (*User, error) {
	res, err := DB.ExecContext(ctx,
		"UPDATE users SET terms_accepted_at = COALESCE(terms_accepted_at, ?) WHERE id = ?", now(), id)
	if err != nil {
		return nil, fmt.Errorf("accept terms: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return GetUserByID(ctx, id)
}

// CompleteOnboarding marks the user onboarded. Terms must be accepted
// first.
func CompleteOnboarding(ctx context.Context, id int64) (*User, error) {
	u, err := GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.AcceptedTerms() {
		return nil, ErrTermsRequired
	}
	if u.OnboardedAt != nil {
		return u, nil
	}
	if _, err := DB.ExecContext(ctx, "UPDATE users SET onboarded_at = ? WHERE id = ?", now(), id); err != nil {
		return nil, fmt.Errorf("complete onboarding: %w", err)
	}
	return GetUserByID(ctx, id)
}

func SetRole(ctx context.Context, id int64, role string) error {
	switch role {
	case RoleUser, RoleBusiness, RoleAdmin:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalid, role)
	}
	res, err := DB.ExecContext(ctx, "UPDATE users SET role = ? WHERE id = ?", role, id)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureAdmin creates the user if needed and gives it the admin role.
func EnsureAdmin(ctx context.Context, email string) (*User, error) {
	u, err := GetOrCreateUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.Role != RoleAdmin {
		if err := SetRole(ctx, u.ID, RoleAdmin); err != nil {
			return nil, err
		}
		u.Role = RoleAdmin
	}
	return u, nil
}

func DeleteUser(ctx context.Context, id int64) error {
	res, err := DB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
