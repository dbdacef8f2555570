package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UpsertPushSubscription stores a browser push endpoint for userID. An
// endpoint seen before moves to the new user with fresh keys.
func UpsertPushSubscription(ctx context.Context, userID int64, endpoint, p256dh, auth string) (*PushSubscription, error) {
	if endpoint == "" || p256dh == "" || auth == "" {
		return nil, fmt.Errorf("%w: endpoint and keys are required", ErrInvalid)
	}
	_, err := DB.ExecContext(ctx, `INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET user_id = excluded.user_id,
			p256dh = excluded.p256dh, auth = excluded.auth`,
		userID, endpoint, p256dh, auth, now())
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}

	var s PushSubscription
	err = DB.QueryRowContext(ctx,
		"SELECT id, user_id, endpoint, p256dh, auth, created_at FROM push_subscriptions WHERE endpoint = ?",
		endpoint,
	).Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	return &s, nil
}

func DeletePushSubscription(ctx context.Context, userID int64, endpoint string) error {
	res, err := DB.ExecContext(ctx,
		"DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?", userID, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func joinList(vs []string) string {
	clean := make([]string, 0, len(vs))
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			clean = append(clean, v)
		}
	}
	return strings.Join(clean, ",")
}

// GetNotificationPrefs returns stored preferences or the defaults.
func GetNotificationPrefs(ctx context.Context, userID int64) (NotificationPrefs, error) {
	p := NotificationPrefs{UserID: userID}
	var cats, regs string
	err := DB.QueryRowContext(ctx,
		"SELECT enabled, categories, min_severity, regions, radius_km FROM notification_prefs WHERE user_id = ?",
		userID,
	).Scan(&p.Enabled, &cats, &p.MinSeverity, &regs, &p.RadiusKm)
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return DefaultNotificationPrefs(userID), nil
		}
		return p, fmt.Errorf("query prefs: %w", err)
	}
	p.Categories = splitList(cats)
	p.Regions = splitList(regs)
	return p, nil
}

func SaveNotificationPrefs(ctx context.Context, p NotificationPrefs) error {
	if p.RadiusKm < 0 {
		return fmt.Errorf("%w: radius cannot be negative", ErrInvalid)
	}
	_, err := DB.ExecContext(ctx, `INSERT INTO notification_prefs (user_id, enabled, categories, min_severity, regions, radius_km)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET enabled = excluded.enabled, categories = excluded.categories,
			min_severity = excluded.min_severity, regions = excluded.regions, radius_km = excluded.radius_km`,
		p.UserID, p.Enabled, joinList(p.Categories), p.MinSeverity, joinList(p.Regions), p.RadiusKm)
	if err != nil {
		return fmt.Errorf("save prefs: %w", err)
	}
	return nil
}

// ListSubscribers returns every user whose effective preferences are
// enabled, with whether they registered a push endpoint.
func ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := DB.QueryContext(ctx, `SELECT `+prefixed("u.", userColumns)+`,
		COALESCE(p.enabled, 1), COALESCE(p.categories, ''),
		COALESCE(p.min_severity, 'high'), COALESCE(p.regions, ''), COALESCE(p.radius_km, 0),
		EXISTS(SELECT 1 FROM push_subscriptions s WHERE s.user_id = u.id)
		FROM users u LEFT JOIN notification_prefs p ON p.user_id = u.id
		WHERE COALESCE(p.enabled, 1) = 1 ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var s Subscriber
		var cats, regs string
		u := &s.User
		err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Bio, &u.AvatarURL, &u.Role,
			&u.HomeSuburb, &u.HomeRegion, &u.HomeLat, &u.HomeLng,
			&u.TermsAcceptedAt, &u.OnboardedAt, &u.CreatedAt,
			&s.Prefs.Enabled, &cats, &s.Prefs.MinSeverity, &regs, &s.Prefs.RadiusKm,
			&s.HasPush)
		if err != nil {
			return nil, err
		}
		s.Prefs.UserID = u.ID
		s.Prefs.Categories = splitList(cats)
		s.Prefs.Regions = splitList(regs)
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// CreateNotification stores a notification unless the user already has
// one for the incident. created reports whether a row was inserted.
func CreateNotification(ctx context.Context, userID int64, incidentID, title, body string) (n *Notification, created bool, err error) {
	res, err := DB.ExecContext(ctx, `INSERT OR IGNORE INTO notifications (user_id, incident_id, title, body, created_at)
		VALUES (?, ?, ?, ?, ?)`, userID, incidentID, title, body, now())
	if err != nil {
		return nil, false, fmt.Errorf("insert notification: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, false, nil
	}
	id, _ := res.LastInsertId()

	var nt Notification
	err = DB.QueryRowContext(ctx,
		"SELECT id, user_id, incident_id, title, body, created_at, read_at FROM notifications WHERE id = ?", id,
	).Scan(&nt.ID, &nt.UserID, &nt.IncidentID, &nt.Title, &nt.Body, &nt.CreatedAt, &nt.ReadAt)
	if err != nil {
		return nil, false, fmt.Errorf("query notification: %w", err)
	}
	return &nt, true, nil
}

// ListNotifications returns the user's newest notifications.
func ListNotifications(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := DB.QueryContext(ctx, `SELECT id, user_id, incident_id, title, body, created_at, read_at
		FROM notifications WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.IncidentID, &n.Title, &n.Body, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func MarkNotificationRead(ctx context.Context, id, userID int64) error {
	res, err := DB.ExecContext(ctx,
		"UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND user_id = ?",
		now(), id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	res, err := DB.ExecContext(ctx,
		"UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL", now(), userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func UnreadNotificationCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL", userID).Scan(&n)
	return n, err
}
