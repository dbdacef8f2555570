package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const StoryTTL = 24 * time.Hour

func CreateStory(ctx context.Context, userID int64, content, mediaURL, suburb string) (*Story, error) {
	content = strings.TrimSpace(content)
	if content == "" && mediaURL == "" {
		return nil, fmt.Errorf("%w: story needs text or media", ErrInvalid)
	}
	t := now()
	res, err := DB.ExecContext(ctx, `INSERT INTO stories (user_id, content, media_url, suburb, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, content, mediaURL, suburb, t, t.Add(StoryTTL))
	if err != nil {
		return nil, fmt.Errorf("insert story: %w", err)
	}
	id, _ := res.LastInsertId()

	s := &Story{
		ID:        id,
		UserID:    userID,
		Content:   content,
		MediaURL:  mediaURL,
		Suburb:    suburb,
		CreatedAt: t,
		ExpiresAt: t.Add(StoryTTL),
	}
	if err := attachStoryAuthors(ctx, []*Story{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// ListActiveStories returns unexpired stories newest first, flagged with
// whether viewerID has seen them.
func ListActiveStories(ctx context.Context, viewerID int64) ([]*Story, error) {
	rows, err := DB.QueryContext(ctx, `SELECT s.id, s.user_id, s.content, s.media_url, s.suburb,
		s.created_at, s.expires_at,
		EXISTS(SELECT 1 FROM story_views v WHERE v.story_id = s.id AND v.viewer_id = ?)
		FROM stories s WHERE s.expires_at > ? ORDER BY s.created_at DESC, s.id DESC`,
		viewerID, now())
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	var stories []*Story
	for rows.Next() {
		var s Story
		if err := rows.Scan(&s.ID, &s.UserID, &s.Content, &s.MediaURL, &s.Suburb,
			&s.CreatedAt, &s.ExpiresAt, &s.Viewed); err != nil {
			rows.Close()
			return nil, err
		}
		stories = append(stories, &s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachStoryAuthors(ctx, stories); err != nil {
		return nil, err
	}
	return stories, nil
}

func attachStoryAuthors(ctx context.Context, stories []*Story) error {
	ids := make([]int64, 0, len(stories))
	for _, s := range stories {
		ids = append(ids, s.UserID)
	}
	authors, err := publicUsers(ctx, ids)
	if err != nil {
		return err
	}
	for _, s := range stories {
		if a, ok := authors[s.UserID]; ok {
			s.Author = &a
		}
	}
	return nil
}

// DeleteStory removes a story owned by userID, or any story for admins.
func DeleteStory(ctx context.Context, id, userID int64, asAdmin bool) error {
	var owner int64
	err := DB.QueryRowContext(ctx, "SELECT user_id FROM stories WHERE id = ?", id).Scan(&owner)
	if err != nil {
		return notFound(err)
	}
	if owner != userID && !asAdmin {
		return ErrForbidden
	}
	if _, err := DB.ExecContext(ctx, "DELETE FROM stories WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	return nil
}

// MarkStoryViewed records a view once per viewer. Expired stories are
// reported as not found.
func MarkStoryViewed(ctx context.Context, id, viewerID int64) error {
	var expiresAt time.Time
	err := DB.QueryRowContext(ctx, "SELECT expires_at FROM stories WHERE id = ?", id).Scan(&expiresAt)
	if err != nil {
		return notFound(err)
	}
	if !now().Before(expiresAt) {
		return ErrNotFound
	}
	_, err = DB.ExecContext(ctx,
		"INSERT OR IGNORE INTO story_views (story_id, viewer_id, viewed_at) VALUES (?, ?, ?)",
		id, viewerID, now())
	if err != nil {
		return fmt.Errorf("mark viewed: %w", err)
	}
	return nil
}
