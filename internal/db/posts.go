package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	PostActive   = "active"
	PostResolved = "resolved"
)

// postSelect takes the viewer id as its single argument.
const postSelect = `SELECT p.id, p.user_id, p.title, p.description, p.category, p.severity,
	p.status, p.lat, p.lng, p.location_text, p.suburb, p.region, p.photo_url,
	p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM post_reactions r WHERE r.post_id = p.id),
	(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id),
	EXISTS(SELECT 1 FROM post_reactions r WHERE r.post_id = p.id AND r.user_id = ?)
	FROM posts p`

func scanPost(s rowScanner) (*Post, error) {
	var p Post
	err := s.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Category, &p.Severity,
		&p.Status, &p.Lat, &p.Lng, &p.LocationText, &p.Suburb, &p.Region, &p.PhotoURL,
		&p.CreatedAt, &p.UpdatedAt, &p.LikeCount, &p.CommentCount, &p.Liked)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePost stores p for its UserID and returns the stored row.
// Category and severity must already be normalized by the caller.
func CreatePost(ctx context.Context, p Post) (*Post, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	t := now()
	res, err := DB.ExecContext(ctx, `INSERT INTO posts (user_id, title, description, category, severity,
		status, lat, lng, location_text, suburb, region, photo_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Title, p.Description, p.Category, p.Severity,
		p.Lat, p.Lng, p.LocationText, p.Suburb, p.Region, p.PhotoURL, t, t)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	id, _ := res.LastInsertId()
	return GetPost(ctx, id, p.UserID)
}

// GetPost loads a post with counts from the point of view of viewerID
// (0 for anonymous).
func GetPost(ctx context.Context, id, viewerID int64) (*Post, error) {
	p, err := scanPost(DB.QueryRowContext(ctx, postSelect+" WHERE p.id = ?", viewerID, id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := attachPostAuthors(ctx, []*Post{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// ListRecentPosts returns posts created at or after since, newest first.
func ListRecentPosts(ctx context.Context, since time.Time, viewerID int64) ([]*Post, error) {
	rows, err := DB.QueryContext(ctx,
		postSelect+" WHERE p.created_at >= ? ORDER BY p.created_at DESC, p.id DESC",
		viewerID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		posts = append(posts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachPostAuthors(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func ListPostsByUser(ctx context.Context, userID, viewerID int64) ([]*Post, error) {
	rows, err := DB.QueryContext(ctx,
		postSelect+" WHERE p.user_id = ? ORDER BY p.created_at DESC, p.id DESC", viewerID, userID)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		posts = append(posts, p)
	}
	rows.Close()
	return posts, rows.Err()
}

func attachPostAuthors(ctx context.Context, posts []*Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.UserID)
	}
	authors, err := publicUsers(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if a, ok := authors[p.UserID]; ok {
			p.Author = &a
		}
	}
	return nil
}

func publicUsers(ctx context.Context, ids []int64) (map[int64]PublicUser, error) {
	seen := make(map[int64]bool, len(ids))
	uniq := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	users, err := GetUsersByIDs(ctx, uniq)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]PublicUser, len(users))
	for i := range users {
		out[users[i].ID] = users[i].Public()
	}
	return out, nil
}

// PostUpdate holds optional post fields; nil means unchanged.
type PostUpdate struct {
	Title        *string
	Description  *string
	Category     *string
	Severity     *string
	LocationText *string
	Suburb       *string
	Region       *string
	PhotoURL     *string
}

// UpdatePost edits a post owned by userID.
func UpdatePost(ctx context.Context, id, userID int64, upd PostUpdate) (*Post, error) {
	p, err := GetPost(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrForbidden
	}
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalid)
		}
		p.Title = t
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.Category != nil {
		p.Category = *upd.Category
	}
	if upd.Severity != nil {
		p.Severity = *upd.Severity
	}
	if upd.LocationText != nil {
		p.LocationText = *upd.LocationText
	}
	if upd.Suburb != nil {
		p.Suburb = *upd.Suburb
	}
	if upd.Region != nil {
		p.Region = *upd.Region
	}
	if upd.PhotoURL != nil {
		p.PhotoURL = *upd.PhotoURL
	}
	p.UpdatedAt = now()

	_, err = DB.ExecContext(ctx, `UPDATE posts SET title = ?, description = ?, category = ?,
		severity = ?, location_text = ?, suburb = ?, region = ?, photo_url = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Description, p.Category, p.Severity, p.LocationText, p.Suburb, p.Region,
		p.PhotoURL, p.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return p, nil
}

// ResolvePost marks a post resolved. Only the author may resolve it.
func ResolvePost(ctx context.Context, id, userID int64) (*Post, error) {
	res, err := DB.ExecContext(ctx,
		"UPDATE posts SET status = 'resolved', updated_at = ? WHERE id = ? AND user_id = ?",
		now(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := GetPost(ctx, id, userID); err != nil {
			return nil, err
		}
		return nil, ErrForbidden
	}
	return GetPost(ctx, id, userID)
}

func DeletePost(ctx context.Context, id, userID int64) error {
	res, err := DB.ExecContext(ctx, "DELETE FROM posts WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := GetPost(ctx, id, userID); err != nil {
			return err
		}
		return ErrForbidden
	}
	return nil
}

// AdminDeletePost removes any post regardless of author.
func AdminDeletePost(ctx context.Context, id int64) error {
	res, err := DB.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleLike adds or removes the user's reaction and reports whether the
// post is now liked along with the new count.
func ToggleLike(ctx context.Context, postID, userID int64) (liked bool, count int, err error) {
	if _, err := GetPost(ctx, postID, userID); err != nil {
		return false, 0, err
	}
	res, err := DB.ExecContext(ctx,
		"DELETE FROM post_reactions WHERE post_id = ? AND user_id = ?", postID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("toggle like: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = DB.ExecContext(ctx,
			"INSERT INTO post_reactions (post_id, user_id, created_at) VALUES (?, ?, ?)",
			postID, userID, now())
		if err != nil {
			return false, 0, fmt.Errorf("toggle like: %w", err)
		}
		liked = true
	}
	err = DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM post_reactions WHERE post_id = ?", postID).Scan(&count)
	return liked, count, err
}

// Comments

// CreateComment adds a comment to a post. Replies are one level deep: a
// reply to a reply is attached to that reply's top-level parent.
func CreateComment(ctx context.Context, postID, userID int64, parentID *int64, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalid)
	}
	if _, err := GetPost(ctx, postID, userID); err != nil {
		return nil, err
	}
	if parentID != nil {
		var parentPost int64
		var grandparent *int64
		err := DB.QueryRowContext(ctx,
			"SELECT post_id, parent_id FROM comments WHERE id = ?", *parentID,
		).Scan(&parentPost, &grandparent)
		if err != nil {
			return nil, notFound(err)
		}
		if parentPost != postID {
			return nil, fmt.Errorf("%w: parent comment belongs to another post", ErrInvalid)
		}
		if grandparent != nil {
			parentID = grandparent
		}
	}

	res, err := DB.ExecContext(ctx,
		"INSERT INTO comments (post_id, user_id, parent_id, content, created_at) VALUES (?, ?, ?, ?, ?)",
		postID, userID, parentID, content, now())
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	id, _ := res.LastInsertId()
	return getComment(ctx, id)
}

func getComment(ctx context.Context, id int64) (*Comment, error) {
	var c Comment
	err := DB.QueryRowContext(ctx,
		"SELECT id, post_id, user_id, parent_id, content, created_at FROM comments WHERE id = ?", id,
	).Scan(&c.ID, &c.PostID, &c.UserID, &c.ParentID, &c.Content, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	authors, err := publicUsers(ctx, []int64{c.UserID})
	if err != nil {
		return nil, err
	}
	if a, ok := authors[c.UserID]; ok {
		c.Author = &a
	}
	return &c, nil
}

// ListComments returns a post's comments oldest first.
func ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	rows, err := DB.QueryContext(ctx,
		"SELECT id, post_id, user_id, parent_id, content, created_at FROM comments WHERE post_id = ? ORDER BY id",
		postID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	var comments []Comment
	var ids []int64
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.ParentID, &c.Content, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		comments = append(comments, c)
		ids = append(ids, c.UserID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	authors, err := publicUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		if a, ok := authors[comments[i].UserID]; ok {
			comments[i].Author = &a
		}
	}
	return comments, nil
}

// DeleteComment removes a comment written by userID, or any comment when
// asAdmin is set. Replies go with their parent.
func DeleteComment(ctx context.Context, id, userID int64, asAdmin bool) error {
	c, err := getComment(ctx, id)
	if err != nil {
		return err
	}
	if c.UserID != userID && !asAdmin {
		return ErrForbidden
	}
	_, err = DB.ExecContext(ctx, "DELETE FROM comments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
