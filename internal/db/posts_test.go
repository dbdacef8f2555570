package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetPost(t *testing.T) {
	ctx := setupDB(t)
	u := mustUser(t, ctx, "a@example.com")

	_, err := CreatePost(ctx, Post{UserID: u.ID, Title: "   "})
	assert.ErrorIs(t, err, ErrInvalid)

	p, err := CreatePost(ctx, Post{
		UserID: u.ID, Title: "Power lines down", Description: "On **Main St**",
		Category: "emergency", Severity: "high", Lat: -27.47, Lng: 153.02,
		Suburb: "Brisbane City", Region: "brisbane",
	})
	require.NoError(t, err)
	assert.Equal(t, PostActive, p.Status)
	require.NotNil(t, p.Author)
	assert.Equal(t, "a", p.Author.DisplayName)
	assert.Zero(t, p.LikeCount)

	_, err = GetPost(ctx, 999, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateResolveDeleteOwnership(t *testing.T) {
	ctx := setupDB(t)
	owner := mustUser(t, ctx, "owner@example.com")
	other := mustUser(t, ctx, "other@example.com")
	p, err := CreatePost(ctx, Post{UserID: owner.ID, Title: "Lost dog", Category: "pets", Severity: "low"})
	require.NoError(t, err)

	title := "Lost dog near park"
	_, err = UpdatePost(ctx, p.ID, other.ID, PostUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := UpdatePost(ctx, p.ID, owner.ID, PostUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	_, err = ResolvePost(ctx, p.ID, other.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	resolved, err := ResolvePost(ctx, p.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, PostResolved, resolved.Status)

	assert.ErrorIs(t, DeletePost(ctx, p.ID, other.ID), ErrForbidden)
	require.NoError(t, DeletePost(ctx, p.ID, owner.ID))
	assert.ErrorIs(t, DeletePost(ctx, p.ID, owner.ID), ErrNotFound)
	assert.ErrorIs(t, AdminDeletePost(ctx, p.ID), ErrNotFound)
}

func TestToggleLike(t *testing.T) {
	ctx := setupDB(t)
	a := mustUser(t, ctx, "a@example.com")
	b := mustUser(t, ctx, "b@example.com")
	p, err := CreatePost(ctx, Post{UserID: a.ID, Title: "Flooded crossing", Category: "flood", Severity: "high"})
	require.NoError(t, err)

	liked, count, err := ToggleLike(ctx, p.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, count)

	got, err := GetPost(ctx, p.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Liked)
	got, err = GetPost(ctx, p.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Liked)
	assert.Equal(t, 1, got.LikeCount)

	liked, count, err = ToggleLike(ctx, p.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Zero(t, count)
}

func TestCommentsAreOneLevelDeep(t *testing.T) {
	ctx := setupDB(t)
	a := mustUser(t, ctx, "a@example.com")
	b := mustUser(t, ctx, "b@example.com")
	p, err := CreatePost(ctx, Post{UserID: a.ID, Title: "Smoke seen", Category: "fire", Severity: "high"})
	require.NoError(t, err)
	other, err := CreatePost(ctx, Post{UserID: a.ID, Title: "Other", Category: "other", Severity: "low"})
	require.NoError(t, err)

	top, err := CreateComment(ctx, p.ID, b.ID, nil, "Can see it from Bardon")
	require.NoError(t, err)
	assert.Nil(t, top.ParentID)

	reply, err := CreateComment(ctx, p.ID, a.ID, &top.ID, "Thanks")
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, top.ID, *reply.ParentID)

	nested, err := CreateComment(ctx, p.ID, b.ID, &reply.ID, "No worries")
	require.NoError(t, err)
	require.NotNil(t, nested.ParentID)
	assert.Equal(t, top.ID, *nested.ParentID)

	_, err = CreateComment(ctx, other.ID, b.ID, &top.ID, "wrong post")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = CreateComment(ctx, p.ID, b.ID, nil, "  ")
	assert.ErrorIs(t, err, ErrInvalid)

	comments, err := ListComments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "b", comments[0].Author.DisplayName)

	got, err := GetPost(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CommentCount)

	assert.ErrorIs(t, DeleteComment(ctx, top.ID, a.ID, false), ErrForbidden)
	require.NoError(t, DeleteComment(ctx, top.ID, a.ID, true))
	comments, err = ListComments(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestListRecentPosts(t *testing.T) {
	ctx := setupDB(t)
	advance := freezeClock(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	u := mustUser(t, ctx, "a@example.com")

	old, err := CreatePost(ctx, Post{UserID: u.ID, Title: "old", Category: "other", Severity: "low"})
	require.NoError(t, err)
	advance(48 * time.Hour)
	cutoff := now()
	advance(time.Hour)
	newer, err := CreatePost(ctx, Post{UserID: u.ID, Title: "newer", Category: "other", Severity: "low"})
	require.NoError(t, err)
	advance(time.Hour)
	newest, err := CreatePost(ctx, Post{UserID: u.ID, Title: "newest", Category: "other", Severity: "low"})
	require.NoError(t, err)

	posts, err := ListRecentPosts(ctx, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, newest.ID, posts[0].ID)
	assert.Equal(t, newer.ID, posts[1].ID)
	assert.NotNil(t, posts[0].Author)

	mine, err := ListPostsByUser(ctx, u.ID, u.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
	assert.Equal(t, old.ID, mine[2].ID)
}
