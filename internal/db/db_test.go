package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) context.Context {
	t.Helper()
	require.NoError(t, Init(t.TempDir()))
	t.Cleanup(Close)
	return context.Background()
}

// freezeClock pins the storage clock and returns a function to move it.
func freezeClock(t *testing.T, start time.Time) func(time.Duration) {
	t.Helper()
	cur := start.UTC()
	orig := now
	now = func() time.Time { return cur }
	t.Cleanup(func() { now = orig })
	return func(d time.Duration) { cur = cur.Add(d) }
}

func mustUser(t *testing.T, ctx context.Context, email string) *User {
	t.Helper()
	u, err := GetOrCreateUser(ctx, email)
	require.NoError(t, err)
	return u
}

func TestInitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	Close()
	require.NoError(t, Init(dir))
	Close()
}

func TestGetOrCreateUser(t *testing.T) {
	ctx := setupDB(t)

	u := mustUser(t, ctx, "  Alice@Example.com ")
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "alice", u.DisplayName)
	assert.Equal(t, RoleUser, u.Role)
	assert.False(t, u.AcceptedTerms())

	again := mustUser(t, ctx, "alice@example.com")
	assert.Equal(t, u.ID, again.ID)
}

func TestGetUsersByIDsSkipsMissing(t *testing.T) {
	ctx := setupDB(t)
	a := mustUser(t, ctx, "a@example.com")
	b := mustUser(t, ctx, "b@example.com")

	users, err := GetUsersByIDs(ctx, []int64{b.ID, 999, a.ID})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, a.ID, users[0].ID)
	assert.Equal(t, b.ID, users[1].ID)

	none, err := GetUsersByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateProfile(t *testing.T) {
	ctx := setupDB(t)
	u := mustUser(t, ctx, "a@example.com")

	name, suburb, region := " Alice ", "Paddington", "brisbane"
	lat, lng := -27.46, 153.0
	got, err := UpdateProfile(ctx, u.ID, ProfileUpdate{
		DisplayName: &name, HomeSuburb: &suburb, HomeRegion: &region, HomeLat: &lat, HomeLng: &lng,
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)

	stored, err := GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paddington", stored.HomeSuburb)
	assert.Equal(t, "brisbane", stored.HomeRegion)
	require.NotNil(t, stored.HomeLat)
	assert.InDelta(t, -27.46, *stored.HomeLat, 1e-9)

	_, err = UpdateProfile(ctx, u.ID, ProfileUpdate{ClearHome: true})
	require.NoError(t, err)
	stored, err = GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.HomeLat)
	assert.Equal(t, "Alice", stored.DisplayName)

	_, err = UpdateProfile(ctx, 999, ProfileUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOnboardingRequiresTerms(t *testing.T) {
	ctx := setupDB(t)
	u := mustUser(t, ctx, "a@example.com")

	_, err := CompleteOnboarding(ctx, u.ID)
	assert.ErrorIs(t, err, ErrTermsRequired)

	accepted, err := AcceptTerms(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, accepted.TermsAcceptedAt)

	// accepting again keeps the first timestamp
	advance := freezeClock(t, time.Now().Add(time.Hour))
	advance(time.Hour)
	again, err := AcceptTerms(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, accepted.TermsAcceptedAt.Equal(*again.TermsAcceptedAt))

	done, err := CompleteOnboarding(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, done.OnboardedAt)
}

func TestSetRoleAndEnsureAdmin(t *testing.T) {
	ctx := setupDB(t)
	u := mustUser(t, ctx, "a@example.com")

	assert.ErrorIs(t, SetRole(ctx, u.ID, "wizard"), ErrInvalid)
	assert.ErrorIs(t, SetRole(ctx, 999, RoleBusiness), ErrNotFound)
	require.NoError(t, SetRole(ctx, u.ID, RoleBusiness))

	admin, err := EnsureAdmin(ctx, "boss@example.com")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())

	stored, err := GetUserByEmail(ctx, "BOSS@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, stored.Role)
}

func TestMagicTokenFlow(t *testing.T) {
	ctx := setupDB(t)

	token, err := CreateMagicToken(ctx, "a@example.com")
	require.NoError(t, err)

	status, email, err := CheckMagicTokenStatus(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "pending", status)
	assert.Equal(t, "a@example.com", email)

	// not approved yet
	assert.ErrorIs(t, MarkMagicTokenUsed(ctx, token), ErrConflict)

	_, err = ApproveMagicToken(ctx, token)
	require.NoError(t, err)
	status, _, err = CheckMagicTokenStatus(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "approved", status)

	require.NoError(t, MarkMagicTokenUsed(ctx, token))
	assert.ErrorIs(t, MarkMagicTokenUsed(ctx, token), ErrConflict)

	status, _, err = CheckMagicTokenStatus(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "used", status)

	_, _, err = CheckMagicTokenStatus(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMagicTokenExpires(t *testing.T) {
	ctx := setupDB(t)
	advance := freezeClock(t, time.Now())

	token, err := CreateMagicToken(ctx, "a@example.com")
	require.NoError(t, err)
	advance(MagicTokenTTL + time.Second)

	status, _, err := CheckMagicTokenStatus(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "expired", status)
	_, err = ApproveMagicToken(ctx, token)
	assert.Error(t, err)
}

func TestSessions(t *testing.T) {
	ctx := setupDB(t)
	advance := freezeClock(t, time.Now())
	u := mustUser(t, ctx, "a@example.com")

	token, err := CreateSession(ctx, u.ID, 0)
	require.NoError(t, err)

	got, err := GetUserBySession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	DeleteSession(ctx, token)
	_, err = GetUserBySession(ctx, token)
	assert.Error(t, err)

	token, err = CreateSession(ctx, u.ID, 0)
	require.NoError(t, err)
	advance(SessionTTL + time.Minute)
	_, err = GetUserBySession(ctx, token)
	assert.Error(t, err)

	token, err = CreateSession(ctx, u.ID, time.Hour)
	require.NoError(t, err)
	advance(59 * time.Minute)
	_, err = GetUserBySession(ctx, token)
	require.NoError(t, err)
	advance(2 * time.Minute)
	_, err = GetUserBySession(ctx, token)
	assert.Error(t, err)
}

func TestDeleteExpired(t *testing.T) {
	ctx := setupDB(t)
	advance := freezeClock(t, time.Now())
	u := mustUser(t, ctx, "a@example.com")

	_, err := CreateMagicToken(ctx, "a@example.com")
	require.NoError(t, err)
	_, err = CreateStory(ctx, u.ID, "sunset over the river", "", "Kangaroo Point")
	require.NoError(t, err)
	_, err = CreateSession(ctx, u.ID, 0)
	require.NoError(t, err)

	advance(25 * time.Hour)
	n, err := DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n) // token and story; the session is still valid

	stories, err := ListActiveStories(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, stories)
}
