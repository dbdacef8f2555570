package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kidandcat/communityconnect/internal/config"
	"github.com/kidandcat/communityconnect/internal/db"
)

func TestSessionsRoundTrip(t *testing.T) {
	require.NoError(t, db.Init(t.TempDir()))
	t.Cleanup(db.Close)
	ctx := context.Background()

	u, err := db.GetOrCreateUser(ctx, "a@example.com")
	require.NoError(t, err)

	sessions := NewSessions(*config.DefaultConfig())
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Start(ctx, rec, u.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "cc_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.False(t, cookies[0].Secure)
	assert.Equal(t, int(db.SessionTTL/time.Second), cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, sessions.User(req))

	req.AddCookie(cookies[0])
	got := sessions.User(req)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	rec = httptest.NewRecorder()
	sessions.End(rec, req)
	assert.Nil(t, sessions.User(req))
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestSessionsFollowConfig(t *testing.T) {
	require.NoError(t, db.Init(t.TempDir()))
	t.Cleanup(db.Close)
	ctx := context.Background()

	u, err := db.GetOrCreateUser(ctx, "b@example.com")
	require.NoError(t, err)

	cfg := *config.DefaultConfig()
	cfg.BaseURL = "https://cc.example"
	cfg.Session = config.SessionConfig{CookieName: "qld_sid", TTL: 2 * time.Hour}
	sessions := NewSessions(cfg)

	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Start(ctx, rec, u.ID))
	c := rec.Result().Cookies()[0]
	assert.Equal(t, "qld_sid", c.Name)
	assert.True(t, c.Secure)
	assert.Equal(t, 7200, c.MaxAge)

	// a cookie under another name is not a session
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "cc_session", Value: c.Value})
	assert.Nil(t, sessions.User(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	require.NotNil(t, sessions.User(req))

	defaults := NewSessions(config.Config{})
	assert.Equal(t, "cc_session", defaults.cookie)
	assert.Equal(t, db.SessionTTL, defaults.ttl)
}

func TestResendMailer(t *testing.T) {
	var got resendRequest
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := &resendMailer{
		cfg:      config.EmailConfig{FromEmail: "alerts@example.com", ResendAPIKey: "re_123"},
		baseURL:  "https://cc.example",
		endpoint: srv.URL,
		client:   srv.Client(),
	}
	require.NoError(t, m.SendMagicLink(context.Background(), "a@example.com", "tok"))
	assert.Equal(t, "Bearer re_123", authHeader)
	assert.Equal(t, []string{"a@example.com"}, got.To)
	assert.Contains(t, got.HTML, "https://cc.example/auth/verify?token=tok")
}

func TestResendMailerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	m := &resendMailer{endpoint: srv.URL, client: srv.Client()}
	assert.Error(t, m.SendMagicLink(context.Background(), "a@example.com", "tok"))
}

func TestNewMailerFallsBackToLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := *config.DefaultConfig()

	m := NewMailer(cfg, zap.New(core))
	require.IsType(t, &logMailer{}, m)
	require.NoError(t, m.SendMagicLink(context.Background(), "a@example.com", "tok"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, cfg.BaseURL+"/auth/verify?token=tok", logs.All()[0].ContextMap()["link"])

	cfg.Email.ResendAPIKey = "key"
	assert.IsType(t, &resendMailer{}, NewMailer(cfg, zap.NewNop()))
	cfg.Email.SMTPEnabled = true
	assert.IsType(t, &smtpMailer{}, NewMailer(cfg, zap.NewNop()))
}
