package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kidandcat/communityconnect/internal/config"
	"github.com/kidandcat/communityconnect/internal/db"
)

// Sessions issues the login cookie and resolves it back to a user.
type Sessions struct {
	cookie string
	ttl    time.Duration
	secure bool
}

// NewSessions takes the cookie name and lifetime from cfg. Cookies are
// marked Secure when the public base URL is https.
func NewSessions(cfg config.Config) *Sessions {
	s := &Sessions{
		cookie: cfg.Session.CookieName,
		ttl:    cfg.Session.TTL,
		secure: strings.HasPrefix(cfg.BaseURL, "https://"),
	}
	if s.cookie == "" {
		s.cookie = config.DefaultConfig().Session.CookieName
	}
	if s.ttl <= 0 {
		s.ttl = db.SessionTTL
	}
	return s
}

// User returns the signed-in user, or nil for anonymous, unknown or
// expired sessions.
func (s *Sessions) User(r *http.Request) *db.User {
	c, err := r.Cookie(s.cookie)
	if err != nil || c.Value == "" {
		return nil
	}
	u, err := db.GetUserBySession(r.Context(), c.Value)
	if err != nil {
		return nil
	}
	return u
}

// Start opens a session for userID and sets its cookie on w. The cookie
// and the stored session expire together.
func (s *Sessions) Start(ctx context.Context, w http.ResponseWriter, userID int64) error {
	token, err := db.CreateSession(ctx, userID, s.ttl)
	if err != nil {
		return err
	}
	s.write(w, token, int(s.ttl/time.Second))
	return nil
}

// End drops the request's session, if any, and expires the cookie.
func (s *Sessions) End(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.cookie); err == nil {
		db.DeleteSession(r.Context(), c.Value)
	}
	s.write(w, "", -1)
}

func (s *Sessions) write(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
