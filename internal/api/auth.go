package api

import (
	"errors"
	"html/template"
	"net/http"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/kidandcat/communityconnect/internal/db"
)

func (s *Server) RegisterAuthRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/magic-link", s.handleMagicLink)
	mux.HandleFunc("GET /api/auth/check-status", s.handleCheckStatus)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)

	// Server-side rendered pages for email verification
	mux.HandleFunc("GET /auth/verify", s.handleVerifyPage)
	mux.HandleFunc("POST /auth/verify", s.handleVerifyApprove)
}

func (s *Server) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}

	token, err := db.CreateMagicToken(r.Context(), email)
	if err != nil {
		s.fail(w, r, "create magic token", err)
		return
	}

	if s.mailer != nil {
		if err := s.mailer.SendMagicLink(r.Context(), email, token); err != nil {
			s.logger.Error("send magic link", zap.String("email", email), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":  token,
		"status": "pending",
	})
}

func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token required")
		return
	}

	status, email, err := db.CheckMagicTokenStatus(r.Context(), token)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "invalid"})
		return
	}
	if err != nil {
		s.fail(w, r, "check magic token", err)
		return
	}
	if status != "approved" {
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
		return
	}

	// Approved: exchange for a session exactly once.
	if err := db.MarkMagicTokenUsed(r.Context(), token); err != nil {
		if errors.Is(err, db.ErrConflict) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "used"})
			return
		}
		s.fail(w, r, "mark token used", err)
		return
	}

	user, err := db.GetOrCreateUser(r.Context(), email)
	if err != nil {
		s.fail(w, r, "get or create user", err)
		return
	}
	if s.cfg.IsAdminEmail(email) && !user.IsAdmin() {
		if user, err = db.EnsureAdmin(r.Context(), email); err != nil {
			s.fail(w, r, "ensure admin", err)
			return
		}
	}

	if err := s.sessions.Start(r.Context(), w, user.ID); err != nil {
		s.fail(w, r, "create session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "approved",
		"redirect": "/",
		"user":     user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.End(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	unreadMessages, err := db.UnreadMessageCount(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, "unread messages", err)
		return
	}
	unreadNotifications, err := db.UnreadNotificationCount(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, "unread notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated":        true,
		"user":                 user,
		"unread_messages":      unreadMessages,
		"unread_notifications": unreadNotifications,
	})
}

var verifyPage = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Title}} - Community Connect</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;background:#0b1f2a;color:#e2e8f0;display:flex;align-items:center;justify-content:center;min-height:100vh}
.card{background:#12303f;border:1px solid #1f4a5e;border-radius:16px;padding:40px;max-width:400px;width:90%;text-align:center}
.check{font-size:48px;margin-bottom:16px}
h1{font-size:20px;margin-bottom:8px}
p{color:#94a3b8;font-size:14px}
.email{color:#f59e0b;font-size:14px;margin-bottom:24px}
.btn{display:inline-block;background:#f59e0b;color:#0b1f2a;border:none;border-radius:10px;padding:12px 32px;font-size:15px;cursor:pointer}
</style></head><body>
<div class="card">
{{if .Token}}
<h1>Approve sign-in</h1>
<p class="email">{{.Email}}</p>
<form method="POST" action="/auth/verify">
<input type="hidden" name="token" value="{{.Token}}">
<button type="submit" class="btn">Approve session</button>
</form>
{{else}}
<div class="check">&#10003;</div>
<h1>{{.Title}}</h1>
<p>You can close this tab and return to Community Connect.</p>
{{end}}
</div></body></html>`))

type verifyData struct {
	Title string
	Email string
	Token string
}

func (s *Server) renderVerify(w http.ResponseWriter, data verifyData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := verifyPage.Execute(w, data); err != nil {
		s.logger.Error("render verify page", zap.Error(err))
	}
}

// handleVerifyPage is opened from the email. It only renders the
// confirm button; approval happens on POST.
func (s *Server) handleVerifyPage(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusBadRequest)
		return
	}

	email, err := db.ValidateMagicToken(r.Context(), token)
	if err != nil {
		http.Error(w, "Invalid or expired link", http.StatusBadRequest)
		return
	}
	s.renderVerify(w, verifyData{Title: "Approve sign-in", Email: email, Token: token})
}

func (s *Server) handleVerifyApprove(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusBadRequest)
		return
	}

	if _, err := db.ApproveMagicToken(r.Context(), token); err != nil {
		http.Error(w, "Invalid or expired link", http.StatusBadRequest)
		return
	}
	s.renderVerify(w, verifyData{Title: "Session approved"})
}
