package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kidandcat/communityconnect/internal/db"
)

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, _ *db.User) {
	users, err := db.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, "list users", err)
		return
	}
	if users == nil {
		users = []db.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request, admin *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}
	if id == admin.ID && req.Role != db.RoleAdmin {
		writeError(w, http.StatusBadRequest, "cannot demote yourself")
		return
	}
	if err := db.SetRole(r.Context(), id, req.Role); err != nil {
		s.fail(w, r, "set role", err)
		return
	}
	u, err := db.GetUserByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get user", err)
		return
	}
	s.logger.Info("role changed", zap.Int64("user", id), zap.String("role", req.Role), zap.Int64("by", admin.ID))
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request, admin *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if id == admin.ID {
		writeError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}
	if err := db.DeleteUser(r.Context(), id); err != nil {
		s.fail(w, r, "delete user", err)
		return
	}
	s.logger.Info("user deleted", zap.Int64("user", id), zap.Int64("by", admin.ID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminAds(w http.ResponseWriter, r *http.Request, _ *db.User) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", db.AdPending, db.AdApproved, db.AdRejected, db.AdPaused:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	ads, err := db.ListAdsByStatus(r.Context(), status)
	if err != nil {
		s.fail(w, r, "list ads", err)
		return
	}
	if ads == nil {
		ads = []db.Ad{}
	}
	writeJSON(w, http.StatusOK, ads)
}

func (s *Server) handleAdminSetAdStatus(status string) userHandler {
	return func(w http.ResponseWriter, r *http.Request, admin *db.User) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		a, err := db.SetAdStatus(r.Context(), id, status)
		if err != nil {
			s.fail(w, r, "review ad", err)
			return
		}
		s.logger.Info("ad reviewed", zap.Int64("ad", id), zap.String("status", status), zap.Int64("by", admin.ID))
		writeJSON(w, http.StatusOK, a)
	}
}

func (s *Server) handleAdminDeletePost(w http.ResponseWriter, r *http.Request, admin *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := db.AdminDeletePost(r.Context(), id); err != nil {
		s.fail(w, r, "delete post", err)
		return
	}
	s.logger.Info("post removed", zap.Int64("post", id), zap.Int64("by", admin.ID))
	w.WriteHeader(http.StatusNoContent)
}
