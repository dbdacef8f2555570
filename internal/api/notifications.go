package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/incident"
)

// pushSubscription mirrors the browser's PushSubscription.toJSON().
type pushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request, u *db.User) {
	var req pushSubscription
	if !decode(w, r, &req) {
		return
	}
	ep, err := url.Parse(req.Endpoint)
	if err != nil || ep.Scheme != "https" || ep.Host == "" {
		writeError(w, http.StatusBadRequest, "invalid endpoint")
		return
	}
	if req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "keys required")
		return
	}
	sub, err := db.UpsertPushSubscription(r.Context(), u.ID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		s.fail(w, r, "push subscribe", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request, u *db.User) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := db.DeletePushSubscription(r.Context(), u.ID, req.Endpoint); err != nil {
		s.fail(w, r, "push unsubscribe", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request, u *db.User) {
	p, err := db.GetNotificationPrefs(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, "get preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSavePrefs(w http.ResponseWriter, r *http.Request, u *db.User) {
	var req db.NotificationPrefs
	if !decode(w, r, &req) {
		return
	}
	p := db.NotificationPrefs{
		UserID:     u.ID,
		Enabled:    req.Enabled,
		Categories: []string{},
		Regions:    []string{},
		RadiusKm:   req.RadiusKm,
	}
	for _, c := range req.Categories {
		cat, ok := incident.ParseCategory(c)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown category "+strconv.Quote(c))
			return
		}
		p.Categories = append(p.Categories, string(cat))
	}
	sev := incident.SeverityHigh
	if req.MinSeverity != "" {
		var ok bool
		if sev, ok = incident.ParseSeverity(req.MinSeverity); !ok {
			writeError(w, http.StatusBadRequest, "unknown severity "+strconv.Quote(req.MinSeverity))
			return
		}
	}
	p.MinSeverity = string(sev)
	for _, slug := range req.Regions {
		reg := s.regions.Get(slug)
		if reg == nil {
			writeError(w, http.StatusBadRequest, "unknown region "+strconv.Quote(slug))
			return
		}
		p.Regions = append(p.Regions, reg.Slug)
	}
	if p.RadiusKm > 0 && (u.HomeLat == nil || u.HomeLng == nil) {
		writeError(w, http.StatusBadRequest, "radius needs a home location")
		return
	}

	if err := db.SaveNotificationPrefs(r.Context(), p); err != nil {
		s.fail(w, r, "save preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, u *db.User) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := db.ListNotifications(r.Context(), u.ID, limit)
	if err != nil {
		s.fail(w, r, "list notifications", err)
		return
	}
	unread, err := db.UnreadNotificationCount(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, "count notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list, "unread": unread})
}

func (s *Server) handleReadNotification(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := db.MarkNotificationRead(r.Context(), id, u.ID); err != nil {
		s.fail(w, r, "read notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReadAllNotifications(w http.ResponseWriter, r *http.Request, u *db.User) {
	n, err := db.MarkAllNotificationsRead(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, "read all notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request, u *db.User) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}
	s.hub.ServeWS(w, r, u.ID)
}
