// Package api serves the JSON HTTP surface the single page client talks to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kidandcat/communityconnect/internal/auth"
	"github.com/kidandcat/communityconnect/internal/cluster"
	"github.com/kidandcat/communityconnect/internal/config"
	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/feeds"
	"github.com/kidandcat/communityconnect/internal/incident"
	"github.com/kidandcat/communityconnect/internal/live"
	"github.com/kidandcat/communityconnect/internal/metrics"
	"github.com/kidandcat/communityconnect/internal/regions"
)

// Dispatcher receives incidents that should be fanned out to users.
type Dispatcher interface {
	Handle(ctx context.Context, incs []incident.Incident)
}

type Deps struct {
	Config     *config.Config
	Aggregator *feeds.Aggregator
	Regions    *regions.Table
	Hub        *live.Hub
	Notifier   Dispatcher
	Mailer     auth.Mailer
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

type Server struct {
	cfg      *config.Config
	agg      *feeds.Aggregator
	regions  *regions.Table
	hub      *live.Hub
	notifier Dispatcher
	mailer   auth.Mailer
	sessions *auth.Sessions
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cluster  *cluster.Clusterer
	now      func() time.Time
}

func New(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		agg:      d.Aggregator,
		regions:  d.Regions,
		hub:      d.Hub,
		notifier: d.Notifier,
		mailer:   d.Mailer,
		metrics:  d.Metrics,
		logger:   d.Logger,
		cluster:  cluster.New(cluster.DefaultOptions()),
		now:      d.Now,
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	s.sessions = auth.NewSessions(*s.cfg)
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.regions == nil {
		s.regions = regions.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Handler returns the routed mux wrapped in session and logging
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterAuthRoutes(mux)
	s.RegisterRoutes(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return s.logRequests(s.loadUser(mux))
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Feed and geo
	mux.HandleFunc("GET /api/unified", s.handleUnified)
	mux.HandleFunc("GET /api/clusters", s.handleClusters)
	mux.HandleFunc("GET /api/nearby", s.handleNearby)
	mux.HandleFunc("GET /api/regions", s.handleRegions)
	mux.HandleFunc("GET /api/regions/lookup", s.handleRegionLookup)
	mux.HandleFunc("GET /api/feeds/status", s.handleFeedStatus)

	// Users
	mux.HandleFunc("GET /api/batch-users", s.handleBatchUsers)
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)
	mux.HandleFunc("PATCH /api/me", s.authed(s.handleUpdateMe))
	mux.HandleFunc("POST /api/me/accept-terms", s.authed(s.handleAcceptTerms))
	mux.HandleFunc("POST /api/me/onboarding", s.authed(s.handleOnboarding))

	// Posts
	mux.HandleFunc("POST /api/posts", s.withTerms(s.handleCreatePost))
	mux.HandleFunc("GET /api/posts/{id}", s.handleGetPost)
	mux.HandleFunc("PATCH /api/posts/{id}", s.authed(s.handleUpdatePost))
	mux.HandleFunc("DELETE /api/posts/{id}", s.authed(s.handleDeletePost))
	mux.HandleFunc("POST /api/posts/{id}/resolve", s.authed(s.handleResolvePost))
	mux.HandleFunc("POST /api/posts/{id}/like", s.authed(s.handleLikePost))
	mux.HandleFunc("GET /api/posts/{id}/comments", s.handleListComments)
	mux.HandleFunc("POST /api/posts/{id}/comments", s.withTerms(s.handleCreateComment))
	mux.HandleFunc("DELETE /api/comments/{id}", s.authed(s.handleDeleteComment))

	// Messaging
	mux.HandleFunc("GET /api/conversations", s.authed(s.handleListConversations))
	mux.HandleFunc("POST /api/conversations", s.withTerms(s.handleStartConversation))
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.authed(s.handleListMessages))
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.withTerms(s.handleSendMessage))
	mux.HandleFunc("POST /api/conversations/{id}/read", s.authed(s.handleMarkRead))

	// Sponsored placements
	mux.HandleFunc("POST /api/ads", s.withTerms(s.handleCreateAd))
	mux.HandleFunc("GET /api/ads/mine", s.authed(s.handleMyAds))
	mux.HandleFunc("PATCH /api/ads/{id}", s.authed(s.handleUpdateAd))
	mux.HandleFunc("GET /api/ads/placements", s.handlePlacements)
	mux.HandleFunc("POST /api/ads/{id}/click", s.handleAdClick)

	// Stories
	mux.HandleFunc("GET /api/stories", s.handleListStories)
	mux.HandleFunc("POST /api/stories", s.withTerms(s.handleCreateStory))
	mux.HandleFunc("DELETE /api/stories/{id}", s.authed(s.handleDeleteStory))
	mux.HandleFunc("POST /api/stories/{id}/view", s.authed(s.handleViewStory))

	// Push and notifications
	mux.HandleFunc("POST /api/push/subscribe", s.authed(s.handlePushSubscribe))
	mux.HandleFunc("POST /api/push/unsubscribe", s.authed(s.handlePushUnsubscribe))
	mux.HandleFunc("GET /api/notifications/preferences", s.authed(s.handleGetPrefs))
	mux.HandleFunc("PUT /api/notifications/preferences", s.authed(s.handleSavePrefs))
	mux.HandleFunc("GET /api/notifications", s.authed(s.handleListNotifications))
	mux.HandleFunc("POST /api/notifications/{id}/read", s.authed(s.handleReadNotification))
	mux.HandleFunc("POST /api/notifications/read-all", s.authed(s.handleReadAllNotifications))

	mux.HandleFunc("GET /api/live", s.authed(s.handleLive))

	// Admin
	mux.HandleFunc("GET /api/admin/users", s.admin(s.handleAdminUsers))
	mux.HandleFunc("PATCH /api/admin/users/{id}", s.admin(s.handleAdminUpdateUser))
	mux.HandleFunc("DELETE /api/admin/users/{id}", s.admin(s.handleAdminDeleteUser))
	mux.HandleFunc("GET /api/admin/ads", s.admin(s.handleAdminAds))
	mux.HandleFunc("POST /api/admin/ads/{id}/approve", s.admin(s.handleAdminSetAdStatus(db.AdApproved)))
	mux.HandleFunc("POST /api/admin/ads/{id}/reject", s.admin(s.handleAdminSetAdStatus(db.AdRejected)))
	mux.HandleFunc("DELETE /api/admin/posts/{id}", s.admin(s.handleAdminDeletePost))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// fail maps storage errors onto status codes. Anything unexpected is
// logged and reported as an internal error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, db.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, db.ErrTermsRequired):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, db.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op, zap.String("request_id", requestID(r)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
