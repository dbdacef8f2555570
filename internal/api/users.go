package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/geo"
)

const maxBatchUsers = 100

func viewerID(r *http.Request) int64 {
	if u := currentUser(r); u != nil {
		return u.ID
	}
	return 0
}

// handleBatchUsers returns public profiles keyed by id. Unknown ids are
// left out.
func (s *Server) handleBatchUsers(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, raw := range r.URL.Query()["ids"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, http.StatusBadRequest, "invalid id "+strconv.Quote(part))
				return
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	if len(ids) > maxBatchUsers {
		writeError(w, http.StatusBadRequest, "at most 100 ids")
		return
	}

	users, err := db.GetUsersByIDs(r.Context(), ids)
	if err != nil {
		s.fail(w, r, "batch users", err)
		return
	}
	out := make(map[string]db.PublicUser, len(users))
	for i := range users {
		out[strconv.FormatInt(users[i].ID, 10)] = users[i].Public()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := db.GetUserByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get user", err)
		return
	}
	posts, err := db.ListPostsByUser(r.Context(), id, viewerID(r))
	if err != nil {
		s.fail(w, r, "list user posts", err)
		return
	}
	if posts == nil {
		posts = []*db.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  u.Public(),
		"posts": posts,
	})
}

type profileRequest struct {
	DisplayName *string  `json:"display_name"`
	Bio         *string  `json:"bio"`
	AvatarURL   *string  `json:"avatar_url"`
	HomeSuburb  *string  `json:"home_suburb"`
	HomeLat     *float64 `json:"home_lat"`
	HomeLng     *float64 `json:"home_lng"`
	ClearHome   bool     `json:"clear_home"`
}

// handleUpdateMe edits the caller's profile. The home region is derived
// from the home suburb, falling back to the home coordinates.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, u *db.User) {
	var req profileRequest
	if !decode(w, r, &req) {
		return
	}
	upd := db.ProfileUpdate{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
		HomeSuburb:  req.HomeSuburb,
		ClearHome:   req.ClearHome,
	}
	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, "display name cannot be empty")
		return
	}

	if (req.HomeLat == nil) != (req.HomeLng == nil) {
		writeError(w, http.StatusBadRequest, "home_lat and home_lng go together")
		return
	}
	var home geo.Point
	if req.HomeLat != nil && !req.ClearHome {
		home = geo.Point{Lat: *req.HomeLat, Lng: *req.HomeLng}
		if !home.Valid() {
			writeError(w, http.StatusBadRequest, "invalid home coordinates")
			return
		}
		upd.HomeLat, upd.HomeLng = req.HomeLat, req.HomeLng
	} else if !req.ClearHome && u.HomeLat != nil && u.HomeLng != nil {
		home = geo.Point{Lat: *u.HomeLat, Lng: *u.HomeLng}
	}

	if req.HomeSuburb != nil || upd.HomeLat != nil || req.ClearHome {
		suburb := u.HomeSuburb
		if req.HomeSuburb != nil {
			suburb = strings.TrimSpace(*req.HomeSuburb)
		}
		region := ""
		if reg := s.regions.Resolve(suburb, "", home); reg != nil {
			region = reg.Slug
		}
		upd.HomeRegion = &region
	}

	updated, err := db.UpdateProfile(r.Context(), u.ID, upd)
	if err != nil {
		s.fail(w, r, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAcceptTerms(w http.ResponseWriter, r *http.Request, u *db.User) {
	updated, err := db.AcceptTerms(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, "accept terms", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request, u *db.User) {
	updated, err := db.CompleteOnboarding(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, "complete onboarding", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
