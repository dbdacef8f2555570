package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kidandcat/communityconnect/internal/db"
)

const maxPlacements = 10

type adRequest struct {
	BusinessName     *string `json:"business_name"`
	Title            *string `json:"title"`
	Content          *string `json:"content"`
	ImageURL         *string `json:"image_url"`
	CTAURL           *string `json:"cta_url"`
	CTAText          *string `json:"cta_text"`
	Suburb           *string `json:"suburb"`
	DailyBudgetCents *int64  `json:"daily_budget_cents"`
	Paused           *bool   `json:"paused"`
}

func validCTA(raw string) bool {
	if raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func (s *Server) regionFor(suburb string) string {
	if reg := s.regions.FindBySuburb(suburb); reg != nil {
		return reg.Slug
	}
	return ""
}

func (s *Server) handleCreateAd(w http.ResponseWriter, r *http.Request, u *db.User) {
	var req adRequest
	if !decode(w, r, &req) {
		return
	}
	if !validCTA(str(req.CTAURL)) {
		writeError(w, http.StatusBadRequest, "invalid cta_url")
		return
	}
	a := db.Ad{
		OwnerID:      u.ID,
		BusinessName: str(req.BusinessName),
		Title:        str(req.Title),
		Content:      str(req.Content),
		ImageURL:     str(req.ImageURL),
		CTAURL:       str(req.CTAURL),
		CTAText:      str(req.CTAText),
		Suburb:       str(req.Suburb),
	}
	a.Region = s.regionFor(a.Suburb)
	if req.DailyBudgetCents != nil {
		a.DailyBudgetCents = *req.DailyBudgetCents
	}

	created, err := db.CreateAd(r.Context(), a)
	if err != nil {
		s.fail(w, r, "create ad", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleMyAds(w http.ResponseWriter, r *http.Request, u *db.User) {
	ads, err := db.ListAdsByOwner(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, "list ads", err)
		return
	}
	if ads == nil {
		ads = []db.Ad{}
	}
	writeJSON(w, http.StatusOK, ads)
}

// handleUpdateAd covers owner edits as well as pause and resume.
func (s *Server) handleUpdateAd(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req adRequest
	if !decode(w, r, &req) {
		return
	}
	if req.BusinessName != nil {
		writeError(w, http.StatusBadRequest, "business_name cannot be changed")
		return
	}
	if req.CTAURL != nil && !validCTA(str(req.CTAURL)) {
		writeError(w, http.StatusBadRequest, "invalid cta_url")
		return
	}
	upd := db.AdUpdate{
		Title:            req.Title,
		Content:          req.Content,
		ImageURL:         req.ImageURL,
		CTAURL:           req.CTAURL,
		CTAText:          req.CTAText,
		Suburb:           req.Suburb,
		DailyBudgetCents: req.DailyBudgetCents,
		Paused:           req.Paused,
	}
	if req.Suburb != nil {
		region := s.regionFor(strings.TrimSpace(*req.Suburb))
		upd.Region = &region
	}

	a, err := db.UpdateAd(r.Context(), id, u.ID, upd)
	if err != nil {
		s.fail(w, r, "update ad", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handlePlacements(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	if region == "all" {
		region = ""
	}
	if region != "" && s.regions.Get(region) == nil {
		writeError(w, http.StatusBadRequest, "unknown region")
		return
	}
	n := 1
	if v := r.URL.Query().Get("count"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
	}
	n = min(n, maxPlacements)

	ads, err := db.PickPlacements(r.Context(), region, n)
	if err != nil {
		s.fail(w, r, "pick placements", err)
		return
	}
	writeJSON(w, http.StatusOK, ads)
}

func (s *Server) handleAdClick(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := db.RecordClick(r.Context(), id)
	if err != nil {
		s.fail(w, r, "record click", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cta_url": a.CTAURL, "clicks": a.Clicks})
}
