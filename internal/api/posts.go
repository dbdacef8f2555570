package api

import (
	"net/http"
	"strings"

	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/feeds"
	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/incident"
	"github.com/kidandcat/communityconnect/internal/render"
)

const (
	maxTitleLength   = 200
	maxContentLength = 10000
)

type postView struct {
	*db.Post
	DescriptionHTML string `json:"description_html"`
}

func viewPost(p *db.Post) postView {
	return postView{Post: p, DescriptionHTML: render.Markdown(p.Description)}
}

type commentView struct {
	db.Comment
	ContentHTML string `json:"content_html"`
}

type postRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Category     *string  `json:"category"`
	Severity     *string  `json:"severity"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	LocationText *string  `json:"location_text"`
	Suburb       *string  `json:"suburb"`
	PhotoURL     *string  `json:"photo_url"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request, u *db.User) {
	var req postRequest
	if !decode(w, r, &req) {
		return
	}
	title := str(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title required")
		return
	}
	if len(title) > maxTitleLength || len(str(req.Description)) > maxContentLength {
		writeError(w, http.StatusBadRequest, "post too long")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "location required")
		return
	}
	loc := geo.Point{Lat: *req.Lat, Lng: *req.Lng}
	if !loc.Valid() {
		writeError(w, http.StatusBadRequest, "invalid location")
		return
	}

	p := db.Post{
		UserID:       u.ID,
		Title:        title,
		Description:  str(req.Description),
		Category:     string(incident.NormalizeCategory(str(req.Category))),
		Severity:     string(incident.NormalizeSeverity(str(req.Severity))),
		Lat:          loc.Lat,
		Lng:          loc.Lng,
		LocationText: str(req.LocationText),
		Suburb:       str(req.Suburb),
		PhotoURL:     str(req.PhotoURL),
	}
	if reg := s.regions.Resolve(p.Suburb, p.LocationText, loc); reg != nil {
		p.Region = reg.Slug
	}

	created, err := db.CreatePost(r.Context(), p)
	if err != nil {
		s.fail(w, r, "create post", err)
		return
	}
	if s.notifier != nil {
		s.notifier.Handle(r.Context(), []incident.Incident{feeds.FromPost(created, s.regions)})
	}
	writeJSON(w, http.StatusCreated, viewPost(created))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := db.GetPost(r.Context(), id, viewerID(r))
	if err != nil {
		s.fail(w, r, "get post", err)
		return
	}
	writeJSON(w, http.StatusOK, viewPost(p))
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req postRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Lat != nil || req.Lng != nil {
		writeError(w, http.StatusBadRequest, "location cannot be changed")
		return
	}
	upd := db.PostUpdate{
		Title:        req.Title,
		Description:  req.Description,
		LocationText: req.LocationText,
		Suburb:       req.Suburb,
		PhotoURL:     req.PhotoURL,
	}
	if req.Category != nil {
		c := string(incident.NormalizeCategory(*req.Category))
		upd.Category = &c
	}
	if req.Severity != nil {
		sev := string(incident.NormalizeSeverity(*req.Severity))
		upd.Severity = &sev
	}

	if req.Suburb != nil || req.LocationText != nil {
		cur, err := db.GetPost(r.Context(), id, u.ID)
		if err != nil {
			s.fail(w, r, "get post", err)
			return
		}
		suburb, text := cur.Suburb, cur.LocationText
		if req.Suburb != nil {
			suburb = str(req.Suburb)
		}
		if req.LocationText != nil {
			text = str(req.LocationText)
		}
		region := ""
		if reg := s.regions.Resolve(suburb, text, geo.Point{Lat: cur.Lat, Lng: cur.Lng}); reg != nil {
			region = reg.Slug
		}
		upd.Region = &region
	}

	p, err := db.UpdatePost(r.Context(), id, u.ID, upd)
	if err != nil {
		s.fail(w, r, "update post", err)
		return
	}
	writeJSON(w, http.StatusOK, viewPost(p))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := db.DeletePost(r.Context(), id, u.ID); err != nil {
		s.fail(w, r, "delete post", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResolvePost(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := db.ResolvePost(r.Context(), id, u.ID)
	if err != nil {
		s.fail(w, r, "resolve post", err)
		return
	}
	writeJSON(w, http.StatusOK, viewPost(p))
}

func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	liked, count, err := db.ToggleLike(r.Context(), id, u.ID)
	if err != nil {
		s.fail(w, r, "toggle like", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": liked, "like_count": count})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := db.GetPost(r.Context(), id, 0); err != nil {
		s.fail(w, r, "get post", err)
		return
	}
	comments, err := db.ListComments(r.Context(), id)
	if err != nil {
		s.fail(w, r, "list comments", err)
		return
	}
	out := make([]commentView, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentView{Comment: c, ContentHTML: render.Markdown(c.Content)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Content  string `json:"content"`
		ParentID *int64 `json:"parent_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	if len(content) > maxContentLength {
		writeError(w, http.StatusBadRequest, "comment too long")
		return
	}

	c, err := db.CreateComment(r.Context(), id, u.ID, req.ParentID, content)
	if err != nil {
		s.fail(w, r, "create comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, commentView{Comment: *c, ContentHTML: render.Markdown(c.Content)})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := db.DeleteComment(r.Context(), id, u.ID, u.IsAdmin()); err != nil {
		s.fail(w, r, "delete comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
