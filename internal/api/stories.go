package api

import (
	"net/http"

	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/render"
)

type storyView struct {
	*db.Story
	ContentHTML string `json:"content_html"`
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	stories, err := db.ListActiveStories(r.Context(), viewerID(r))
	if err != nil {
		s.fail(w, r, "list stories", err)
		return
	}
	out := make([]storyView, 0, len(stories))
	for _, st := range stories {
		out = append(out, storyView{Story: st, ContentHTML: render.Markdown(st.Content)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request, u *db.User) {
	var req struct {
		Content  string `json:"content"`
		MediaURL string `json:"media_url"`
		Suburb   string `json:"suburb"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.Content) > maxContentLength {
		writeError(w, http.StatusBadRequest, "story too long")
		return
	}
	suburb := str(&req.Suburb)
	if suburb == "" {
		suburb = u.HomeSuburb
	}
	st, err := db.CreateStory(r.Context(), u.ID, req.Content, str(&req.MediaURL), suburb)
	if err != nil {
		s.fail(w, r, "create story", err)
		return
	}
	writeJSON(w, http.StatusCreated, storyView{Story: st, ContentHTML: render.Markdown(st.Content)})
}

func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := db.DeleteStory(r.Context(), id, u.ID, u.IsAdmin()); err != nil {
		s.fail(w, r, "delete story", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleViewStory(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := db.MarkStoryViewed(r.Context(), id, u.ID); err != nil {
		s.fail(w, r, "view story", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
