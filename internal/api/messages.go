package api

import (
	"net/http"
	"strconv"

	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/live"
)

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, u *db.User) {
	convs, err := db.ListConversations(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, "list conversations", err)
		return
	}
	if convs == nil {
		convs = []db.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// handleStartConversation returns the existing conversation with the
// other user or creates it.
func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request, u *db.User) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	if _, err := db.GetUserByID(r.Context(), req.UserID); err != nil {
		s.fail(w, r, "get user", err)
		return
	}
	c, err := db.GetOrCreateConversation(r.Context(), u.ID, req.UserID)
	if err != nil {
		s.fail(w, r, "start conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleListMessages polls for messages newer than ?after=.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		var err error
		if after, err = strconv.ParseInt(v, 10, 64); err != nil || after < 0 {
			writeError(w, http.StatusBadRequest, "invalid after")
			return
		}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if _, err := db.GetConversationForUser(r.Context(), id, u.ID); err != nil {
		s.fail(w, r, "get conversation", err)
		return
	}
	msgs, err := db.MessagesAfter(r.Context(), id, after, limit)
	if err != nil {
		s.fail(w, r, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if !decode(w, r, &req) {
		return
	}
	conv, err := db.GetConversationForUser(r.Context(), id, u.ID)
	if err != nil {
		s.fail(w, r, "get conversation", err)
		return
	}
	msg, err := db.CreateMessage(r.Context(), id, u.ID, req.Content)
	if err != nil {
		s.fail(w, r, "send message", err)
		return
	}
	if s.hub != nil {
		s.hub.SendToUser(conv.Other(u.ID), live.Event{Type: live.EventMessage, Data: msg})
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, u *db.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := db.MarkConversationRead(r.Context(), id, u.ID)
	if err != nil {
		s.fail(w, r, "mark read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
