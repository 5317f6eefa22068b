package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// maxDeleteIDs bounds one bulk delete request.
const maxDeleteIDs = 500

// DeleteRequest is the body of a bulk message delete.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// DeleteResponse reports how many ids a bulk delete accepted.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// BookmarkRequest toggles one bookmark.
type BookmarkRequest struct {
	MessageID string `json:"message_id"`
	On        bool   `json:"on"`
}

// BookmarksResponse lists the bookmarked message ids.
type BookmarksResponse struct {
	Bookmarks map[string]bool `json:"bookmarks"`
}

// CreateConversationRequest starts a conversation.
type CreateConversationRequest struct {
	Title          string `json:"title"`
	Model          string `json:"model,omitempty"`
	InitialMessage string `json:"initial_message,omitempty"`
}

// RenameRequest changes a conversation title.
type RenameRequest struct {
	Title string `json:"title"`
}

// PatchRequest rewrites the content of a stored message. Omitted fields are
// left untouched.
type PatchRequest struct {
	Parts       []thread.ContentPart `json:"parts,omitempty"`
	Annotations []thread.Annotation  `json:"annotations,omitempty"`
	Attachments []thread.Attachment  `json:"attachments,omitempty"`
}

func (s *Server) userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	return s.config.UserID
}

func queryInt(r *http.Request, key string) (int64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer")
		return
	}
	page, err := s.backend.ListConversations(r.Context(), r.URL.Query().Get("cursor"), int(limit))
	if err != nil {
		tuilog.Log.Error("Server.handleListConversations: list failed", "error", err)
		writeError(w, http.StatusBadRequest, "list_failed", err.Error())
		return
	}
	if page.Conversations == nil {
		page.Conversations = []thread.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	before, ok := queryInt(r, "before")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_error", "before must be a non-negative integer")
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer")
		return
	}

	page, err := s.backend.FetchPage(r.Context(), thread.PageRequest{
		ConversationID: chi.URLParam(r, "conversationID"),
		Cursor:         before,
		PageSize:       int(limit),
	})
	if err != nil {
		tuilog.Log.Error("Server.handleGetMessages: fetch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "fetch_failed", "Failed to load messages")
		return
	}
	if page.Messages == nil {
		page.Messages = []thread.Message{}
	}
	pageMessagesServed.Observe(float64(len(page.Messages)))
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body")
		return
	}
	c, err := s.backend.CreateConversation(r.Context(), strings.TrimSpace(req.Title), req.Model, req.InitialMessage)
	if err != nil {
		tuilog.Log.Error("Server.handleCreateConversation: create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "Failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "title is required")
		return
	}

	convID := chi.URLParam(r, "conversationID")
	err := s.backend.RenameConversation(r.Context(), convID, title)
	switch {
	case errors.Is(err, thread.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Conversation not found")
	case err != nil:
		tuilog.Log.Error("Server.handleRenameConversation: rename failed", "conversation", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "rename_failed", "Failed to rename conversation")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var m thread.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body")
		return
	}
	switch m.Role {
	case thread.RoleUser, thread.RoleAssistant:
	default:
		writeError(w, http.StatusBadRequest, "validation_error", "role must be user or assistant")
		return
	}

	convID := chi.URLParam(r, "conversationID")
	saved, err := s.backend.AppendMessage(r.Context(), convID, m)
	switch {
	case errors.Is(err, thread.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Conversation not found")
	case err != nil:
		tuilog.Log.Error("Server.handleAppendMessage: append failed", "conversation", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "append_failed", "Failed to store message")
	default:
		writeJSON(w, http.StatusCreated, saved)
	}
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req PatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body")
		return
	}

	convID, msgID := chi.URLParam(r, "conversationID"), chi.URLParam(r, "messageID")
	saved, err := s.backend.UpdateMessage(r.Context(), convID, msgID, thread.Patch{
		Parts:       req.Parts,
		Annotations: req.Annotations,
		Attachments: req.Attachments,
	})
	switch {
	case errors.Is(err, thread.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Message not found")
	case err != nil:
		tuilog.Log.Error("Server.handleUpdateMessage: update failed", "message", msgID, "error", err)
		writeError(w, http.StatusInternalServerError, "update_failed", "Failed to update message")
	default:
		writeJSON(w, http.StatusOK, saved)
	}
}

func (s *Server) handleDeleteMessages(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "ids is required")
		return
	}
	if len(req.IDs) > maxDeleteIDs {
		writeError(w, http.StatusBadRequest, "validation_error", "too many ids")
		return
	}

	convID := chi.URLParam(r, "conversationID")
	if err := s.backend.DeleteMessages(r.Context(), convID, req.IDs); err != nil {
		tuilog.Log.Error("Server.handleDeleteMessages: delete failed", "conversation", convID, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "Failed to delete messages")
		return
	}
	messagesDeletedTotal.Add(float64(len(req.IDs)))
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: len(req.IDs)})
}

func (s *Server) handleGetBookmarks(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	marks, err := s.backend.Bookmarks(r.Context(), s.userID(r), chi.URLParam(r, "conversationID"), ids)
	if err != nil {
		tuilog.Log.Error("Server.handleGetBookmarks: lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "bookmarks_failed", "Failed to load bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, BookmarksResponse{Bookmarks: marks})
}

func (s *Server) handleSetBookmark(w http.ResponseWriter, r *http.Request) {
	var req BookmarkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body")
		return
	}
	if req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "message_id is required")
		return
	}

	err := s.backend.SetBookmark(r.Context(), s.userID(r), chi.URLParam(r, "conversationID"), req.MessageID, req.On)
	switch {
	case errors.Is(err, thread.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Message not found")
	case err != nil:
		tuilog.Log.Error("Server.handleSetBookmark: update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "bookmark_failed", "Failed to update bookmark")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
