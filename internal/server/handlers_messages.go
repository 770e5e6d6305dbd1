package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
)

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, roleID, _, err := requireRoleContext(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	opts := store.ListMessagesOpts{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(w, apperr.Validation("limit must be an integer"))
			return
		}
		opts.Limit = &n
	}
	opts.Before = r.URL.Query().Get("before")

	msgs, hasMore, err := s.store.ListMessages(userID, roleID, opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "hasMore": hasMore})
}

type createMessageRequest struct {
	Role    types.MessageRole `json:"role"`
	Content string            `json:"content"`
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	userID, roleID, groupID, err := requireRoleContext(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req createMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Content == "" {
		writeErr(w, apperr.Validation("content is required"))
		return
	}

	msg := &types.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		RoleID:    roleID,
		GroupID:   groupID,
		Role:      req.Role,
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
	}
	if msg.Role == "" {
		msg.Role = types.RoleUser
	}
	if err := s.store.SaveMessage(msg); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	userID, roleID, _, err := requireRoleContext(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.ClearMessages(userID, roleID); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

type migrateMessagesRequest struct {
	Messages []types.Message `json:"messages"`
}

// handleMigrateMessages inserts a client-supplied batch (e.g. a local
// history dump from before the user had a server account); SaveMessage's
// idempotent-on-id insert makes a retried migrate request harmless.
func (s *Server) handleMigrateMessages(w http.ResponseWriter, r *http.Request) {
	userID, roleID, groupID, err := requireRoleContext(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req migrateMessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	for i := range req.Messages {
		m := &req.Messages[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.UserID = userID
		m.RoleID = roleID
		m.GroupID = groupID
		if err := s.store.SaveMessage(m); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeSuccess(w)
}

func (s *Server) handleSearchMessages(w http.ResponseWriter, r *http.Request) {
	userID, roleID, _, err := requireRoleContext(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		writeErr(w, apperr.Validation("keyword is required"))
		return
	}
	msgs, err := s.store.SearchMessages(userID, roleID, keyword)
	if err != nil {
		writeErr(w, err)
		return
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, parseErr := strconv.Atoi(limit); parseErr == nil && n > 0 && n < len(msgs) {
			msgs = msgs[:n]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
