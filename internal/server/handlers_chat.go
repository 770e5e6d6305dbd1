package server

import (
	"net/http"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/turn"
	"github.com/pellucid/hearth/pkg/types"
)

type chatStreamRequest struct {
	Messages   []types.Message `json:"messages"`
	RoleID     string          `json:"roleId"`
	GroupID    string          `json:"groupId"`
	Timezone   string          `json:"timezone"`
	Locale     string          `json:"locale"`
	ViewerFile *chatViewerFile `json:"viewerFile"`
}

type chatViewerFile struct {
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	AbsolutePath string `json:"absolutePath"`
}

// handleChatStream is POST /api/chat/stream — spec.md §4.7's invocation
// contract. It decodes the request body (roleId is taken from the body;
// when the body has none, the role rolectx.Middleware resolved from
// X-Role-ID is used), runs one turn, and relays the
// orchestrator's Event sequence as SSE frames terminated by [DONE].
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	userID := userIDFromContext(r.Context())
	roleID := req.RoleID
	if roleID == "" {
		if userID2, rid, _, err := requireRoleContext(r); err == nil {
			userID, roleID = userID2, rid
		}
	}
	if roleID == "" {
		writeErr(w, apperr.Validation("roleId is required"))
		return
	}
	if _, err := s.roles.Resolve(userID, roleID); err != nil {
		writeErr(w, err)
		return
	}

	turnReq := turn.Request{
		UserID:   userID,
		RoleID:   roleID,
		GroupID:  req.GroupID,
		Messages: req.Messages,
		Locale:   req.Locale,
		Timezone: req.Timezone,
	}
	if req.ViewerFile != nil {
		turnReq.ViewerFile = &turn.ViewerFile{
			Name:         req.ViewerFile.Name,
			MimeType:     req.ViewerFile.MimeType,
			AbsolutePath: req.ViewerFile.AbsolutePath,
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeErr(w, apperr.Internal(err))
		return
	}
	w.WriteHeader(http.StatusOK)

	emit := func(e turn.Event) error {
		return sse.writeEvent(e)
	}

	stopHeartbeat := make(chan struct{})
	go sse.startHeartbeat(stopHeartbeat)

	_, runErr := s.turn.Run(r.Context(), turnReq, emit)
	close(stopHeartbeat)
	if runErr != nil {
		// Run already emitted an error Event for the client; the stream
		// still terminates normally so the client's reader loop exits.
	}
	_ = sse.writeDone()
}
