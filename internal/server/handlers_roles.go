package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/rolectx"
	"github.com/pellucid/hearth/pkg/types"
)

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	roles, err := s.store.ListRoles(userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	currentRoleID, err := s.roles.ActiveRole(userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles, "currentRoleId": currentRoleID})
}

type createRoleRequest struct {
	Name    string `json:"name"`
	GroupID string `json:"groupId"`
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Name == "" {
		writeErr(w, apperr.Validation("name is required"))
		return
	}
	userID := userIDFromContext(r.Context())
	now := time.Now().UTC()
	role := &types.Role{
		ID:        uuid.NewString(),
		UserID:    userID,
		GroupID:   req.GroupID,
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRole(role); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": role})
}

func (s *Server) handleSwitchRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	userID := userIDFromContext(r.Context())
	if _, err := s.roles.Resolve(userID, roleID); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.roles.SwitchRole(userID, roleID); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleMemoryOverview(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	if err := s.checkRoleOwnership(r, roleID); err != nil {
		writeErr(w, err)
		return
	}
	overview, err := s.memory.Overview(r.Context(), roleID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type selectionRequest struct {
	Selection string `json:"selection"`
}

func (s *Server) handleRemoveMemories(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	if err := s.checkRoleOwnership(r, roleID); err != nil {
		writeErr(w, err)
		return
	}
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	result, err := s.memory.Remove(r.Context(), roleID, req.Selection)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type editMemoriesRequest struct {
	Selection   string `json:"selection"`
	Instruction string `json:"instruction"`
}

func (s *Server) handleEditMemories(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	if err := s.checkRoleOwnership(r, roleID); err != nil {
		writeErr(w, err)
		return
	}
	var req editMemoriesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	result, err := s.memory.Edit(r.Context(), roleID, req.Selection, req.Instruction)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type saveToMemoryRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSaveToMemory(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	if err := s.checkRoleOwnership(r, roleID); err != nil {
		writeErr(w, err)
		return
	}
	var req saveToMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.memory.SaveToMemory(roleID, req.Text); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

// checkRoleOwnership resolves roleID against the path (rather than
// X-Role-ID) for the per-role memory endpoints, which name the role in
// the URL instead of the header.
func (s *Server) checkRoleOwnership(r *http.Request, roleID string) error {
	if rc, ok := rolectx.FromContext(r.Context()); ok && rc.RoleID == roleID {
		return nil
	}
	userID := userIDFromContext(r.Context())
	_, err := s.roles.Resolve(userID, roleID)
	return err
}
