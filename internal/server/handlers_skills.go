package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pellucid/hearth/internal/apperr"
)

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	list, err := s.skills.List()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": list})
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sk, err := s.skills.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skill": sk})
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleSetSkillEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Enabled == nil {
		writeErr(w, apperr.Validation("enabled is required"))
		return
	}
	if err := s.skills.SetEnabled(id, *req.Enabled); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

type setRoleSkillEnabledRequest struct {
	RoleID  string `json:"roleId"`
	Enabled *bool  `json:"enabled"`
}

func (s *Server) handleSetRoleSkillEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setRoleSkillEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.RoleID == "" || req.Enabled == nil {
		writeErr(w, apperr.Validation("roleId and enabled are required"))
		return
	}
	userID := userIDFromContext(r.Context())
	if _, err := s.roles.Resolve(userID, req.RoleID); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.skills.SetRoleEnabled(req.RoleID, id, *req.Enabled); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}
