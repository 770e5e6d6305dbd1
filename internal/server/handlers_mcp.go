package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/mcpregistry"
)

func (s *Server) handleListMCPServers(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	servers, err := s.mcp.ListInstalled(userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (s *Server) handleAvailableMCPServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"servers": mcpregistry.ListAvailable()})
}

type addPredefinedMCPServerRequest struct {
	ServerID     string `json:"serverId"`
	AccountEmail string `json:"accountEmail"`
	APIKey       string `json:"apiKey"`
}

func (s *Server) handleAddPredefinedMCPServer(w http.ResponseWriter, r *http.Request) {
	var req addPredefinedMCPServerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.ServerID == "" {
		writeErr(w, apperr.Validation("serverId is required"))
		return
	}
	userID := userIDFromContext(r.Context())
	cfg, err := s.mcp.AddPredefined(userID, req.ServerID, req.AccountEmail, req.APIKey)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"server": cfg})
}

type updateMCPServerRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleUpdateMCPServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateMCPServerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Enabled == nil {
		writeErr(w, apperr.Validation("enabled is required"))
		return
	}
	cfg, err := s.mcp.SetEnabled(id, *req.Enabled)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"server": cfg})
}

func (s *Server) handleDeleteMCPServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.mcp.Remove(id); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleOAuthConnections(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	conns, err := s.oauth.ListConnections(userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}
