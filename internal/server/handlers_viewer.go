package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pellucid/hearth/internal/apperr"
)

type viewerDownloadRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
}

func (s *Server) handleViewerDownload(w http.ResponseWriter, r *http.Request) {
	var req viewerDownloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.URL == "" {
		writeErr(w, apperr.Validation("url is required"))
		return
	}
	userID := userIDFromContext(r.Context())
	f, err := s.viewer.Download(r.Context(), userID, req.URL, req.Filename, req.MimeType)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleViewerServe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := s.viewer.Open(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if f.MimeType != "" {
		w.Header().Set("Content-Type", f.MimeType)
	}
	http.ServeFile(w, r, f.AbsolutePath)
}
