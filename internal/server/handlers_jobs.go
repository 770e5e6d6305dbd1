package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListScheduledJobs(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	jobs, err := s.store.ListScheduledJobs(userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleCancelScheduledJob is DELETE /api/scheduled-jobs/:id — spec.md §8's
// "transitions pending or failed to cancelled; a job already in running
// finishes the current execution and sees cancelled only on the next
// tick's transition guard."
func (s *Server) handleCancelScheduledJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Cancel(id); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}
