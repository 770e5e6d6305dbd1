package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/pellucid/hearth/internal/rolectx"
)

// setupRoutes mounts every route named in spec.md §6, grouped the way the
// teacher groups its own route table: an unauthenticated group for
// auth/onboarding and /api/env, then an authenticated group carrying the
// role-context middleware for everything else.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		// Auth/onboarding — role header excluded (spec.md §6).
		r.Post("/auth/check-email", s.handleCheckEmail)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/signup/individual", s.handleSignupIndividual)
		r.Post("/auth/signup/group", s.handleSignupGroup)
		r.Post("/auth/signup", s.handleSignupIndividual)
		r.Post("/auth/logout", s.handleLogout)
		// Callback needs no session cookie: the CSRF state token already
		// carries the initiating userID (internal/oauthbroker.Broker.Start).
		r.Get("/auth/{provider}/callback", s.handleOAuthCallback)
		r.Get("/env", s.handleEnv)

		// Viewer file serving is same-origin and unauthenticated by id,
		// mirroring a plain static-file handler — the id itself is the
		// capability (spec.md §4.9: "previewUrl is the same-origin HTTP
		// path that serves the temp file").
		r.Get("/viewer/files/{id}", s.handleViewerServe)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(rolectx.Middleware(s.roles, userIDOf))

			r.Patch("/auth/me", s.handleUpdateMe)
			r.Get("/auth/{provider}/start", s.handleOAuthStart)
			r.Get("/auth/oauth/token/{provider}", s.handleOAuthToken)

			r.Get("/roles", s.handleListRoles)
			r.Post("/roles", s.handleCreateRole)
			r.Post("/roles/{id}/switch", s.handleSwitchRole)
			r.Get("/roles/{id}/memory-overview", s.handleMemoryOverview)
			r.Post("/roles/{id}/remove-memories", s.handleRemoveMemories)
			r.Post("/roles/{id}/edit-memories", s.handleEditMemories)
			r.Post("/roles/{id}/save-to-memory", s.handleSaveToMemory)

			r.Get("/messages", s.handleListMessages)
			r.Post("/messages", s.handleCreateMessage)
			r.Delete("/messages", s.handleClearMessages)
			r.Post("/messages/migrate", s.handleMigrateMessages)
			r.Get("/messages/search", s.handleSearchMessages)

			r.Post("/chat/stream", s.handleChatStream)

			r.Get("/mcp/servers", s.handleListMCPServers)
			r.Get("/mcp/available-servers", s.handleAvailableMCPServers)
			r.Post("/mcp/servers/add-predefined", s.handleAddPredefinedMCPServer)
			r.Patch("/mcp/servers/{id}", s.handleUpdateMCPServer)
			r.Delete("/mcp/servers/{id}", s.handleDeleteMCPServer)
			r.Get("/mcp/oauth/connections", s.handleOAuthConnections)

			r.Post("/viewer/download", s.handleViewerDownload)

			r.Get("/scheduled-jobs", s.handleListScheduledJobs)
			r.Delete("/scheduled-jobs/{id}", s.handleCancelScheduledJob)

			r.Get("/skills", s.handleListSkills)
			r.Get("/skills/{id}", s.handleGetSkill)
			r.Post("/skills/{id}/enable", s.handleSetSkillEnabled)
			r.Post("/skills/{id}/role-enable", s.handleSetRoleSkillEnabled)
		})
	})
}
