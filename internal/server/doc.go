// Package server provides the HTTP API for the multi-tenant conversational
// backend: auth and onboarding, roles and role memory, message history,
// the chat SSE stream, MCP server installation, viewer attachments,
// scheduled jobs, and the skill catalog.
//
// # Core components
//
//   - HTTP server: a chi router with RequestID/Logger/Recoverer/RealIP
//     middleware and permissive CORS, matching the teacher's stack.
//   - Auth: cookie-session issuance and validation via internal/identity.
//   - Role context: every authenticated route except auth/onboarding and
//     viewer file serving resolves X-Role-ID via internal/rolectx.
//   - Chat: POST /api/chat/stream hands a request to internal/turn and
//     streams its Event sequence as text/event-stream frames.
//   - MCP: internal/mcpregistry's predefined catalog and per-user
//     installed servers.
//   - Viewer: internal/viewer's download-to-temp-file and same-origin
//     serve-by-id flow.
//   - Jobs: internal/jobs' scheduler, listed and cancellable via HTTP.
//   - Skills: internal/skills' catalog, toggled globally or per role.
//
// # Response envelope
//
// Every response body is a pkg/types.Envelope. writeErr maps most domain
// apperr.Kinds to HTTP 200 with Success=false — a client reads the error
// field rather than branching on status — reserving non-200 statuses for
// auth failures, role contention, and internal errors.
package server
