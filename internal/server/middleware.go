package server

import (
	"context"
	"net/http"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/rolectx"
	"github.com/pellucid/hearth/pkg/types"
)

type userIDKey struct{}

// withUserID attaches the authenticated user's id to the request context.
func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// userIDFromContext reads back the id withUserID attached.
func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// requireAuth resolves the session cookie via identity.Service before
// calling next; everything under it can assume userIDFromContext is
// populated. Auth/onboarding and /api/env bypass it (spec.md §6: "Auth/
// onboarding (role header excluded)").
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, err := s.identity.Authenticate(r)
		if err != nil {
			writeErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), user.ID)))
	})
}

// userIDOf adapts userIDFromContext to rolectx.Middleware's signature.
func userIDOf(r *http.Request) string {
	return userIDFromContext(r.Context())
}

// currentUser re-authenticates to load the full User row for a handler
// that needs more than the id.
func (s *Server) currentUser(r *http.Request) (*types.User, error) {
	user, _, err := s.identity.Authenticate(r)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// requireRoleContext fails the request up front when no X-Role-ID resolved —
// used by the message-history endpoints, and by chat when its body carries
// no roleId.
func requireRoleContext(r *http.Request) (string, string, string, error) {
	rc, ok := rolectx.FromContext(r.Context())
	if !ok {
		return "", "", "", apperr.Validation("X-Role-ID header is required")
	}
	return rc.UserID, rc.RoleID, rc.GroupID, nil
}
