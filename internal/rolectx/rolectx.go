// Package rolectx resolves the X-Role-ID header into an immutable
// RoleContext, checked against the authenticated user's ownership or group
// membership, for every handler that needs role-scoped history or memory.
package rolectx

import (
	"context"
	"net/http"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
)

// HeaderRoleID is the request header carrying the active role selection.
const HeaderRoleID = "X-Role-ID"

// RoleContext is the immutable, per-request role scope produced by
// Resolve and threaded through the turn orchestrator, memory, and message
// history operations.
type RoleContext struct {
	UserID  string
	RoleID  string
	GroupID string
	Role    *types.Role
}

type contextKey struct{}

var ctxKey = contextKey{}

// WithContext attaches rc to ctx.
func WithContext(ctx context.Context, rc *RoleContext) context.Context {
	return context.WithValue(ctx, ctxKey, rc)
}

// FromContext retrieves the RoleContext injected by Middleware, if any.
func FromContext(ctx context.Context) (*RoleContext, bool) {
	rc, ok := ctx.Value(ctxKey).(*RoleContext)
	return rc, ok
}

// Resolver resolves and validates a role selection for a user.
type Resolver struct {
	store *store.Store
}

// New constructs a Resolver.
func New(st *store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve reads roleID, checks that it belongs to userID (directly, or
// via a group the user is a member of), and returns the RoleContext. A
// role nobody owns and no group makes visible returns role_forbidden; an
// unknown role returns role_not_found.
func (res *Resolver) Resolve(userID, roleID string) (*RoleContext, error) {
	role, err := res.store.GetRole(roleID)
	if err == store.ErrNotFound {
		return nil, apperr.RoleNotFound(roleID)
	}
	if err != nil {
		return nil, err
	}

	if role.UserID == userID {
		return &RoleContext{UserID: userID, RoleID: roleID, GroupID: role.GroupID, Role: role}, nil
	}

	if role.GroupID != "" {
		member, err := res.store.IsGroupMember(userID, role.GroupID)
		if err != nil {
			return nil, err
		}
		if member {
			return &RoleContext{UserID: userID, RoleID: roleID, GroupID: role.GroupID, Role: role}, nil
		}
	}

	return nil, apperr.RoleForbidden(roleID)
}

// SwitchRole persists roleID as the user's active selection — the
// server-side source of truth the client's bootstrap reads back.
func (res *Resolver) SwitchRole(userID, roleID string) error {
	return res.store.SetSetting(userID, "activeRoleId", roleID)
}

// ActiveRole returns the user's last-selected role id, or "" if none was
// ever set.
func (res *Resolver) ActiveRole(userID string) (string, error) {
	return res.store.GetSetting(userID, "activeRoleId")
}

// Middleware reads X-Role-ID, resolves it, and injects the RoleContext.
// Only the header is read; endpoints that carry a roleId in the JSON body
// resolve it themselves. With no header, or when resolution fails, the
// request passes through without a RoleContext and the resolution error is
// dropped; a handler that needs a RoleContext reports it as missing — chi
// middleware in this codebase doesn't short-circuit on domain errors, only
// on transport-level ones.
func Middleware(res *Resolver, userIDOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roleID := r.Header.Get(HeaderRoleID)
			if roleID == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID := userIDOf(r)
			rc, err := res.Resolve(userID, roleID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), rc)))
		})
	}
}
