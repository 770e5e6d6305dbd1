package rolectx

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// ensureUser inserts a users row for id unless one exists, since roles,
// memberships and invitations reference users(id).
func ensureUser(t *testing.T, st *store.Store, id string) {
	t.Helper()
	if _, err := st.GetUser(id); err == store.ErrNotFound {
		require.NoError(t, st.CreateUser(&types.User{ID: id, Email: id + "@example.com"}))
	}
}

func mustCreateRole(t *testing.T, st *store.Store, userID, groupID string) *types.Role {
	t.Helper()
	ensureUser(t, st, userID)
	role := &types.Role{ID: uuid.NewString(), UserID: userID, GroupID: groupID, Name: "Analyst"}
	require.NoError(t, st.CreateRole(role))
	return role
}

func TestResolveOwnRole(t *testing.T) {
	st := newTestStore(t)
	res := New(st)
	role := mustCreateRole(t, st, "u1", "")

	rc, err := res.Resolve("u1", role.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", rc.UserID)
	assert.Equal(t, role.ID, rc.RoleID)
	assert.Equal(t, role.Name, rc.Role.Name)
}

func TestResolveUnknownRole(t *testing.T) {
	st := newTestStore(t)
	res := New(st)

	_, err := res.Resolve("u1", "does-not-exist")
	require.Error(t, err)
	appErr, ok := err.(*apperr.Error)
	require.True(t, ok)
	assert.Equal(t, apperr.KindRoleNotFound, appErr.Kind)
}

func TestResolveForbiddenForOtherUsersRole(t *testing.T) {
	st := newTestStore(t)
	res := New(st)
	role := mustCreateRole(t, st, "owner", "")

	_, err := res.Resolve("intruder", role.ID)
	require.Error(t, err)
	appErr, ok := err.(*apperr.Error)
	require.True(t, ok)
	assert.Equal(t, apperr.KindRoleForbidden, appErr.Kind)
}

func TestResolveGroupMemberCanUseGroupRole(t *testing.T) {
	st := newTestStore(t)
	res := New(st)

	group := &types.Group{ID: uuid.NewString(), Name: "Acme"}
	invitation := &types.Invitation{ID: uuid.NewString(), Code: "abc123", Role: types.MembershipMember}
	ensureUser(t, st, "owner")
	ensureUser(t, st, "member")
	require.NoError(t, st.CreateGroupWithOwner(group, "owner", invitation))

	accepted, _, err := st.AcceptInvitation("abc123", "member")
	require.NoError(t, err)
	require.True(t, accepted)

	role := mustCreateRole(t, st, "owner", group.ID)

	rc, err := res.Resolve("member", role.ID)
	require.NoError(t, err)
	assert.Equal(t, group.ID, rc.GroupID)
}

func TestResolveNonMemberForbiddenForGroupRole(t *testing.T) {
	st := newTestStore(t)
	res := New(st)

	group := &types.Group{ID: uuid.NewString(), Name: "Acme"}
	invitation := &types.Invitation{ID: uuid.NewString(), Code: "xyz789", Role: types.MembershipMember}
	ensureUser(t, st, "owner")
	require.NoError(t, st.CreateGroupWithOwner(group, "owner", invitation))

	role := mustCreateRole(t, st, "owner", group.ID)

	_, err := res.Resolve("stranger", role.ID)
	require.Error(t, err)
	appErr, ok := err.(*apperr.Error)
	require.True(t, ok)
	assert.Equal(t, apperr.KindRoleForbidden, appErr.Kind)
}

func TestSwitchRoleAndActiveRole(t *testing.T) {
	st := newTestStore(t)
	res := New(st)
	role := mustCreateRole(t, st, "u1", "")

	active, err := res.ActiveRole("u1")
	require.NoError(t, err)
	assert.Equal(t, "", active)

	require.NoError(t, res.SwitchRole("u1", role.ID))

	active, err = res.ActiveRole("u1")
	require.NoError(t, err)
	assert.Equal(t, role.ID, active)
}

func TestMiddlewareInjectsRoleContext(t *testing.T) {
	st := newTestStore(t)
	res := New(st)
	role := mustCreateRole(t, st, "u1", "")

	var gotRC *RoleContext
	handler := Middleware(res, func(r *http.Request) string { return "u1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRC, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRoleID, role.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.NotNil(t, gotRC)
	assert.Equal(t, role.ID, gotRC.RoleID)
}

func TestMiddlewareWithoutHeaderLeavesContextEmpty(t *testing.T) {
	st := newTestStore(t)
	res := New(st)

	var found bool
	handler := Middleware(res, func(r *http.Request) string { return "u1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, found)
}
