package identity

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, 30*24*time.Hour, false)
}

func TestCheckEmail(t *testing.T) {
	svc := newTestService(t)
	exists, err := svc.CheckEmail("nobody@x.com")
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = svc.SignupIndividual("Person@X.com", "Person")
	require.NoError(t, err)

	exists, err = svc.CheckEmail("person@x.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSignupIndividualThenLogin(t *testing.T) {
	svc := newTestService(t)
	user, sess, err := svc.SignupIndividual("a@x.com", "A")
	require.NoError(t, err)
	assert.Equal(t, types.AccountIndividual, user.AccountType)
	assert.NotEmpty(t, sess.ID)

	_, sess2, err := svc.Login("a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, sess2.ID)
}

func TestSignupIndividualDuplicateEmailFails(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.SignupIndividual("dup@x.com", "Dup")
	require.NoError(t, err)

	_, _, err = svc.SignupIndividual("dup@x.com", "Dup")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLoginUnknownEmailIsAuthRequired(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.Login("nobody@x.com")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthRequired, apperr.KindOf(err))
}

func TestSignupGroupCreatesOwnerAndInvitation(t *testing.T) {
	svc := newTestService(t)
	user, group, invitation, sess, err := svc.SignupGroup("owner@x.com", "Owner", "Acme", "")
	require.NoError(t, err)
	assert.Equal(t, types.AccountGroup, user.AccountType)
	assert.NotEmpty(t, group.ID)
	assert.NotEmpty(t, invitation.Code)
	assert.NotEmpty(t, sess.ID)

	member, err := svc.store.IsGroupMember(user.ID, group.ID)
	require.NoError(t, err)
	assert.True(t, member)
}

func TestAcceptInvitationPromotesToGroup(t *testing.T) {
	svc := newTestService(t)
	_, group, invitation, _, err := svc.SignupGroup("owner@x.com", "Owner", "Acme", "")
	require.NoError(t, err)

	invitee, _, err := svc.SignupIndividual("invitee@x.com", "Invitee")
	require.NoError(t, err)
	assert.Equal(t, types.AccountIndividual, invitee.AccountType)

	gotGroupID, err := svc.AcceptInvitation(invitation.Code, invitee.ID)
	require.NoError(t, err)
	assert.Equal(t, group.ID, gotGroupID)

	updated, err := svc.store.GetUser(invitee.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AccountGroup, updated.AccountType)

	_, err = svc.AcceptInvitation(invitation.Code, invitee.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAuthenticateRoundTrip(t *testing.T) {
	svc := newTestService(t)
	_, sess, err := svc.SignupIndividual("auth@x.com", "Auth")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: sess.ID})

	user, gotSess, err := svc.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, gotSess.ID)
	assert.Equal(t, "auth@x.com", user.Email)
}

func TestAuthenticateMissingCookie(t *testing.T) {
	svc := newTestService(t)
	req := httptest.NewRequest("GET", "/", nil)
	_, _, err := svc.Authenticate(req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthRequired, apperr.KindOf(err))
}
