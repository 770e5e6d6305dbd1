// Package identity implements user onboarding and session management:
// checkEmail, login, the two signup flows, and invitation acceptance.
package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
)

// CookieName is the HTTP-only session cookie set on login.
const CookieName = "hearth_session"

// Service implements C2 against a Store.
type Service struct {
	store         *store.Store
	sessionTTL    time.Duration
	invitationTTL time.Duration
	secureCookies bool
}

// New constructs the identity service. sessionTTL comes from config's
// SessionTTLDays; the invitation lifetime is fixed at 7 days.
func New(st *store.Store, sessionTTL time.Duration, secureCookies bool) *Service {
	return &Service{store: st, sessionTTL: sessionTTL, invitationTTL: 7 * 24 * time.Hour, secureCookies: secureCookies}
}

// CheckEmail reports whether a user with the given email already exists.
func (s *Service) CheckEmail(email string) (bool, error) {
	_, err := s.store.GetUserByEmail(normalizeEmail(email))
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Login looks up the user by email and issues a new session. Returns
// auth_required if no such user exists — the client is expected to have
// called checkEmail first, but login never trusts that on its own.
func (s *Service) Login(email string) (*types.User, *types.Session, error) {
	user, err := s.store.GetUserByEmail(normalizeEmail(email))
	if err == store.ErrNotFound {
		return nil, nil, apperr.AuthRequired("no account with that email")
	}
	if err != nil {
		return nil, nil, err
	}

	sess := &types.Session{ID: uuid.NewString(), UserID: user.ID}
	if err := s.store.CreateSession(sess, s.sessionTTL); err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// SignupIndividual creates a new individual-account user and logs them in.
func (s *Service) SignupIndividual(email, name string) (*types.User, *types.Session, error) {
	email = normalizeEmail(email)
	if _, err := s.store.GetUserByEmail(email); err == nil {
		return nil, nil, apperr.Validation("an account with that email already exists")
	} else if err != store.ErrNotFound {
		return nil, nil, err
	}

	user := &types.User{ID: uuid.NewString(), Email: email, Name: name, AccountType: types.AccountIndividual}
	if err := s.store.CreateUser(user); err != nil {
		return nil, nil, err
	}

	sess := &types.Session{ID: uuid.NewString(), UserID: user.ID}
	if err := s.store.CreateSession(sess, s.sessionTTL); err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// SignupGroup creates a user, a group, an owner membership, and a single
// open invitation in one logical unit, then logs the new owner in.
func (s *Service) SignupGroup(email, name, groupName, groupURL string) (*types.User, *types.Group, *types.Invitation, *types.Session, error) {
	email = normalizeEmail(email)
	if _, err := s.store.GetUserByEmail(email); err == nil {
		return nil, nil, nil, nil, apperr.Validation("an account with that email already exists")
	} else if err != store.ErrNotFound {
		return nil, nil, nil, nil, err
	}

	user := &types.User{ID: uuid.NewString(), Email: email, Name: name, AccountType: types.AccountGroup}
	if err := s.store.CreateUser(user); err != nil {
		return nil, nil, nil, nil, err
	}

	group := &types.Group{ID: uuid.NewString(), Name: groupName, URL: groupURL}
	expires := time.Now().UTC().Add(s.invitationTTL)
	invitation := &types.Invitation{
		ID:        uuid.NewString(),
		Code:      store.NewInvitationCode(),
		Role:      types.MembershipOwner,
		ExpiresAt: &expires,
	}
	if err := s.store.CreateGroupWithOwner(group, user.ID, invitation); err != nil {
		return nil, nil, nil, nil, err
	}

	sess := &types.Session{ID: uuid.NewString(), UserID: user.ID}
	if err := s.store.CreateSession(sess, s.sessionTTL); err != nil {
		return nil, nil, nil, nil, err
	}
	return user, group, invitation, sess, nil
}

// AcceptInvitation accepts a group invitation for an existing, logged-in
// user, promoting their accountType to group. Returns apperr.Validation if
// the code is unknown, already used, or expired.
func (s *Service) AcceptInvitation(code, userID string) (groupID string, err error) {
	invitation, err := s.store.GetInvitationByCode(code)
	if err == store.ErrNotFound {
		return "", apperr.Validation("invitation code not found")
	}
	if err != nil {
		return "", err
	}
	if !invitation.Usable(time.Now().UTC()) {
		return "", apperr.Validation("invitation is expired or already used")
	}

	accepted, gid, err := s.store.AcceptInvitation(code, userID)
	if err != nil {
		return "", err
	}
	if !accepted {
		return "", apperr.Validation("invitation is expired or already used")
	}

	if err := s.store.SetUserAccountType(userID, types.AccountGroup); err != nil {
		return "", err
	}
	return gid, nil
}

// Authenticate resolves the session cookie from r into (user, session),
// returning apperr.AuthRequired when absent or expired.
func (s *Service) Authenticate(r *http.Request) (*types.User, *types.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil, apperr.AuthRequired("no session cookie")
	}

	sess, err := s.store.GetSession(cookie.Value)
	if err == store.ErrNotFound {
		return nil, nil, apperr.AuthRequired("session expired or unknown")
	}
	if err != nil {
		return nil, nil, err
	}

	user, err := s.store.GetUser(sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, sess, nil
}

// Logout deletes the session row; ClearCookie clears it client-side.
func (s *Service) Logout(sessionID string) error {
	return s.store.DeleteSession(sessionID)
}

// SetCookie builds the Set-Cookie header value for a freshly issued session.
func (s *Service) SetCookie(w http.ResponseWriter, sess *types.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie immediately (logout).
func (s *Service) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// UpdateProfile updates discordUserId/locale/timezone for the current user.
func (s *Service) UpdateProfile(userID, discordUserID, locale, timezone string) (*types.User, error) {
	if err := s.store.UpdateUserProfile(userID, discordUserID, locale, timezone); err != nil {
		return nil, err
	}
	return s.store.GetUser(userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
