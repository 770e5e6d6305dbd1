package oauthbroker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider is a deterministic stand-in for a real OAuth endpoint,
// grounded on the teacher pack's OAuthProvider interface shape.
type fakeProvider struct {
	exchangeCount int
	refreshCount  int
	email         string
	failRefresh   bool
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.exchangeCount++
	return &oauth2.Token{AccessToken: "at-" + code, RefreshToken: "rt-" + code, Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.refreshCount++
	if f.failRefresh {
		return nil, assertErr
	}
	return &oauth2.Token{AccessToken: "refreshed-at", RefreshToken: refreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeProvider) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	return &Identity{Email: f.email}, nil
}

var assertErr = &fakeErr{"refresh failed"}

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }

func newTestBroker(t *testing.T) (*Broker, *fakeProvider) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	b := New(st)
	p := &fakeProvider{email: "user@gmail.com"}
	b.Register("google", p)
	return b, p
}

func TestStartCallbackRoundTrip(t *testing.T) {
	b, _ := newTestBroker(t)

	url, err := b.Start("google", "u1")
	require.NoError(t, err)
	assert.Contains(t, url, "state=")

	state := url[len("https://provider.example/authorize?state="):]
	email, err := b.Callback(context.Background(), "google", "auth-code", state)
	require.NoError(t, err)
	assert.Equal(t, "user@gmail.com", email)

	tok, err := b.GetToken(context.Background(), "u1", "google", "user@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "at-auth-code", tok.AccessToken)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	b, _ := newTestBroker(t)
	_, err := b.Callback(context.Background(), "google", "code", "bogus-state")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGetTokenRefreshesNearExpiry(t *testing.T) {
	b, p := newTestBroker(t)

	url, err := b.Start("google", "u1")
	require.NoError(t, err)
	state := url[len("https://provider.example/authorize?state="):]
	_, err = b.Callback(context.Background(), "google", "code1", state)
	require.NoError(t, err)

	// Force the stored token into the refresh-skew window.
	soon := time.Now().UTC().Add(time.Minute)
	tok, err := b.store.GetOAuthToken("google", "u1", "user@gmail.com")
	require.NoError(t, err)
	tok.ExpiryDate = &soon
	require.NoError(t, b.store.UpsertOAuthToken(tok))

	got, err := b.GetToken(context.Background(), "u1", "google", "user@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-at", got.AccessToken)
	assert.Equal(t, 1, p.refreshCount)
}

func TestGetTokenMissingIsOAuthRequired(t *testing.T) {
	b, _ := newTestBroker(t)
	_, err := b.GetToken(context.Background(), "u1", "google", "nobody@gmail.com")
	require.Error(t, err)
	assert.Equal(t, apperr.KindOAuthRequired, apperr.KindOf(err))
}

func TestListConnections(t *testing.T) {
	b, _ := newTestBroker(t)
	url, err := b.Start("google", "u1")
	require.NoError(t, err)
	state := url[len("https://provider.example/authorize?state="):]
	_, err = b.Callback(context.Background(), "google", "code1", state)
	require.NoError(t, err)

	conns, err := b.ListConnections("u1")
	require.NoError(t, err)
	require.Contains(t, conns, "google")
	assert.Equal(t, "user@gmail.com", conns["google"][0].AccountEmail)
}
