package oauthbroker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
)

// RefreshSkew is how far ahead of actual expiry a token is treated as
// expired, so a call doesn't race a token dying mid-flight.
const RefreshSkew = 5 * time.Minute

// pendingState carries the userID through the provider redirect, since the
// provider only ever hands the state value back on callback.
type pendingState struct {
	userID    string
	provider  string
	createdAt time.Time
}

// stateTTL bounds how long an issued state token is honored; a callback
// arriving later than this is treated as stale.
const stateTTL = 15 * time.Minute

// Broker implements C3 against a Store and a set of registered Providers.
type Broker struct {
	store     *store.Store
	providers map[string]Provider

	mu     sync.Mutex
	states map[string]pendingState
}

// New constructs a Broker with no providers registered; call Register for
// each one the deployment has credentials for.
func New(st *store.Store) *Broker {
	return &Broker{
		store:     st,
		providers: make(map[string]Provider),
		states:    make(map[string]pendingState),
	}
}

// Register wires a provider implementation under its name ("google",
// "github", "slack", "notion").
func (b *Broker) Register(name string, p Provider) {
	b.providers[name] = p
}

// Registered reports whether a provider has credentials configured.
func (b *Broker) Registered(name string) bool {
	_, ok := b.providers[name]
	return ok
}

// Start begins the flow for (provider, userID): mints a CSRF state token,
// remembers which user it belongs to, and returns the provider's
// authorization URL.
func (b *Broker) Start(provider, userID string) (string, error) {
	p, ok := b.providers[provider]
	if !ok {
		return "", apperr.Validation("unknown oauth provider: " + provider)
	}

	state, err := randomState()
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.gcStates()
	b.states[state] = pendingState{userID: userID, provider: provider, createdAt: time.Now().UTC()}
	b.mu.Unlock()

	return p.AuthCodeURL(state), nil
}

// Callback completes the flow: verifies state, exchanges code, resolves
// the account's email from the provider's identity endpoint, and upserts
// the token — deleting any stale empty-email row for the same
// (provider, userId) first.
func (b *Broker) Callback(ctx context.Context, provider, code, state string) (accountEmail string, err error) {
	b.mu.Lock()
	pending, ok := b.states[state]
	if ok {
		delete(b.states, state)
	}
	b.mu.Unlock()

	if !ok || pending.provider != provider {
		return "", apperr.Validation("oauth state mismatch or expired")
	}
	if time.Since(pending.createdAt) > stateTTL {
		return "", apperr.Validation("oauth state expired")
	}

	p, ok := b.providers[provider]
	if !ok {
		return "", apperr.Validation("unknown oauth provider: " + provider)
	}

	tok, err := p.Exchange(ctx, code)
	if err != nil {
		return "", apperr.ProviderError("oauth code exchange failed", err)
	}

	identity, err := p.Identity(ctx, tok)
	if err != nil {
		return "", apperr.ProviderError("oauth identity lookup failed", err)
	}

	stored := &types.OAuthToken{
		Provider:     provider,
		UserID:       pending.userID,
		AccountEmail: identity.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		stored.ExpiryDate = &tok.Expiry
	}
	if err := b.store.UpsertOAuthToken(stored); err != nil {
		return "", err
	}

	return identity.Email, nil
}

// GetToken returns a usable access token for (userID, provider,
// accountEmail), transparently refreshing it if it's within RefreshSkew of
// expiry. A failed refresh surfaces as oauth_required so the caller can
// prompt reconnection.
func (b *Broker) GetToken(ctx context.Context, userID, provider, accountEmail string) (*types.OAuthToken, error) {
	tok, err := b.store.GetOAuthToken(provider, userID, accountEmail)
	if err == store.ErrNotFound {
		return nil, apperr.OAuthRequired(provider, accountEmail)
	}
	if err != nil {
		return nil, err
	}

	if !tok.Expired(time.Now().UTC(), RefreshSkew) {
		return tok, nil
	}

	refreshed, err := b.refresh(ctx, tok)
	if err != nil {
		return nil, apperr.OAuthRequired(provider, accountEmail)
	}
	return refreshed, nil
}

func (b *Broker) refresh(ctx context.Context, tok *types.OAuthToken) (*types.OAuthToken, error) {
	if tok.RefreshToken == "" {
		return nil, apperr.OAuthRequired(tok.Provider, tok.AccountEmail)
	}
	p, ok := b.providers[tok.Provider]
	if !ok {
		return nil, apperr.Validation("unknown oauth provider: " + tok.Provider)
	}

	newTok, err := p.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		return nil, apperr.ProviderError("oauth refresh failed", err)
	}

	tok.AccessToken = newTok.AccessToken
	if newTok.RefreshToken != "" {
		tok.RefreshToken = newTok.RefreshToken
	}
	if !newTok.Expiry.IsZero() {
		tok.ExpiryDate = &newTok.Expiry
	}
	if err := b.store.UpsertOAuthToken(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// ConnectedAccount is one entry in a listConnections response.
type ConnectedAccount struct {
	AccountEmail string `json:"accountEmail"`
}

// ListConnections returns the user's connected accounts grouped by provider.
func (b *Broker) ListConnections(userID string) (map[string][]ConnectedAccount, error) {
	raw, err := b.store.ListOAuthConnections(userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]ConnectedAccount, len(raw))
	for provider, emails := range raw {
		accounts := make([]ConnectedAccount, 0, len(emails))
		for _, email := range emails {
			accounts = append(accounts, ConnectedAccount{AccountEmail: email})
		}
		out[provider] = accounts
	}
	return out, nil
}

// Disconnect revokes a single connected account.
func (b *Broker) Disconnect(userID, provider, accountEmail string) error {
	return b.store.RevokeOAuthToken(provider, userID, accountEmail)
}

// gcStates drops expired pending states. Called under b.mu.
func (b *Broker) gcStates() {
	now := time.Now().UTC()
	for k, v := range b.states {
		if now.Sub(v.createdAt) > stateTTL {
			delete(b.states, k)
		}
	}
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
