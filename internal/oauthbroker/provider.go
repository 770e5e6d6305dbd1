// Package oauthbroker implements C3: per-provider authorization-code
// exchange, per-(provider,user,accountEmail) token storage, and
// refresh-on-expiry.
package oauthbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Identity is the subset of a provider's identity endpoint response the
// broker needs to key a token.
type Identity struct {
	Email string
}

// Provider implements the OAuth flow for one third-party service.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Identity(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// genericProvider implements Provider against a standard oauth2.Config plus
// a JSON identity endpoint, covering the common "exchange code, hit a
// userinfo URL" shape most providers use.
type genericProvider struct {
	config      oauth2.Config
	identityURL string
	parse       func([]byte) (*Identity, error)
}

// Config declares the endpoints and credentials for one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	IdentityURL  string
	Scopes       []string
}

func newGenericProvider(cfg Config, parse func([]byte) (*Identity, error)) *genericProvider {
	return &genericProvider{
		config: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURL),
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		identityURL: cfg.IdentityURL,
		parse:       parse,
	}
}

func (p *genericProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *genericProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

func (p *genericProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

func (p *genericProvider) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	if p.identityURL == "" {
		return nil, errors.New("oauthbroker: identity url not configured")
	}
	client := p.config.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.identityURL, nil)
	if err != nil {
		return nil, fmt.Errorf("oauthbroker: build identity request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauthbroker: identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("oauthbroker: identity request failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return p.parse(data)
}

// NewGoogleProvider builds a Provider wired to Google's endpoints.
func NewGoogleProvider(cfg Config) Provider {
	cfg.AuthURL = "https://accounts.google.com/o/oauth2/v2/auth"
	cfg.TokenURL = "https://oauth2.googleapis.com/token"
	cfg.IdentityURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	return newGenericProvider(cfg, parseGoogleIdentity)
}

// NewGitHubProvider builds a Provider wired to GitHub's endpoints.
func NewGitHubProvider(cfg Config) Provider {
	cfg.AuthURL = "https://github.com/login/oauth/authorize"
	cfg.TokenURL = "https://github.com/login/oauth/access_token"
	cfg.IdentityURL = "https://api.github.com/user"
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"user:email"}
	}
	return newGenericProvider(cfg, parseGitHubIdentity)
}

// NewSlackProvider builds a Provider wired to Slack's endpoints.
func NewSlackProvider(cfg Config) Provider {
	cfg.AuthURL = "https://slack.com/oauth/v2/authorize"
	cfg.TokenURL = "https://slack.com/api/oauth.v2.access"
	cfg.IdentityURL = "https://slack.com/api/openid.connect.userInfo"
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email"}
	}
	return newGenericProvider(cfg, parseSlackIdentity)
}

// NewNotionProvider builds a Provider wired to Notion's endpoints.
func NewNotionProvider(cfg Config) Provider {
	cfg.AuthURL = "https://api.notion.com/v1/oauth/authorize"
	cfg.TokenURL = "https://api.notion.com/v1/oauth/token"
	cfg.IdentityURL = "https://api.notion.com/v1/users/me"
	return newGenericProvider(cfg, parseNotionIdentity)
}

func parseGoogleIdentity(data []byte) (*Identity, error) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &Identity{Email: payload.Email}, nil
}

func parseGitHubIdentity(data []byte) (*Identity, error) {
	var payload struct {
		Email string `json:"email"`
		Login string `json:"login"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	email := payload.Email
	if email == "" {
		email = payload.Login + "@users.noreply.github.com"
	}
	return &Identity{Email: email}, nil
}

func parseSlackIdentity(data []byte) (*Identity, error) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &Identity{Email: payload.Email}, nil
}

func parseNotionIdentity(data []byte) (*Identity, error) {
	var payload struct {
		Person struct {
			Email string `json:"email"`
		} `json:"person"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &Identity{Email: payload.Person.Email}, nil
}
