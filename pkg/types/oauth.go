package types

import "time"

// OAuthToken is a single third-party account's credentials for a provider.
// Unique on (Provider, UserID, AccountEmail); AccountEmail may be empty
// until the first callback resolves an identity, and is replaced by a
// concrete address on refresh.
type OAuthToken struct {
	Provider     string     `json:"provider"`
	UserID       string     `json:"userId"`
	AccountEmail string     `json:"accountEmail"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Expired reports whether the token is inside the refresh skew window.
func (t *OAuthToken) Expired(now time.Time, skew time.Duration) bool {
	if t.ExpiryDate == nil {
		return false
	}
	return t.ExpiryDate.Add(-skew).Before(now)
}
