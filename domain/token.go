package domain

import (
	"slices"
	"time"
)

const TokenTypeBearer = "Bearer"

var (
	DefaultAccessTTL  = 180 * time.Minute
	DefaultRefreshTTL = 10080 * time.Minute
)

// TTLConfig holds the lifetimes applied when a token pair is minted.
// A zero duration is honored as "already expired".
type TTLConfig struct {
	Access  time.Duration `mapstructure:"access_ttl"`
	Refresh time.Duration `mapstructure:"refresh_ttl"`
}

// DefaultTTL returns the stock 3h access / 7d refresh lifetimes.
func DefaultTTL() TTLConfig {
	return TTLConfig{Access: DefaultAccessTTL, Refresh: DefaultRefreshTTL}
}

// Token is the persisted token row. Only keyed hashes of the secrets are kept.
type Token struct {
	AccessHash       string    `bson:"_id"                json:"-"`
	RefreshHash      string    `bson:"refresh_hash"       json:"-"`
	VirtualID        string    `bson:"virtual_id"         json:"virtual_id"`
	Scopes           []string  `bson:"scopes"             json:"scopes"`
	AccessExpiresAt  time.Time `bson:"access_expires_at"  json:"access_expires_at"`
	RefreshExpiresAt time.Time `bson:"refresh_expires_at" json:"refresh_expires_at"`
	CreatedAt        time.Time `bson:"created_at"         json:"created_at"`
}

// AccessExpired reports whether the access secret is no longer usable at now.
func (t *Token) AccessExpired(now time.Time) bool {
	return !now.Before(t.AccessExpiresAt)
}

// RefreshExpired reports whether the refresh secret is no longer usable at now.
func (t *Token) RefreshExpired(now time.Time) bool {
	return !now.Before(t.RefreshExpiresAt)
}

// HasScopes reports whether the token grants every required scope, or holds
// exactly the supervisor scope.
func (t *Token) HasScopes(required []string, supervisor string) bool {
	return ScopesSatisfy(t.Scopes, required, supervisor)
}

// ScopesSatisfy implements the all-of authorization rule. An empty required
// set is always satisfied.
func ScopesSatisfy(granted, required []string, supervisor string) bool {
	if len(required) == 0 {
		return true
	}
	if supervisor != "" && len(granted) == 1 && granted[0] == supervisor {
		return true
	}
	for _, scope := range required {
		if !slices.Contains(granted, scope) {
			return false
		}
	}
	return true
}

// NormalizeScopes returns a sorted copy without duplicates or empty entries.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// TokenExpiry mirrors the nested expires_at object of the token response.
type TokenExpiry struct {
	AccessToken  time.Time `json:"access_token"`
	RefreshToken time.Time `json:"refresh_token"`
}

// TokenBundle carries the plaintext secrets. It is returned exactly once.
type TokenBundle struct {
	TokenType    string      `json:"token_type"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    TokenExpiry `json:"expires_at"`
}
