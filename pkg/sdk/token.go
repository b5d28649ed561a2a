package sdk

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultInspectorCacheSize = 64

// TokenInspector decodes the expiry claim of access tokens without verifying
// their signature. It is a local optimisation for session bootstrap only and is
// never used for trust decisions.
type TokenInspector struct {
	now    func() time.Time
	parser *jwt.Parser
	cache  *lru.Cache[string, time.Time]
}

// InspectorOption configures a TokenInspector.
type InspectorOption func(*TokenInspector)

// WithInspectorClock overrides the clock used to compare expiries.
func WithInspectorClock(now func() time.Time) InspectorOption {
	return func(i *TokenInspector) {
		if now != nil {
			i.now = now
		}
	}
}

// NewTokenInspector creates a TokenInspector.
func NewTokenInspector(opts ...InspectorOption) *TokenInspector {
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, time.Time](defaultInspectorCacheSize)
	i := &TokenInspector{
		now:    time.Now,
		parser: jwt.NewParser(),
		cache:  cache,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IsLive reports whether the token's exp claim lies in the future.
// Malformed tokens and tokens without exp are reported as not live.
func (i *TokenInspector) IsLive(token string) bool {
	exp, ok := i.ExpiresAt(token)
	if !ok {
		return false
	}
	return i.now().Before(exp)
}

// ExpiresAt returns the decoded exp claim. ok is false for malformed tokens or
// tokens without an exp claim.
func (i *TokenInspector) ExpiresAt(token string) (exp time.Time, ok bool) {
	if token == "" {
		return time.Time{}, false
	}
	if cached, hit := i.cache.Get(token); hit {
		return cached, !cached.IsZero()
	}

	exp = i.decode(token)
	i.cache.Add(token, exp)
	return exp, !exp.IsZero()
}

func (i *TokenInspector) decode(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := i.parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
