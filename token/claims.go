package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/internal/utils"
)

// Claims is what can be read from a JWT-shaped access credential without
// verifying it. The session never relies on these values for authorization;
// they are informational (logging, status output).
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	Roles     []string
}

// Peek parses the credential's claims without verifying the signature.
// Returns false for credentials that are not JWTs.
func Peek(raw string) (*Claims, bool) {
	if raw == "" {
		return nil, false
	}

	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, false
	}

	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, false
	}

	claims := &Claims{}
	claims.Subject, _ = mapClaims.GetSubject()
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if roles, ok := mapClaims["roles"].([]any); ok {
		claims.Roles = utils.ToStringSlice(roles)
	}
	return claims, true
}

// Expired reports whether the claims carry an expiry that is at or before now.
// Claims without an expiry never expire.
func (c *Claims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}
