package jwks

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the verified token claims the API relies on.
type Claims struct {
	Subject         string
	Email           string
	OrganizationID  string
	Role            string
	OrgSlug         string
	SessionID       string
	AuthorizedParty string
	Issuer          string
	Audience        []string
	TokenID         string
	ExpiresAt       time.Time
	IssuedAt        time.Time
	NotBefore       time.Time
}

// tokenClaims is the wire shape of the identity provider's session token.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email           string `json:"email,omitempty"`
	OrgID           string `json:"org_id,omitempty"`
	OrgRole         string `json:"org_role,omitempty"`
	OrgSlug         string `json:"org_slug,omitempty"`
	SessionID       string `json:"sid,omitempty"`
	AuthorizedParty string `json:"azp,omitempty"`
}

func (tc *tokenClaims) toClaims() *Claims {
	return &Claims{
		Subject:         tc.Subject,
		Email:           tc.Email,
		OrganizationID:  tc.OrgID,
		Role:            tc.OrgRole,
		OrgSlug:         tc.OrgSlug,
		SessionID:       tc.SessionID,
		AuthorizedParty: tc.AuthorizedParty,
		Issuer:          tc.Issuer,
		Audience:        []string(tc.Audience),
		TokenID:         tc.ID,
		ExpiresAt:       numericTime(tc.ExpiresAt),
		IssuedAt:        numericTime(tc.IssuedAt),
		NotBefore:       numericTime(tc.NotBefore),
	}
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
