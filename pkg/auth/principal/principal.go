// Package principal turns verified token claims into the identity and
// authorization attributes a request acts with.
package principal

import (
	"context"
	"strings"

	"github.com/scho1ar-go/pkg/auth/jwks"
)

// Role is the closed set of organization roles.
type Role int

const (
	// Viewer is the zero value so an unset role never grants more.
	Viewer Role = iota
	Member
	Admin
)

func (r Role) String() string {
	switch r {
	case Admin:
		return "admin"
	case Member:
		return "member"
	default:
		return "viewer"
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseRole maps a role claim onto a Role. Anything unrecognized, including
// an empty string, becomes Viewer.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "org:")
	switch s {
	case "admin":
		return Admin
	case "member", "basic_member":
		return Member
	default:
		return Viewer
	}
}

type Principal struct {
	SubjectID string
	Email     string
	// OrganizationID is empty when the session has no active organization.
	OrganizationID string
	OrgSlug        string
	Role           Role
	SessionID      string
}

func (p *Principal) HasOrganization() bool {
	return p != nil && p.OrganizationID != ""
}

// Resolve builds the principal for verified claims.
func Resolve(c *jwks.Claims) *Principal {
	return &Principal{
		SubjectID:      c.Subject,
		Email:          c.Email,
		OrganizationID: c.OrganizationID,
		OrgSlug:        c.OrgSlug,
		Role:           ParseRole(c.Role),
		SessionID:      c.SessionID,
	}
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}
