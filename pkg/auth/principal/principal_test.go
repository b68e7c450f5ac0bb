package principal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scho1ar-go/pkg/auth/jwks"
)

func TestParseRole(t *testing.T) {
	tests := map[string]Role{
		"org:admin":        Admin,
		"admin":            Admin,
		"ADMIN":            Admin,
		"org:member":       Member,
		"basic_member":     Member,
		"org:basic_member": Member,
		"viewer":           Viewer,
		"superadmin":       Viewer,
		"":                 Viewer,
		"org:owner":        Viewer,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseRole(in), in)
	}
}

func TestResolve(t *testing.T) {
	p := Resolve(&jwks.Claims{
		Subject:        "user_1",
		Email:          "ada@example.test",
		OrganizationID: "org_1",
		OrgSlug:        "acme",
		Role:           "org:member",
		SessionID:      "sess_1",
	})

	assert.Equal(t, "user_1", p.SubjectID)
	assert.Equal(t, "org_1", p.OrganizationID)
	assert.Equal(t, Member, p.Role)
	assert.True(t, p.HasOrganization())
}

func TestResolveWithoutOrganization(t *testing.T) {
	p := Resolve(&jwks.Claims{Subject: "user_1"})

	assert.False(t, p.HasOrganization())
	assert.Equal(t, Viewer, p.Role)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	want := &Principal{SubjectID: "user_1"}
	got, ok := FromContext(WithPrincipal(context.Background(), want))
	assert.True(t, ok)
	assert.Same(t, want, got)
}
