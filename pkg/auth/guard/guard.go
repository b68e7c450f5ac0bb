// Package guard enforces role and organization checks on a principal.
// Every denial is audited; callers only ever see a generic Forbidden error.
package guard

import (
	"context"
	"fmt"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/audit"
	"github.com/scho1ar-go/pkg/auth/principal"
	"github.com/scho1ar-go/pkg/metrics"
)

type Guard struct {
	sink audit.Sink
}

func New(sink audit.Sink) *Guard {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Guard{sink: sink}
}

// RequireRole fails unless p holds one of allowed.
func (g *Guard) RequireRole(ctx context.Context, p *principal.Principal, resource string, allowed ...principal.Role) error {
	if p == nil {
		return g.deny(ctx, "role", nil, resource, "no principal")
	}
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	return g.deny(ctx, "role", p, resource, fmt.Sprintf("role %s not in %v", p.Role, allowed))
}

// RequireOrg fails unless the organization in p's verified token equals
// orgID. A principal without an organization fails for every orgID,
// including the empty string.
func (g *Guard) RequireOrg(ctx context.Context, p *principal.Principal, resource, orgID string) error {
	switch {
	case p == nil:
		return g.deny(ctx, "organization", nil, resource, "no principal")
	case !p.HasOrganization():
		return g.deny(ctx, "organization", p, resource, "no active organization")
	case p.OrganizationID != orgID:
		return g.deny(ctx, "organization", p, resource, "organization mismatch: requested "+orgID)
	}
	return nil
}

func (g *Guard) deny(ctx context.Context, kind string, p *principal.Principal, resource, reason string) error {
	event := audit.Event{
		Action:   audit.ActionAccessDenied,
		Resource: resource,
		Reason:   reason,
	}
	if p != nil {
		event.SubjectID = p.SubjectID
		event.OrganizationID = p.OrganizationID
	}
	g.sink.Emit(ctx, event)
	metrics.RecordGuardDenial(kind)

	return apperrors.Forbidden(reason)
}
