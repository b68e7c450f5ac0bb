// Package rbac decides which organization roles may perform an action on a
// resource. Route tables resolve role sets from it once at startup.
package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"

	"github.com/scho1ar-go/pkg/auth/principal"
	"github.com/scho1ar-go/pkg/database"
	"github.com/scho1ar-go/pkg/logger"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionSync   = "sync"
	ActionAll    = "*"
)

const (
	ResourceCloudAccounts = "cloud-accounts"
	ResourceJobs          = "jobs"
	ResourceAll           = "*"
)

// DefaultPolicies grant admins everything, members everything but delete
// and viewers read access.
var DefaultPolicies = [][]string{
	{principal.Admin.String(), ResourceAll, ActionAll},
	{principal.Member.String(), ResourceAll, ActionRead},
	{principal.Member.String(), ResourceAll, ActionCreate},
	{principal.Member.String(), ResourceAll, ActionUpdate},
	{principal.Member.String(), ResourceAll, ActionSync},
	{principal.Viewer.String(), ResourceAll, ActionRead},
}

var roles = []principal.Role{principal.Viewer, principal.Member, principal.Admin}

type Policy struct {
	enforcer *casbin.Enforcer
	logger   logger.Logger
}

// NewPolicy loads role policies from db, seeding DefaultPolicies into an
// empty table. With a nil db the defaults are kept in memory.
func NewPolicy(db *database.DB, log logger.Logger) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rbac model: %w", err)
	}

	var e *casbin.Enforcer
	if db != nil {
		adapter, err := gormadapter.NewAdapterByDB(db.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to create adapter: %w", err)
		}
		e, err = casbin.NewEnforcer(m, adapter)
		if err != nil {
			return nil, fmt.Errorf("failed to create enforcer: %w", err)
		}
		e.EnableAutoSave(true)
	} else {
		e, err = casbin.NewEnforcer(m)
		if err != nil {
			return nil, fmt.Errorf("failed to create enforcer: %w", err)
		}
	}
	e.EnableLog(false)

	existing, err := e.GetPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	if len(existing) == 0 {
		if _, err := e.AddPolicies(DefaultPolicies); err != nil {
			return nil, fmt.Errorf("failed to seed default policy: %w", err)
		}
		log.Info("seeded default role policy", "rules", len(DefaultPolicies))
	}

	return &Policy{enforcer: e, logger: log.Named("rbac")}, nil
}

// AllowedRoles lists the roles permitted to perform action on resource.
func (p *Policy) AllowedRoles(resource, action string) ([]principal.Role, error) {
	var allowed []principal.Role
	for _, r := range roles {
		ok, err := p.enforcer.Enforce(r.String(), resource, action)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate %s on %s/%s: %w", r, resource, action, err)
		}
		if ok {
			allowed = append(allowed, r)
		}
	}
	p.logger.Debug("resolved role set", "resource", resource, "action", action, "roles", allowed)
	return allowed, nil
}

// MustAllowedRoles is AllowedRoles for route tables built at startup.
func (p *Policy) MustAllowedRoles(resource, action string) []principal.Role {
	allowed, err := p.AllowedRoles(resource, action)
	if err != nil {
		panic(err)
	}
	return allowed
}

// Grant adds a rule at runtime. Route role sets resolved earlier are not
// affected until the router is rebuilt.
func (p *Policy) Grant(role principal.Role, resource, action string) error {
	if _, err := p.enforcer.AddPolicy(role.String(), resource, action); err != nil {
		return fmt.Errorf("failed to add policy: %w", err)
	}
	return nil
}
