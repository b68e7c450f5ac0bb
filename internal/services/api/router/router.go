// Package router dispatches requests to handlers behind ordered guards.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scho1ar-go/pkg/auth/guard"
	"github.com/scho1ar-go/pkg/auth/principal"
	"github.com/scho1ar-go/pkg/httpx"
	"github.com/scho1ar-go/pkg/logger"
	authmw "github.com/scho1ar-go/pkg/middleware/auth"
)

// Guard inspects a request before its handler runs. A non-nil error stops
// dispatch and is written as the response.
type Guard func(c *gin.Context) error

type Route struct {
	Method  string
	Path    string
	Guards  []Guard
	Handler gin.HandlerFunc
}

type Router struct {
	engine *gin.Engine
	logger logger.Logger
}

// New wraps engine and answers unmatched paths with a 404 envelope.
func New(engine *gin.Engine, log logger.Logger) *Router {
	engine.NoRoute(func(c *gin.Context) {
		httpx.Abort(c, http.StatusNotFound, "Route "+c.Request.Method+" "+c.Request.URL.Path+" not found")
	})
	return &Router{engine: engine, logger: log}
}

func (r *Router) Register(routes ...Route) {
	for _, rt := range routes {
		r.engine.Handle(rt.Method, rt.Path, r.dispatch(rt))
	}
}

func (r *Router) dispatch(rt Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, g := range rt.Guards {
			if err := g(c); err != nil {
				httpx.Error(c, r.logger, err)
				return
			}
		}
		rt.Handler(c)
	}
}

// Authenticated requires a valid bearer token.
func Authenticated(a *authmw.Authenticator) Guard {
	return a.Authenticate
}

// SameOrganization requires the :param path segment to equal the token's
// organization.
func SameOrganization(g *guard.Guard, resource, param string) Guard {
	return func(c *gin.Context) error {
		p, _ := authmw.CurrentPrincipal(c)
		return g.RequireOrg(c.Request.Context(), p, resource, c.Param(param))
	}
}

// RoleIn requires one of roles.
func RoleIn(g *guard.Guard, resource string, roles ...principal.Role) Guard {
	return func(c *gin.Context) error {
		p, _ := authmw.CurrentPrincipal(c)
		return g.RequireRole(c.Request.Context(), p, resource, roles...)
	}
}
