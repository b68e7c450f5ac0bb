package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scho1ar-go/internal/services/api/handlers"
	"github.com/scho1ar-go/internal/services/api/rbac"
	"github.com/scho1ar-go/internal/services/api/router"
	"github.com/scho1ar-go/pkg/audit"
	"github.com/scho1ar-go/pkg/auth/guard"
	"github.com/scho1ar-go/pkg/httpx"
	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/metrics"
	authmw "github.com/scho1ar-go/pkg/middleware/auth"
	ratelimitmw "github.com/scho1ar-go/pkg/middleware/ratelimit"
	"github.com/scho1ar-go/pkg/ratelimit"
	"github.com/scho1ar-go/pkg/telemetry"
)

const orgParam = "orgId"

// Deps is everything the HTTP surface needs. Limiter and Telemetry are
// optional.
type Deps struct {
	Handlers    *handlers.Handlers
	Verifier    authmw.TokenVerifier
	Sink        audit.Sink
	Policy      *rbac.Policy
	Limiter     ratelimit.Limiter
	Telemetry   *telemetry.Telemetry
	CORSOrigins []string
	Logger      logger.Logger
}

func NewRouter(d Deps) *gin.Engine {
	engine := gin.New()
	engine.Use(httpx.RequestID())
	engine.Use(httpx.Recovery(d.Logger))
	engine.Use(httpx.CORS(d.CORSOrigins))
	engine.Use(httpx.Logging(d.Logger))
	engine.Use(metrics.Middleware())
	if d.Telemetry != nil {
		engine.Use(d.Telemetry.HTTPMiddleware())
	}

	h := d.Handlers
	g := guard.New(d.Sink)
	authenticated := router.Authenticated(authmw.NewAuthenticator(d.Verifier, d.Sink, d.Logger))

	// Rate limiting runs after authentication so token holders are charged
	// by subject; public routes are charged by client IP.
	var public []router.Guard
	if d.Limiter != nil {
		public = []router.Guard{ratelimitmw.Check(d.Limiter, d.Logger)}
	}
	protected := func(rest ...router.Guard) []router.Guard {
		guards := append([]router.Guard{authenticated}, public...)
		return append(guards, rest...)
	}
	scoped := func(resource, action string) []router.Guard {
		return protected(
			router.SameOrganization(g, resource, orgParam),
			router.RoleIn(g, resource, d.Policy.MustAllowedRoles(resource, action)...),
		)
	}

	accounts := "/api/organizations/:" + orgParam + "/cloud-accounts"
	jobs := "/api/organizations/:" + orgParam + "/jobs"
	rc, rj := rbac.ResourceCloudAccounts, rbac.ResourceJobs

	r := router.New(engine, d.Logger)
	r.Register(
		router.Route{Method: http.MethodGet, Path: "/health", Handler: h.Health},
		router.Route{Method: http.MethodGet, Path: "/ready", Guards: public, Handler: h.Ready},
		router.Route{Method: http.MethodGet, Path: "/metrics", Handler: metrics.Handler()},
		router.Route{Method: http.MethodGet, Path: "/api/", Guards: public, Handler: h.Banner},

		router.Route{Method: http.MethodGet, Path: "/api/me", Guards: protected(), Handler: h.Me},

		router.Route{Method: http.MethodGet, Path: accounts, Guards: scoped(rc, rbac.ActionRead), Handler: h.ListCloudAccounts},
		router.Route{Method: http.MethodPost, Path: accounts, Guards: scoped(rc, rbac.ActionCreate), Handler: h.CreateCloudAccount},
		router.Route{Method: http.MethodGet, Path: accounts + "/:accountId", Guards: scoped(rc, rbac.ActionRead), Handler: h.GetCloudAccount},
		router.Route{Method: http.MethodPatch, Path: accounts + "/:accountId", Guards: scoped(rc, rbac.ActionUpdate), Handler: h.UpdateCloudAccount},
		router.Route{Method: http.MethodDelete, Path: accounts + "/:accountId", Guards: scoped(rc, rbac.ActionDelete), Handler: h.DeleteCloudAccount},
		router.Route{Method: http.MethodPost, Path: accounts + "/:accountId/sync", Guards: scoped(rc, rbac.ActionSync), Handler: h.SyncCloudAccount},

		router.Route{Method: http.MethodGet, Path: jobs, Guards: scoped(rj, rbac.ActionRead), Handler: h.ListJobs},
		router.Route{Method: http.MethodGet, Path: jobs + "/:jobId", Guards: scoped(rj, rbac.ActionRead), Handler: h.GetJob},
	)
	return engine
}
