package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/audit"
	"github.com/scho1ar-go/pkg/auth/jwks"
	"github.com/scho1ar-go/pkg/auth/principal"
	"github.com/scho1ar-go/pkg/httpx"
	"github.com/scho1ar-go/pkg/logger"
)

// PrincipalKey is the gin context key holding the *principal.Principal.
const PrincipalKey = "principal"

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*jwks.Claims, error)
}

// Authenticator turns the bearer token of a request into a principal.
type Authenticator struct {
	verifier TokenVerifier
	sink     audit.Sink
	logger   logger.Logger
}

func NewAuthenticator(verifier TokenVerifier, sink audit.Sink, log logger.Logger) *Authenticator {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Authenticator{verifier: verifier, sink: sink, logger: log}
}

// Authenticate verifies the request's bearer token and attaches the
// resulting principal to both the gin and the request context.
func (a *Authenticator) Authenticate(c *gin.Context) error {
	ctx := c.Request.Context()

	token, err := jwks.ExtractBearer(c.GetHeader("Authorization"))
	var claims *jwks.Claims
	if err == nil {
		claims, err = a.verifier.Verify(ctx, token)
	}
	if err != nil {
		reason := "authentication failed"
		var authErr *apperrors.AuthError
		if errors.As(err, &authErr) {
			reason = string(authErr.Kind)
		}
		a.sink.Emit(ctx, audit.Event{
			Action:   audit.ActionAuthFailed,
			Resource: c.Request.URL.Path,
			Reason:   reason,
		})
		return err
	}

	p := principal.Resolve(claims)
	c.Set(PrincipalKey, p)
	c.Request = c.Request.WithContext(principal.WithPrincipal(ctx, p))
	return nil
}

// Handle is Authenticate as gin middleware.
func (a *Authenticator) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.Authenticate(c); err != nil {
			httpx.Error(c, a.logger, err)
			return
		}
		c.Next()
	}
}

// CurrentPrincipal returns the principal attached by Authenticate.
func CurrentPrincipal(c *gin.Context) (*principal.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*principal.Principal)
	return p, ok && p != nil
}
