package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/audit"
	"github.com/scho1ar-go/pkg/auth/guard"
	"github.com/scho1ar-go/pkg/auth/jwks"
	"github.com/scho1ar-go/pkg/auth/principal"
	"github.com/scho1ar-go/pkg/logger"
	authmw "github.com/scho1ar-go/pkg/middleware/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	claims *jwks.Claims
	err    error
}

func (s stubVerifier) Verify(context.Context, string) (*jwks.Claims, error) {
	return s.claims, s.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Emit(_ context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

type envelope struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Path       string `json:"path"`
}

func serve(t *testing.T, r *gin.Engine, method, path, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Code >= 400 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func setup(v stubVerifier) (*gin.Engine, *bool, *recordingSink) {
	sink := &recordingSink{}
	g := guard.New(sink)
	auth := authmw.NewAuthenticator(v, sink, logger.NewNop())

	engine := gin.New()
	rt := New(engine, logger.NewNop())
	called := false
	rt.Register(Route{
		Method: http.MethodDelete,
		Path:   "/api/organizations/:orgId/things/:id",
		Guards: []Guard{
			Authenticated(auth),
			SameOrganization(g, "things", "orgId"),
			RoleIn(g, "things", principal.Admin),
		},
		Handler: func(c *gin.Context) {
			called = true
			c.Status(http.StatusNoContent)
		},
	})
	return engine, &called, sink
}

func TestGuardsRunInOrderAndStopDispatch(t *testing.T) {
	memberOfOrg1 := &jwks.Claims{Subject: "user_1", OrganizationID: "org_1", Role: "org:member"}
	adminOfOrg1 := &jwks.Claims{Subject: "user_1", OrganizationID: "org_1", Role: "org:admin"}
	noOrg := &jwks.Claims{Subject: "user_1"}

	tests := []struct {
		name     string
		verifier stubVerifier
		token    string
		path     string
		status   int
		message  string
	}{
		{"missing token", stubVerifier{claims: adminOfOrg1}, "", "/api/organizations/org_1/things/x", 401, "Authentication required"},
		{"expired token", stubVerifier{err: apperrors.NewAuthError(apperrors.KindExpired, "expired", nil)}, "t", "/api/organizations/org_1/things/x", 401, "Authentication required"},
		{"other organization", stubVerifier{claims: adminOfOrg1}, "t", "/api/organizations/org_2/things/x", 403, "Access denied"},
		{"no organization", stubVerifier{claims: noOrg}, "t", "/api/organizations/org_1/things/x", 403, "Access denied"},
		{"insufficient role", stubVerifier{claims: memberOfOrg1}, "t", "/api/organizations/org_1/things/x", 403, "Access denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, called, sink := setup(tt.verifier)

			w, env := serve(t, engine, http.MethodDelete, tt.path, tt.token)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.status, env.StatusCode)
			assert.Equal(t, http.StatusText(tt.status), env.Error)
			assert.Equal(t, tt.message, env.Message)
			assert.Equal(t, tt.path, env.Path)
			assert.False(t, *called, "handler must not run")
			assert.Len(t, sink.events, 1)
		})
	}
}

func TestHandlerRunsWhenAllGuardsPass(t *testing.T) {
	engine, called, sink := setup(stubVerifier{claims: &jwks.Claims{Subject: "user_1", OrganizationID: "org_1", Role: "org:admin"}})

	w, _ := serve(t, engine, http.MethodDelete, "/api/organizations/org_1/things/x", "t")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, *called)
	assert.Empty(t, sink.events)
}

func TestUnmatchedRouteIs404Envelope(t *testing.T) {
	engine, _, _ := setup(stubVerifier{err: errors.New("unused")})

	w, env := serve(t, engine, http.MethodGet, "/api/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", env.Error)
	assert.Equal(t, "/api/nothing-here", env.Path)
}
