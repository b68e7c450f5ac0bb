package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/auth/principal"
	"github.com/scho1ar-go/pkg/logger"
)

type stubLimiter struct {
	keys  []string
	allow bool
	err   error
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

// run invokes Check on a request carrying p, if any.
func run(l *stubLimiter, p *principal.Principal) (*httptest.ResponseRecorder, error) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ping", nil)
	if p != nil {
		c.Request = c.Request.WithContext(principal.WithPrincipal(c.Request.Context(), p))
	}
	return w, Check(l, logger.NewNop())(c)
}

func TestCheckRejectsOverLimit(t *testing.T) {
	l := &stubLimiter{allow: false}
	w, err := run(l, nil)

	var limited *apperrors.RateLimitError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, http.StatusTooManyRequests, apperrors.HTTPStatus(err))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestCheckKeysBySubject(t *testing.T) {
	l := &stubLimiter{allow: true}
	_, err := run(l, &principal.Principal{SubjectID: "user_1"})

	require.NoError(t, err)
	assert.Equal(t, []string{"sub:user_1"}, l.keys)
}

func TestCheckKeysAnonymousByIP(t *testing.T) {
	l := &stubLimiter{allow: true}
	_, err := run(l, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"ip:192.0.2.1"}, l.keys)
}

func TestCheckFailsOpen(t *testing.T) {
	l := &stubLimiter{err: errors.New("redis down")}
	_, err := run(l, nil)

	assert.NoError(t, err)
	assert.Len(t, l.keys, 1)
}
