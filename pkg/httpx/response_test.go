package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestErrorEnvelopeHidesStorageDetails(t *testing.T) {
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) {
		Error(c, logger.NewNop(), apperrors.Storage("list", errors.New(`pq: syntax error at or near "DROP"`)))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 500, body.StatusCode)
	assert.Equal(t, "Internal Server Error", body.Error)
	assert.Equal(t, "An unexpected error occurred", body.Message)
	assert.Equal(t, "/boom", body.Path)
	assert.NotContains(t, w.Body.String(), "DROP")
}

func TestForbiddenEnvelope(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		Error(c, nil, apperrors.Forbidden("organization mismatch"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"Access denied"`)
	assert.NotContains(t, w.Body.String(), "mismatch")
}

func TestRecoveryAndRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(logger.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	assert.NotContains(t, w.Body.String(), "kaboom")
}

func TestPageEnvelopeShape(t *testing.T) {
	r := gin.New()
	r.GET("/items", func(c *gin.Context) {
		Page(c, []string{"a"}, Pagination{Page: 1, Limit: 5, Total: 23, TotalPages: 5, HasNext: true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(5), pagination["totalPages"])
	assert.Equal(t, true, pagination["hasNext"])
	assert.Equal(t, false, pagination["hasPrevious"])
}
