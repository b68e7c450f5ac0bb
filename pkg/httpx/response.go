// Package httpx writes the JSON envelopes every endpoint responds with.
package httpx

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/logger"
)

type SuccessEnvelope struct {
	Data      interface{} `json:"data"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

type PageEnvelope struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

type ErrorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Path       string `json:"path,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessEnvelope{Data: data, Timestamp: now()})
}

func Created(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, SuccessEnvelope{Data: data, Message: message, Timestamp: now()})
}

func Accepted(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusAccepted, SuccessEnvelope{Data: data, Message: message, Timestamp: now()})
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func Page(c *gin.Context, data interface{}, p Pagination) {
	c.JSON(http.StatusOK, PageEnvelope{Data: data, Pagination: p})
}

// Error writes the envelope for err and aborts the gin chain. Failures that
// map to 500 are logged with their full cause first.
func Error(c *gin.Context, log logger.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", c.GetString(RequestIDKey),
			"error", err,
		)
	}
	Abort(c, status, apperrors.PublicMessage(err))
}

// Abort writes an error envelope with an explicit status and message.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
		Path:       c.Request.URL.Path,
		Timestamp:  now(),
	})
}
