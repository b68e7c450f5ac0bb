package handlers

import (
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/httpx"
	"github.com/scho1ar-go/pkg/pagination"
)

// listRequest reads page, limit, search, sort_by and sort_order. Values
// that are not integers fall back to the defaults; range clamping happens
// in pagination. A query string that does not parse is rejected rather
// than read with pairs silently dropped.
func listRequest(c *gin.Context) (pagination.Request, error) {
	if _, err := url.ParseQuery(c.Request.URL.RawQuery); err != nil {
		return pagination.Request{}, apperrors.NewValidationError("query", "malformed query string")
	}
	return pagination.Request{
		Page:      intQuery(c, "page", pagination.DefaultPage),
		Limit:     intQuery(c, "limit", pagination.DefaultLimit),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: pagination.ParseSortOrder(c.Query("sort_order")),
	}, nil
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw, ok := c.GetQuery(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writePage[T any](c *gin.Context, r *pagination.Result[T]) {
	httpx.Page(c, r.Items, httpx.Pagination{
		Page:        r.Page,
		Limit:       r.Limit,
		Total:       r.Total,
		TotalPages:  r.TotalPages,
		HasNext:     r.HasNext,
		HasPrevious: r.HasPrevious,
	})
}
