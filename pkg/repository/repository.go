// Package repository holds gorm building blocks shared by the storage
// adapters of list endpoints.
package repository

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scho1ar-go/pkg/pagination"
)

// Page orders, limits and offsets a query. The sort column comes from an
// allow-list, never from client input.
func Page(b pagination.Bounds) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Order(clause.OrderByColumn{
				Column: clause.Column{Name: b.Sort.Name()},
				Desc:   b.Order == pagination.Desc,
			}).
			// Stable order across pages when the sort column has ties.
			Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}}).
			Limit(b.Limit).
			Offset(b.Offset)
	}
}

// Search matches term case-insensitively as a substring of any of columns.
// columns must be constants of the calling repository. An empty term leaves
// the query unchanged.
func Search(term string, columns ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if term == "" || len(columns) == 0 {
			return db
		}
		pattern := "%" + EscapeLike(strings.ToLower(term)) + "%"

		conds := make([]string, len(columns))
		args := make([]interface{}, len(columns))
		for i, col := range columns {
			conds[i] = "LOWER(" + col + `) LIKE ? ESCAPE '\'`
			args[i] = pattern
		}
		return db.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
}

// EscapeLike escapes LIKE wildcards so term matches literally.
func EscapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
