// Package pagination normalizes list requests and computes page metadata.
// Sorting is restricted to per-resource allow-lists and search input is
// sanitized before it reaches storage.
package pagination

import (
	"context"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/telemetry"
)

const (
	DefaultPage     = 1
	DefaultLimit    = 20
	MaxLimit        = 100
	MaxSearchLength = 100

	// MaxPage keeps (page-1)*limit within int for every allowed limit.
	MaxPage = math.MaxInt / MaxLimit
)

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ParseSortOrder accepts asc/desc in any case; anything else is Desc.
func ParseSortOrder(s string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(s), string(Asc)) {
		return Asc
	}
	return Desc
}

// Column is a storage column that passed an allow-list. It can only be
// obtained from SortColumns.Resolve.
type Column struct {
	name string
}

func (c Column) Name() string { return c.name }

// SortColumns maps public sort_by values onto storage columns.
type SortColumns struct {
	columns  map[string]Column
	fallback Column
}

// NewSortColumns declares the sortable fields of a resource. fallback is the
// public name used when sort_by is empty and must be one of the keys.
func NewSortColumns(fallback string, columns map[string]string) SortColumns {
	s := SortColumns{columns: make(map[string]Column, len(columns))}
	for public, column := range columns {
		s.columns[public] = Column{name: column}
	}
	def, ok := s.columns[fallback]
	if !ok {
		panic("pagination: default sort column " + fallback + " is not in the allow-list")
	}
	s.fallback = def
	return s
}

// Resolve returns the column for sortBy or a ValidationError.
func (s SortColumns) Resolve(sortBy string) (Column, error) {
	if sortBy == "" {
		return s.fallback, nil
	}
	col, ok := s.columns[sortBy]
	if !ok {
		return Column{}, apperrors.NewValidationError("sort_by", "unsupported sort column")
	}
	return col, nil
}

type Request struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortOrder SortOrder
}

// Normalize clamps page and limit and sanitizes search. It never fails.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Page > MaxPage {
		r.Page = MaxPage
	}
	if r.Limit < 1 {
		r.Limit = 1
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	if r.SortOrder != Asc {
		r.SortOrder = Desc
	}
	r.Search = SanitizeSearch(r.Search)
	return r
}

// SanitizeSearch keeps letters, digits, whitespace, '-' and '_', truncates to
// MaxSearchLength characters and trims surrounding space.
func SanitizeSearch(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if n == MaxSearchLength {
			break
		}
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '-' || r == '_' {
			b.WriteRune(r)
			n++
		}
	}
	return strings.TrimSpace(b.String())
}

// Bounds describe one ordered page of rows.
type Bounds struct {
	Offset int
	Limit  int
	Sort   Column
	Order  SortOrder
}

// Criteria select the rows both queries run against. Scope carries the
// resource-specific filters such as the owning organization.
type Criteria[F any] struct {
	Search string
	Scope  F
}

// Store is the storage side of a list endpoint. Both methods must bind all
// values as query parameters.
type Store[T any, F any] interface {
	FetchPage(ctx context.Context, bounds Bounds, criteria Criteria[F]) ([]T, error)
	Count(ctx context.Context, criteria Criteria[F]) (int64, error)
}

type Result[T any] struct {
	Items       []T
	Page        int
	Limit       int
	Total       int64
	TotalPages  int
	HasNext     bool
	HasPrevious bool
}

// NewResult computes page metadata for items out of total.
func NewResult[T any](items []T, page, limit int, total int64) *Result[T] {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	if items == nil {
		items = []T{}
	}
	return &Result[T]{
		Items:       items,
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}

// List normalizes req, validates its sort column and runs the page fetch and
// the count concurrently. An invalid sort column fails before storage is
// touched.
func List[T any, F any](ctx context.Context, req Request, columns SortColumns, scope F, store Store[T, F]) (*Result[T], error) {
	req = req.Normalize()

	col, err := columns.Resolve(req.SortBy)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("github.com/scho1ar-go/pkg/pagination").Start(ctx, "pagination.list")
	defer span.End()
	span.SetAttributes(
		attribute.Int("page", req.Page),
		attribute.Int("limit", req.Limit),
		attribute.String("sort", col.Name()),
	)

	criteria := Criteria[F]{Search: req.Search, Scope: scope}
	bounds := Bounds{Offset: (req.Page - 1) * req.Limit, Limit: req.Limit, Sort: col, Order: req.SortOrder}

	var (
		items []T
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = store.FetchPage(gctx, bounds, criteria)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = store.Count(gctx, criteria)
		return err
	})
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return NewResult(items, req.Page, req.Limit, total), nil
}
