// Package listview provides a generic filter/search/sort/paginate pipeline
// shared by every admin list endpoint. The projection is pure: the same
// collection and query always yield the same page.
package listview

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// DefaultPerPage is the page size used when a query does not specify one.
const DefaultPerPage = 20

// Query captures the ephemeral list state driven by user input.
type Query struct {
	Search     string
	Status     string
	SortField  string
	Descending bool
	Page       int
	PerPage    int
}

// WithSearch sets the free-text search term and resets pagination so the
// caller never lands on an out-of-range page.
func (q Query) WithSearch(term string) Query {
	q.Search = term
	q.Page = 1
	return q
}

// WithStatus sets the status filter and resets pagination.
func (q Query) WithStatus(status string) Query {
	q.Status = status
	q.Page = 1
	return q
}

// WithPage selects a 1-indexed page.
func (q Query) WithPage(page int) Query {
	if page < 1 {
		page = 1
	}
	q.Page = page
	return q
}

// ToggleSort flips the direction when the active sort field is selected again,
// and switches to ascending order on the newly selected field otherwise.
func (q Query) ToggleSort(field string) Query {
	if q.SortField == field {
		q.Descending = !q.Descending
		return q
	}
	q.SortField = field
	q.Descending = false
	return q
}

// Sorter orders items by a single field. Items reported zero by IsZero sort
// to the end of the page regardless of direction.
type Sorter[T any] struct {
	Compare func(a, b T) int
	IsZero  func(T) bool
}

// View describes how a collection of T is projected for tabular display.
type View[T any] struct {
	searchKeys []func(T) string
	statusKey  func(T) string
	sorters    map[string]Sorter[T]
}

// Option configures a View.
type Option[T any] func(*View[T])

// WithSearchKeys registers the fields matched by the free-text search.
func WithSearchKeys[T any](keys ...func(T) string) Option[T] {
	return func(v *View[T]) {
		v.searchKeys = append(v.searchKeys, keys...)
	}
}

// WithStatusKey registers the field compared against the status filter.
func WithStatusKey[T any](key func(T) string) Option[T] {
	return func(v *View[T]) {
		v.statusKey = key
	}
}

// WithSorter registers a named sort field.
func WithSorter[T any](field string, sorter Sorter[T]) Option[T] {
	return func(v *View[T]) {
		v.sorters[field] = sorter
	}
}

// New builds a View from the provided options.
func New[T any](opts ...Option[T]) *View[T] {
	view := &View[T]{
		sorters: make(map[string]Sorter[T]),
	}
	for _, opt := range opts {
		opt(view)
	}
	return view
}

// Page is one page of a projected collection.
type Page[T any] struct {
	Items      []T
	Page       int
	PerPage    int
	TotalItems int
	TotalPages int
}

// Apply runs the pipeline in fixed order: status filter, free-text search,
// sort, pagination. The input slice is never mutated.
func (v *View[T]) Apply(items []T, q Query) Page[T] {
	filtered := v.filter(items, q)
	v.sort(filtered, q)
	return paginate(filtered, q)
}

func (v *View[T]) filter(items []T, q Query) []T {
	status := strings.TrimSpace(q.Status)
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]T, 0, len(items))
	for _, item := range items {
		if v.statusKey != nil && status != "" && status != StatusAll {
			if !strings.EqualFold(v.statusKey(item), status) {
				continue
			}
		}
		if search != "" && len(v.searchKeys) > 0 && !v.matchesSearch(item, search) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (v *View[T]) matchesSearch(item T, loweredTerm string) bool {
	for _, key := range v.searchKeys {
		if strings.Contains(strings.ToLower(key(item)), loweredTerm) {
			return true
		}
	}
	return false
}

func (v *View[T]) sort(items []T, q Query) {
	sorter, ok := v.sorters[q.SortField]
	if !ok || sorter.Compare == nil {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if sorter.IsZero != nil {
			aZero, bZero := sorter.IsZero(a), sorter.IsZero(b)
			if aZero != bZero {
				return bZero
			}
			if aZero {
				return false
			}
		}
		cmp := sorter.Compare(a, b)
		if q.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func paginate[T any](items []T, q Query) Page[T] {
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	total := len(items)
	totalPages := (total + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * perPage
	if start >= total {
		return Page[T]{Items: []T{}, Page: page, PerPage: perPage, TotalItems: total, TotalPages: totalPages}
	}
	end := start + perPage
	if end > total {
		end = total
	}

	out := make([]T, end-start)
	copy(out, items[start:end])
	return Page[T]{Items: out, Page: page, PerPage: perPage, TotalItems: total, TotalPages: totalPages}
}

// StringSorter orders items by a string key using locale-aware collation.
// Empty strings sort to the end.
func StringSorter[T any](tag language.Tag, key func(T) string) Sorter[T] {
	collator := collate.New(tag, collate.IgnoreCase)
	return Sorter[T]{
		Compare: func(a, b T) int {
			return collator.CompareString(key(a), key(b))
		},
		IsZero: func(item T) bool {
			return strings.TrimSpace(key(item)) == ""
		},
	}
}

// TimeSorter orders items by timestamp. Nil timestamps sort to the end.
func TimeSorter[T any](key func(T) *time.Time) Sorter[T] {
	return Sorter[T]{
		Compare: func(a, b T) int {
			at, bt := key(a), key(b)
			switch {
			case at.Equal(*bt):
				return 0
			case at.Before(*bt):
				return -1
			default:
				return 1
			}
		},
		IsZero: func(item T) bool {
			return key(item) == nil
		},
	}
}

// NumberSorter orders items by an integer key.
func NumberSorter[T any](key func(T) int64) Sorter[T] {
	return Sorter[T]{
		Compare: func(a, b T) int {
			av, bv := key(a), key(b)
			switch {
			case av == bv:
				return 0
			case av < bv:
				return -1
			default:
				return 1
			}
		},
	}
}
