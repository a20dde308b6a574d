// Package collection implements the remote collection controller behind every console screen:
// a mutex-guarded Store holding the current page and query, a Synchronizer that keeps exactly
// one authoritative fetch per query, a Coordinator that applies create/update/delete intents
// optimistically, and Derive/LocalView for screens that page over a fully fetched set.
package collection

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// DefaultPageSize is used when no page size is configured
const DefaultPageSize = 10

// IDField is the identity field of every item
const IDField = "id"

// Item is an opaque record. Only the identity field and the display key are interpreted.
type Item map[string]any

// Clone returns a shallow copy of the item
func (i Item) Clone() Item {
	if i == nil {
		return nil
	}
	return maps.Clone(i)
}

// Merge returns a copy of i with every field of partial applied on top
func (i Item) Merge(partial Item) Item {
	out := make(Item, len(i)+len(partial))
	maps.Copy(out, i)
	maps.Copy(out, partial)
	return out
}

// ID returns the normalized identity of the item
func (i Item) ID() (ID, bool) {
	v, ok := i[IDField]
	if !ok || v == nil {
		return "", false
	}
	id := NewID(v)
	return id, id != ""
}

// ID is a normalized identity. Numeric and string identities compare equal when they print the same.
type ID string

// NewID normalizes a numeric or string identity
func NewID(v any) ID {
	switch t := v.(type) {
	case ID:
		return ID(strings.TrimSpace(string(t)))
	case string:
		return ID(strings.TrimSpace(t))
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return ID(strconv.FormatInt(int64(t), 10))
		}
		return ID(strconv.FormatFloat(t, 'f', -1, 64))
	case float32:
		return NewID(float64(t))
	case int:
		return ID(strconv.Itoa(t))
	case int64:
		return ID(strconv.FormatInt(t, 10))
	case int32:
		return ID(strconv.FormatInt(int64(t), 10))
	case uint64:
		return ID(strconv.FormatUint(t, 10))
	case fmt.Stringer:
		return ID(strings.TrimSpace(t.String()))
	default:
		return ID(strings.TrimSpace(fmt.Sprint(t)))
	}
}

// SortDirection is asc or desc
type SortDirection string

const (
	// SortAsc sorts ascending
	SortAsc SortDirection = "asc"
	// SortDesc sorts descending
	SortDesc SortDirection = "desc"
)

// Toggle returns the opposite direction
func (d SortDirection) Toggle() SortDirection {
	if d == SortDesc {
		return SortAsc
	}
	return SortDesc
}

// Query describes the slice of a collection currently of interest. Page is zero-based.
type Query struct {
	FilterText    string
	Page          int
	PageSize      int
	SortKey       string
	SortDirection SortDirection
}

// IsZero reports whether q is the zero Query, which backends read as "the whole collection"
func (q Query) IsZero() bool {
	return q == Query{}
}

// QueryPatch is a partial Query; nil fields are left unchanged
type QueryPatch struct {
	FilterText    *string
	Page          *int
	PageSize      *int
	SortKey       *string
	SortDirection *SortDirection
}

// FilterPatch sets the filter text
func FilterPatch(text string) QueryPatch {
	return QueryPatch{FilterText: &text}
}

// PagePatch moves to a zero-based page
func PagePatch(page int) QueryPatch {
	return QueryPatch{Page: &page}
}

// SortPatch sets the sort key and direction
func SortPatch(key string, dir SortDirection) QueryPatch {
	return QueryPatch{SortKey: &key, SortDirection: &dir}
}

// apply merges p into q and reports whether the page cursor has to be reset
func (p QueryPatch) apply(q Query) (Query, bool) {
	next := q
	if p.FilterText != nil {
		next.FilterText = *p.FilterText
	}
	if p.SortKey != nil {
		next.SortKey = *p.SortKey
	}
	if p.SortDirection != nil {
		next.SortDirection = *p.SortDirection
	}
	if p.PageSize != nil && *p.PageSize > 0 {
		next.PageSize = *p.PageSize
	}
	if p.Page != nil {
		next.Page = max(*p.Page, 0)
	}

	reset := next.FilterText != q.FilterText ||
		next.SortKey != q.SortKey ||
		next.SortDirection != q.SortDirection ||
		next.PageSize != q.PageSize
	if reset {
		next.Page = 0
	}
	return next, reset
}

// MaxPage returns the last valid zero-based page index for total items at pageSize
func MaxPage(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total+pageSize-1)/pageSize - 1
}

// Page is one slice of a collection together with the total under the current filter
type Page struct {
	Items []Item
	Total int
}

// Snapshot is a read-only copy of a controller's state
type Snapshot struct {
	Resource string
	Query    Query
	Items    []Item
	Total    int
	MaxPage  int
	Loading  bool
	Error    string
}

// File is one binary part of a multipart mutation
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
