package collection

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DeriveOptions configures client-side view derivation
type DeriveOptions struct {
	// DisplayKey is the field matched by the filter text
	DisplayKey string
	// Locale drives string ordering; language.Und when unset
	Locale language.Tag
}

// View is the visible slice of a locally held collection
type View struct {
	Items []Item
	// Total counts the items that pass the filter
	Total int
	// Page is the page actually shown after clamping
	Page    int
	MaxPage int
}

// Derive filters, sorts and slices items for q. It never mutates items and always returns the
// same view for the same input.
func Derive(items []Item, q Query, opts DeriveOptions) View {
	filtered := filterItems(items, q.FilterText, opts.DisplayKey)

	if q.SortKey != "" {
		// collators are not safe for concurrent use
		col := collate.New(opts.Locale, collate.IgnoreCase)
		slices.SortStableFunc(filtered, func(a, b Item) int {
			c := compareValues(col, a[q.SortKey], b[q.SortKey])
			if q.SortDirection == SortDesc {
				return -c
			}
			return c
		})
	}

	total := len(filtered)
	if q.PageSize <= 0 {
		return View{Items: filtered, Total: total}
	}

	maxPage := MaxPage(total, q.PageSize)
	page := min(max(q.Page, 0), maxPage)
	start := min(page*q.PageSize, total)
	end := min(start+q.PageSize, total)

	return View{
		Items:   filtered[start:end:end],
		Total:   total,
		Page:    page,
		MaxPage: maxPage,
	}
}

func filterItems(items []Item, text, displayKey string) []Item {
	needle := strings.TrimSpace(text)
	if needle == "" || displayKey == "" {
		return slices.Clone(items)
	}

	folder := cases.Fold()
	needle = folder.String(needle)

	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.Contains(folder.String(displayString(it[displayKey])), needle) {
			out = append(out, it)
		}
	}
	return out
}

func displayString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// compareValues orders numbers numerically, missing values first, everything else by collation
func compareValues(col *collate.Collator, a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			return cmp.Compare(fa, fb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}

	return col.CompareString(displayString(a), displayString(b))
}
