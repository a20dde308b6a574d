package mockapi

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/stacklok/backoffice-console/internal/collection"
)

var errNotFound = errors.New("record not found")

// listParams is a decoded list request
type listParams struct {
	page   int // 1-based, zero when the whole collection is asked for
	limit  int
	filter string
	sort   string
	desc   bool
	match  map[string]string
}

// resourceStore keeps one collection in memory
type resourceStore struct {
	mu         sync.Mutex
	displayKey string
	items      []collection.Item
	nextID     int
}

func newResourceStore(displayKey string) *resourceStore {
	return &resourceStore{displayKey: displayKey, nextID: 1}
}

func (s *resourceStore) seed(items []collection.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		rec := it.Clone()
		if _, ok := rec.ID(); !ok {
			rec[collection.IDField] = s.nextID
		}
		if n, err := strconv.Atoi(fmt.Sprint(rec[collection.IDField])); err == nil && n >= s.nextID {
			s.nextID = n + 1
		}
		s.items = append(s.items, rec)
	}
}

func (s *resourceStore) list(p listParams) ([]collection.Item, int) {
	s.mu.Lock()
	matched := make([]collection.Item, 0, len(s.items))
	filter := strings.ToLower(p.filter)
	for _, it := range s.items {
		if filter != "" && !strings.Contains(strings.ToLower(fmt.Sprint(it[s.displayKey])), filter) {
			continue
		}
		if !matchesAll(it, p.match) {
			continue
		}
		matched = append(matched, it.Clone())
	}
	s.mu.Unlock()

	if p.sort != "" {
		slices.SortStableFunc(matched, func(a, b collection.Item) int {
			c := compareField(a[p.sort], b[p.sort])
			if p.desc {
				return -c
			}
			return c
		})
	}

	total := len(matched)
	if p.page <= 0 || p.limit <= 0 {
		return matched, total
	}
	start := (p.page - 1) * p.limit
	if start >= total {
		return []collection.Item{}, total
	}
	end := min(start+p.limit, total)
	return matched[start:end], total
}

func matchesAll(it collection.Item, match map[string]string) bool {
	for k, v := range match {
		if fmt.Sprint(it[k]) != v {
			return false
		}
	}
	return true
}

func compareField(a, b any) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return cmp.Compare(af, bf)
	}
	return strings.Compare(strings.ToLower(fmt.Sprint(a)), strings.ToLower(fmt.Sprint(b)))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func (s *resourceStore) get(id collection.ID) (collection.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, errNotFound
	}
	return s.items[i].Clone(), nil
}

func (s *resourceStore) create(rec collection.Item) collection.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec = rec.Clone()
	rec[collection.IDField] = s.nextID
	s.nextID++
	s.items = append(s.items, rec)
	return rec.Clone()
}

func (s *resourceStore) update(id collection.ID, patch collection.Item) (collection.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, errNotFound
	}
	patch = patch.Clone()
	delete(patch, collection.IDField)
	s.items[i] = s.items[i].Merge(patch)
	return s.items[i].Clone(), nil
}

func (s *resourceStore) delete(id collection.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return errNotFound
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

func (s *resourceStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *resourceStore) indexOf(id collection.ID) int {
	return slices.IndexFunc(s.items, func(it collection.Item) bool {
		got, ok := it.ID()
		return ok && got == id
	})
}
