package collection

import (
	"log/slog"
	"slices"
	"sync"
)

// InsertAtEnd appends an inserted item after the current page contents
const InsertAtEnd = -1

// Target receives the optimistic adjustments of the Coordinator.
// Both Store and LocalView implement it.
type Target interface {
	Resource() string
	Lookup(id ID) (Item, bool)
	PatchItem(id ID, partial Item) bool
	RemoveItem(id ID) bool
	InsertItem(item Item, position int)
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithPageSize sets the initial page size
func WithPageSize(size int) StoreOption {
	return func(s *Store) {
		if size > 0 {
			s.query.PageSize = size
		}
	}
}

// WithInitialQuery sets filter and sort before the first fetch
func WithInitialQuery(q Query) StoreOption {
	return func(s *Store) {
		size := s.query.PageSize
		s.query = q
		if s.query.PageSize <= 0 {
			s.query.PageSize = size
		}
		if s.query.SortDirection == "" {
			s.query.SortDirection = SortAsc
		}
	}
}

// Store owns the current page and query of one remote collection.
// Every method is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	resource   string
	query      Query
	items      []Item
	total      int
	totalKnown bool
	loading    bool
	errMsg     string

	// seq is the tag of the most recently issued fetch
	seq uint64

	changes chan struct{}
}

// NewStore creates an empty store for resource
func NewStore(resource string, opts ...StoreOption) *Store {
	s := &Store{
		resource: resource,
		query:    Query{PageSize: DefaultPageSize, SortDirection: SortAsc},
		changes:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resource returns the collection name
func (s *Store) Resource() string {
	return s.resource
}

// Query returns the query in effect
func (s *Store) Query() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// SetQuery merges patch into the query. Changing filter, sort or page size resets the page to 0;
// the page index is clamped against the last known total. Reports whether the query changed.
// A change invalidates the fetch in flight: its page belongs to the replaced query.
func (s *Store) SetQuery(patch QueryPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, _ := patch.apply(s.query)
	if s.totalKnown {
		next.Page = min(next.Page, MaxPage(s.total, next.PageSize))
	}
	if next == s.query {
		return false
	}
	s.query = next
	s.seq++
	s.notify()
	return true
}

// BeginFetch tags a new fetch and returns the tag with the query to send.
// Results of every earlier tag are discarded from now on.
func (s *Store) BeginFetch() (uint64, Query) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.loading = true
	s.notify()
	return s.seq, s.query
}

// ReplacePage applies the result of fetch seq. It returns ErrStaleResponse when a newer fetch
// was issued, and ErrPageOverflow (keeping the prior page) when the page is larger than the
// page size. clamped is true when the new total moved the page index, so the caller should fetch again.
func (s *Store) ReplacePage(seq uint64, page Page) (clamped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		return false, ErrStaleResponse
	}
	if len(page.Items) > s.query.PageSize {
		slog.Error("Rejected page larger than page size",
			"resource", s.resource,
			"items", len(page.Items),
			"page_size", s.query.PageSize)
		return false, ErrPageOverflow
	}

	s.items = cloneItems(page.Items)
	s.total = max(page.Total, 0)
	s.totalKnown = true
	s.loading = false
	s.errMsg = ""

	if limit := MaxPage(s.total, s.query.PageSize); s.query.Page > limit {
		s.query.Page = limit
		clamped = true
	}
	s.notify()
	return clamped, nil
}

// FailFetch records a failed fetch. Items are left untouched.
func (s *Store) FailFetch(seq uint64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		return ErrStaleResponse
	}
	s.loading = false
	s.errMsg = message
	s.notify()
	return nil
}

// SetLoading sets the loading flag
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	s.notify()
}

// SetError sets or clears the error message
func (s *Store) SetError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = message
	s.notify()
}

// Lookup returns a copy of the item with identity id on the current page
func (s *Store) Lookup(id ID) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return nil, false
}

// PatchItem merges partial into the item with identity id. The total is unchanged.
func (s *Store) PatchItem(id ID, partial Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items[i] = s.items[i].Merge(partial)
	s.notify()
	return true
}

// RemoveItem drops at most one item with identity id and decrements the total, never below 0.
// The total is decremented even when the item is not on the current page.
func (s *Store) RemoveItem(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = max(s.total-1, 0)
	i := s.indexOf(id)
	if i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
	}
	s.notify()
	return i >= 0
}

// InsertItem places item at position (InsertAtEnd appends) and increments the total.
// The page never grows beyond the page size: the last item falls off, and an append to a full
// page only counts the item.
func (s *Store) InsertItem(item Item, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.totalKnown = true
	defer s.notify()

	if position == InsertAtEnd || position >= len(s.items) {
		if len(s.items) < s.query.PageSize {
			s.items = append(s.items, item.Clone())
		}
		return
	}

	s.items = slices.Insert(s.items, max(position, 0), item.Clone())
	if len(s.items) > s.query.PageSize {
		s.items = s.items[:s.query.PageSize]
	}
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Resource: s.resource,
		Query:    s.query,
		Items:    cloneItems(s.items),
		Total:    s.total,
		MaxPage:  MaxPage(s.total, s.query.PageSize),
		Loading:  s.loading,
		Error:    s.errMsg,
	}
}

// Changes signals after state changes. Signals coalesce; read Snapshot after each one.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Store) indexOf(id ID) int {
	return indexOfID(s.items, id)
}
