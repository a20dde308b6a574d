package collection

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// persistTimeout bounds a fallback save triggered by an optimistic edit
const persistTimeout = 5 * time.Second

// Source tells where the items of a LocalView came from
type Source int

const (
	// SourceNone means nothing was loaded yet
	SourceNone Source = iota
	// SourceFallback is the locally persisted copy, used only while nothing better is available
	SourceFallback
	// SourceFetched is the last successful full fetch
	SourceFetched
	// SourceAuthoritative is a set supplied by the owning component; it wins over everything else
	SourceAuthoritative
)

// String returns the source name
func (s Source) String() string {
	switch s {
	case SourceFallback:
		return "fallback"
	case SourceFetched:
		return "fetched"
	case SourceAuthoritative:
		return "authoritative"
	default:
		return "none"
	}
}

// FallbackCache persists a full collection for degraded-mode reads.
// Load returns nil items when nothing was saved yet.
type FallbackCache interface {
	Load(ctx context.Context) ([]Item, error)
	Save(ctx context.Context, items []Item) error
}

// LocalViewOption configures a LocalView
type LocalViewOption func(*LocalView)

// WithFallbackCache sets the persisted fallback copy
func WithFallbackCache(cache FallbackCache) LocalViewOption {
	return func(v *LocalView) {
		v.cache = cache
	}
}

// WithDeriveOptions sets the display key and locale
func WithDeriveOptions(opts DeriveOptions) LocalViewOption {
	return func(v *LocalView) {
		v.opts = opts
	}
}

// WithLocalPageSize sets the page size
func WithLocalPageSize(size int) LocalViewOption {
	return func(v *LocalView) {
		if size > 0 {
			v.query.PageSize = size
		}
	}
}

// LocalView holds a whole collection and pages, filters and sorts it client side.
type LocalView struct {
	mu sync.Mutex
	// persistMu orders writes to the fallback cache
	persistMu sync.Mutex

	resource string
	backend  Backend
	cache    FallbackCache
	opts     DeriveOptions
	query    Query

	sets    map[Source][]Item
	seq     uint64
	loading bool
	errMsg  string

	changes chan struct{}
}

// NewLocalView creates a view over the full resource collection
func NewLocalView(resource string, backend Backend, opts ...LocalViewOption) *LocalView {
	v := &LocalView{
		resource: resource,
		backend:  backend,
		query:    Query{PageSize: DefaultPageSize, SortDirection: SortAsc},
		sets:     make(map[Source][]Item),
		changes:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Resource returns the collection name
func (v *LocalView) Resource() string {
	return v.resource
}

// SetAuthoritative installs the set supplied by the owning component. A nil set withdraws it.
func (v *LocalView) SetAuthoritative(items []Item) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if items == nil {
		delete(v.sets, SourceAuthoritative)
	} else {
		v.sets[SourceAuthoritative] = cloneItems(items)
	}
	v.clampLocked()
	v.notify()
}

// Load fetches the whole collection and persists it to the fallback cache.
// When the fetch fails and a cached copy exists, the cached copy is served and nil is returned.
func (v *LocalView) Load(ctx context.Context) error {
	v.mu.Lock()
	v.seq++
	seq := v.seq
	v.loading = true
	v.notify()
	v.mu.Unlock()

	items, err := v.fetch(ctx)
	if err == nil {
		v.mu.Lock()
		current := seq == v.seq
		if current {
			v.sets[SourceFetched] = items
			v.loading = false
			v.errMsg = ""
			v.clampLocked()
			v.notify()
		}
		v.mu.Unlock()

		if current {
			v.persist(ctx, items)
		}
		return nil
	}

	cached := v.loadFallback(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq {
		return nil
	}
	v.loading = false
	if cached != nil {
		slog.Warn("Serving cached collection after fetch failure", "resource", v.resource, "error", err)
		v.sets[SourceFallback] = cached
		v.errMsg = ""
		v.clampLocked()
		v.notify()
		return nil
	}
	v.errMsg = UserMessage(err)
	v.notify()
	return err
}

// Refresh reloads the collection
func (v *LocalView) Refresh(ctx context.Context) error {
	return v.Load(ctx)
}

func (v *LocalView) fetch(ctx context.Context) ([]Item, error) {
	body, err := v.backend.List(ctx, Query{}, nil)
	if err != nil {
		return nil, Classify(err)
	}
	page, _, err := NormalizePage(body)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (v *LocalView) loadFallback(ctx context.Context) []Item {
	if v.cache == nil {
		return nil
	}
	items, err := v.cache.Load(ctx)
	if err != nil {
		slog.Debug("No usable fallback copy", "resource", v.resource, "error", err)
		return nil
	}
	// nil means nothing was ever saved; a saved empty collection is non-nil
	return items
}

func (v *LocalView) persist(ctx context.Context, items []Item) {
	if v.cache == nil {
		return
	}
	if err := v.cache.Save(ctx, items); err != nil {
		slog.Warn("Failed to persist fallback copy", "resource", v.resource, "error", err)
	}
}

// Source returns where the visible items come from
func (v *LocalView) Source() Source {
	v.mu.Lock()
	defer v.mu.Unlock()
	src, _ := v.activeLocked()
	return src
}

// Items returns a copy of the active full set
func (v *LocalView) Items() []Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, items := v.activeLocked()
	return cloneItems(items)
}

// SetQuery merges patch with the same page reset and clamp rules as Store.SetQuery
func (v *LocalView) SetQuery(_ context.Context, patch QueryPatch) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	next, _ := patch.apply(v.query)
	if next == v.query {
		return nil
	}
	v.query = next
	v.clampLocked()
	v.notify()
	return nil
}

// View derives the visible page
func (v *LocalView) View() View {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, items := v.activeLocked()
	return Derive(items, v.query, v.opts)
}

// Snapshot returns the visible page in the same shape as Store.Snapshot
func (v *LocalView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, items := v.activeLocked()
	view := Derive(items, v.query, v.opts)
	return Snapshot{
		Resource: v.resource,
		Query:    v.query,
		Items:    cloneItems(view.Items),
		Total:    view.Total,
		MaxPage:  view.MaxPage,
		Loading:  v.loading,
		Error:    v.errMsg,
	}
}

// Changes signals after state changes
func (v *LocalView) Changes() <-chan struct{} {
	return v.changes
}

// Lookup finds id in the active set
func (v *LocalView) Lookup(id ID) (Item, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	src, items := v.activeLocked()
	if i := indexOfID(items, id); i >= 0 {
		return v.sets[src][i].Clone(), true
	}
	return nil, false
}

// PatchItem merges partial into id in the active set
func (v *LocalView) PatchItem(id ID, partial Item) bool {
	v.mu.Lock()
	src, items := v.activeLocked()
	i := indexOfID(items, id)
	if i < 0 {
		v.mu.Unlock()
		return false
	}
	items = slices.Clone(items)
	items[i] = items[i].Merge(partial)
	v.sets[src] = items
	v.notify()
	v.mu.Unlock()

	v.persistChange(src)
	return true
}

// RemoveItem drops at most one item with identity id from the active set
func (v *LocalView) RemoveItem(id ID) bool {
	v.mu.Lock()
	src, items := v.activeLocked()
	i := indexOfID(items, id)
	if i < 0 {
		v.mu.Unlock()
		return false
	}
	items = slices.Delete(slices.Clone(items), i, i+1)
	v.sets[src] = items
	v.clampLocked()
	v.notify()
	v.mu.Unlock()

	v.persistChange(src)
	return true
}

// InsertItem adds item to the active set at position (InsertAtEnd appends)
func (v *LocalView) InsertItem(item Item, position int) {
	v.mu.Lock()
	src, items := v.activeLocked()
	if src == SourceNone {
		src = SourceFetched
	}
	items = slices.Clone(items)
	if position == InsertAtEnd || position >= len(items) {
		items = append(items, item.Clone())
	} else {
		items = slices.Insert(items, max(position, 0), item.Clone())
	}
	v.sets[src] = items
	v.notify()
	v.mu.Unlock()

	v.persistChange(src)
}

// persistChange keeps the fallback copy in step with optimistic edits of the fetched set.
// The authoritative and fallback sets are not written back. Saves are serialized and always
// write the latest fetched set, so concurrent edits cannot leave an older copy behind.
func (v *LocalView) persistChange(src Source) {
	if src != SourceFetched || v.cache == nil {
		return
	}
	v.persistMu.Lock()
	defer v.persistMu.Unlock()

	v.mu.Lock()
	items, ok := v.sets[SourceFetched]
	v.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	v.persist(ctx, items)
}

// activeLocked applies the precedence authoritative > fetched > fallback
func (v *LocalView) activeLocked() (Source, []Item) {
	for _, src := range []Source{SourceAuthoritative, SourceFetched, SourceFallback} {
		if items, ok := v.sets[src]; ok {
			return src, items
		}
	}
	return SourceNone, nil
}

func (v *LocalView) clampLocked() {
	_, items := v.activeLocked()
	total := len(filterItems(items, v.query.FilterText, v.opts.DisplayKey))
	v.query.Page = min(v.query.Page, MaxPage(total, v.query.PageSize))
}

func (v *LocalView) notify() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

func indexOfID(items []Item, id ID) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(items, func(it Item) bool {
		got, ok := it.ID()
		return ok && got == id
	})
}
