package collection_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/collection/mocks"
)

type memoryCache struct {
	mu    sync.Mutex
	items []collection.Item
	saved int
}

func (m *memoryCache) Load(context.Context) ([]collection.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		return nil, errors.New("not found")
	}
	return m.items, nil
}

func (m *memoryCache) Save(_ context.Context, items []collection.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
	m.saved++
	return nil
}

func newLocalView(t *testing.T, cache collection.FallbackCache) (*collection.LocalView, *mocks.MockBackend) {
	t.Helper()
	backend := mocks.NewMockBackend(gomock.NewController(t))
	opts := []collection.LocalViewOption{
		collection.WithDeriveOptions(collection.DeriveOptions{DisplayKey: "name"}),
		collection.WithLocalPageSize(2),
	}
	if cache != nil {
		opts = append(opts, collection.WithFallbackCache(cache))
	}
	return collection.NewLocalView("menus", backend, opts...), backend
}

func TestLocalView_LoadFetchesWholeCollection(t *testing.T) {
	t.Parallel()

	cache := &memoryCache{}
	view, backend := newLocalView(t, cache)
	backend.EXPECT().List(gomock.Any(), collection.Query{}, gomock.Nil()).
		Return([]byte(`[{"id":1,"name":"Breakfast"},{"id":2,"name":"Lunch"},{"id":3,"name":"Dinner"}]`), nil)

	require.NoError(t, view.Load(context.Background()))
	assert.Equal(t, collection.SourceFetched, view.Source())
	assert.Equal(t, 1, cache.saved)

	snap := view.Snapshot()
	assert.Equal(t, 3, snap.Total)
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, 1, snap.MaxPage)
}

func TestLocalView_FallsBackToCache(t *testing.T) {
	t.Parallel()

	cache := &memoryCache{items: named("Cached")}
	view, backend := newLocalView(t, cache)
	backend.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("offline"))

	require.NoError(t, view.Load(context.Background()))
	assert.Equal(t, collection.SourceFallback, view.Source())
	assert.Equal(t, []string{"Cached"}, names(view.Items()))
	assert.Empty(t, view.Snapshot().Error)
}

func TestLocalView_FailureWithoutCache(t *testing.T) {
	t.Parallel()

	view, backend := newLocalView(t, &memoryCache{})
	backend.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("offline"))

	err := view.Load(context.Background())
	var transport *collection.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, collection.SourceNone, view.Source())
	assert.Equal(t, "request failed: offline", view.Snapshot().Error)
}

func TestLocalView_Precedence(t *testing.T) {
	t.Parallel()

	cache := &memoryCache{items: named("Cached")}
	view, backend := newLocalView(t, cache)

	gomock.InOrder(
		backend.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("offline")),
		backend.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte(`[{"id":9,"name":"Fetched"}]`), nil),
	)

	require.NoError(t, view.Load(context.Background()))
	assert.Equal(t, collection.SourceFallback, view.Source())

	require.NoError(t, view.Load(context.Background()))
	assert.Equal(t, collection.SourceFetched, view.Source())

	view.SetAuthoritative(named("Parent"))
	assert.Equal(t, collection.SourceAuthoritative, view.Source())
	assert.Equal(t, []string{"Parent"}, names(view.Items()))

	view.SetAuthoritative(nil)
	assert.Equal(t, []string{"Fetched"}, names(view.Items()))
}

func TestLocalView_QueryAndMutations(t *testing.T) {
	t.Parallel()

	view, _ := newLocalView(t, nil)
	view.SetAuthoritative(named("Breakfast", "brunch", "Lunch", "Dinner"))
	ctx := context.Background()

	require.NoError(t, view.SetQuery(ctx, collection.PagePatch(1)))
	assert.Equal(t, 1, view.Snapshot().Query.Page)

	require.NoError(t, view.SetQuery(ctx, collection.FilterPatch("BR")))
	snap := view.Snapshot()
	assert.Equal(t, 0, snap.Query.Page)
	assert.Equal(t, []string{"Breakfast", "brunch"}, names(snap.Items))

	require.NoError(t, view.SetQuery(ctx, collection.SortPatch("name", collection.SortDesc)))
	assert.Equal(t, []string{"brunch", "Breakfast"}, names(view.Snapshot().Items))

	assert.True(t, view.RemoveItem("2"))
	assert.False(t, view.RemoveItem("2"))
	assert.Equal(t, []string{"Breakfast"}, names(view.Snapshot().Items))

	view.InsertItem(collection.Item{"id": float64(7), "name": "Brisket"}, 0)
	assert.True(t, view.PatchItem("7", collection.Item{"name": "Bread"}))
	got, ok := view.Lookup("7")
	require.True(t, ok)
	assert.Equal(t, "Bread", got["name"])
	assert.Equal(t, 2, view.Snapshot().Total)
}

func TestLocalView_StaysUsableAsCoordinatorTarget(t *testing.T) {
	t.Parallel()

	view, backend := newLocalView(t, nil)
	view.SetAuthoritative(named("Breakfast"))

	backend.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte(`{"id":5,"name":"Supper"}`), nil)
	coord := collection.NewCoordinator(view, backend, collection.WithNewestFirst(true))

	_, err := coord.Apply(context.Background(), collection.NewCreateIntent(collection.Item{"name": "Supper"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Supper", "Breakfast"}, names(view.Items()))
}

func TestLocalView_OptimisticEditsReachFallbackCache(t *testing.T) {
	t.Parallel()

	cache := &memoryCache{}
	view, backend := newLocalView(t, cache)
	backend.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]byte(`[{"id":1,"name":"Breakfast"},{"id":2,"name":"Lunch"}]`), nil)
	require.NoError(t, view.Load(context.Background()))
	require.Equal(t, 1, cache.saved)

	view.InsertItem(collection.Item{"id": 3, "name": "Dinner"}, 0)
	assert.Equal(t, []string{"Dinner", "Breakfast", "Lunch"}, names(cache.items))

	require.True(t, view.PatchItem("1", collection.Item{"name": "Brunch"}))
	assert.Equal(t, []string{"Dinner", "Brunch", "Lunch"}, names(cache.items))

	require.True(t, view.RemoveItem("2"))
	assert.Equal(t, []string{"Dinner", "Brunch"}, names(cache.items))
	assert.Equal(t, 4, cache.saved)

	assert.False(t, view.RemoveItem("404"))
	assert.Equal(t, 4, cache.saved, "a miss writes nothing")
}

func TestLocalView_FallbackEditsAreNotWrittenBack(t *testing.T) {
	t.Parallel()

	cache := &memoryCache{items: named("Cached")}
	view, backend := newLocalView(t, cache)
	backend.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("offline"))
	require.NoError(t, view.Load(context.Background()))

	view.InsertItem(collection.Item{"id": 5, "name": "Offline"}, collection.InsertAtEnd)
	assert.Equal(t, []string{"Cached", "Offline"}, names(view.Items()))
	assert.Zero(t, cache.saved)
	assert.Equal(t, []string{"Cached"}, names(cache.items))
}
