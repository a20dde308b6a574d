package localstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stacklok/backoffice-console/internal/collection"
)

// MenuItemsKey is the key under which the menu screen keeps its fallback copy
const MenuItemsKey = "menuItems"

// CollectionCache stores one collection as a JSON array under a fixed key
type CollectionCache struct {
	store Store
	key   string
}

var _ collection.FallbackCache = (*CollectionCache)(nil)

// NewCollectionCache binds key in store
func NewCollectionCache(store Store, key string) *CollectionCache {
	return &CollectionCache{store: store, key: key}
}

// Key returns the storage key
func (c *CollectionCache) Key() string {
	return c.key
}

// Load returns the persisted items. A missing key yields nil items and no error.
func (c *CollectionCache) Load(ctx context.Context) ([]collection.Item, error) {
	data, err := c.store.Get(ctx, c.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []collection.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cached '%s': %w", c.key, err)
	}
	return items, nil
}

// Save replaces the persisted items
func (c *CollectionCache) Save(ctx context.Context, items []collection.Item) error {
	if items == nil {
		items = []collection.Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode cached '%s': %w", c.key, err)
	}
	return c.store.Put(ctx, c.key, data)
}
