package collection

import (
	"context"
	"net/url"
)

//go:generate mockgen -destination=mocks/mock_backend.go -package=mocks -source=backend.go Backend

// Backend is the REST contract of one collection.
// A zero Query passed to List asks for the whole collection.
type Backend interface {
	List(ctx context.Context, q Query, extra url.Values) ([]byte, error)
	Create(ctx context.Context, payload Item, mutationID string) ([]byte, error)
	Update(ctx context.Context, id ID, payload Item, mutationID string) ([]byte, error)
	Delete(ctx context.Context, id ID, mutationID string) error
	// Upload sends payload and files as a multipart form; an empty id creates, otherwise it updates id
	Upload(ctx context.Context, id ID, payload Item, files []File, mutationID string) ([]byte, error)
}

// Controller is what a screen drives: a query, its visible state and a refresh
type Controller interface {
	Snapshot() Snapshot
	Changes() <-chan struct{}
	SetQuery(ctx context.Context, patch QueryPatch) error
	Refresh(ctx context.Context) error
}
