// Package localstate provides small key/value stores that persist collection
// snapshots on the operator's machine, used as a fallback when the backend is
// unreachable.
package localstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no value is stored under the key
var ErrNotFound = errors.New("localstate: key not found")

// Store persists opaque values by key
type Store interface {
	// Get returns the stored value or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value stored under key
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any underlying connection
	Close() error
}

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Options selects and configures a Store implementation
type Options struct {
	Backend string
	// Path is the directory for the file store or the database file for sqlite
	Path string
	// Address, Password, DB and Prefix configure the redis store
	Address  string
	Password string
	DB       int
	Prefix   string
}

// Open builds the store named by opts.Backend. BackendNone returns a nil store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileStore(opts.Path)
	case BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Address:  opts.Address,
			Password: opts.Password,
			DB:       opts.DB,
			Prefix:   opts.Prefix,
		})
	case BackendSQLite:
		return NewSQLiteStore(ctx, opts.Path)
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown local state backend %q", opts.Backend)
	}
}
