// Package dashboard builds the CRM dashboard: one total per resource, fetched concurrently.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/backoffice-console/internal/collection"
)

// DefaultConcurrency bounds the number of resources fetched at once
const DefaultConcurrency = 4

// Lister is the part of the backend contract the dashboard needs
type Lister interface {
	List(ctx context.Context, q collection.Query, extra url.Values) ([]byte, error)
}

// Source is one resource shown on the dashboard
type Source struct {
	Resource string
	Title    string
	Backend  Lister
	Params   url.Values
}

// Summary is the dashboard line of one resource. Err is set when the resource could not be counted.
type Summary struct {
	Resource string
	Title    string
	Total    int
	Err      error
}

// Message renders the failure shown next to the resource
func (s Summary) Message() string {
	if s.Err == nil {
		return ""
	}
	return collection.UserMessage(s.Err)
}

// Option configures Summarize
type Option func(*options)

type options struct {
	concurrency int
}

// WithConcurrency bounds the number of concurrent fetches
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// totalQuery asks for the first page holding a single item; the envelope total answers the count
var totalQuery = collection.Query{Page: 0, PageSize: 1, SortDirection: collection.SortAsc}

// Summarize counts every source. Failures of single resources are reported on their Summary and
// never abort the others; only a cancelled ctx fails the whole call.
func Summarize(ctx context.Context, sources []Source, opts ...Option) ([]Summary, error) {
	o := options{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}

	out := make([]Summary, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, src := range sources {
		out[i] = Summary{Resource: src.Resource, Title: src.Title}
		if out[i].Title == "" {
			out[i].Title = src.Resource
		}
		g.Go(func() error {
			total, err := count(gctx, src)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("Dashboard count failed", "resource", src.Resource, "error", err)
				out[i].Err = err
				return nil
			}
			out[i].Total = total
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return out, nil
}

func count(ctx context.Context, src Source) (int, error) {
	if src.Backend == nil {
		return 0, errors.New("no backend configured")
	}
	body, err := src.Backend.List(ctx, totalQuery, src.Params)
	if err != nil {
		return 0, collection.Classify(err)
	}
	page, shape, err := collection.NormalizePage(body)
	if err != nil {
		return 0, err
	}
	if shape == collection.ShapeEnvelope {
		return page.Total, nil
	}

	// bare arrays carry no total; count the whole collection instead
	body, err = src.Backend.List(ctx, collection.Query{}, src.Params)
	if err != nil {
		return 0, collection.Classify(err)
	}
	if page, _, err = collection.NormalizePage(body); err != nil {
		return 0, err
	}
	return page.Total, nil
}
