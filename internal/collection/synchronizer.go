package collection

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/backoffice-console/internal/otel"
	"github.com/stacklok/backoffice-console/internal/telemetry"
)

// SyncOption configures a Synchronizer
type SyncOption func(*Synchronizer)

// WithExtraParams adds screen-specific query parameters (e.g. category_id) to every fetch
func WithExtraParams(params url.Values) SyncOption {
	return func(s *Synchronizer) {
		s.extra = maps.Clone(params)
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *telemetry.CollectionMetrics) SyncOption {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// WithTracer sets the tracer for fetch spans
func WithTracer(t trace.Tracer) SyncOption {
	return func(s *Synchronizer) {
		s.tracer = t
	}
}

// Synchronizer keeps a Store in step with its query. Each Refresh issues one fetch;
// a fetch that is overtaken by a newer one is dropped when it returns.
type Synchronizer struct {
	store   *Store
	backend Backend
	extra   url.Values
	metrics *telemetry.CollectionMetrics
	tracer  trace.Tracer
}

// NewSynchronizer creates a synchronizer for store
func NewSynchronizer(store *Store, backend Backend, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		store:   store,
		backend: backend,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the synchronized store
func (s *Synchronizer) Store() *Store {
	return s.store
}

// Snapshot returns the store state
func (s *Synchronizer) Snapshot() Snapshot {
	return s.store.Snapshot()
}

// Changes forwards the store change signal
func (s *Synchronizer) Changes() <-chan struct{} {
	return s.store.Changes()
}

// SetQuery merges patch into the store query and fetches when it changed
func (s *Synchronizer) SetQuery(ctx context.Context, patch QueryPatch) error {
	if !s.store.SetQuery(patch) {
		return nil
	}
	return s.Refresh(ctx)
}

// Refresh fetches the page for the current query.
// A superseded result is dropped silently. A failure leaves the items in place, records the
// user message on the store and is returned classified.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.refresh(ctx, true)
}

func (s *Synchronizer) refresh(ctx context.Context, refetchOnClamp bool) error {
	seq, q := s.store.BeginFetch()
	resource := s.store.Resource()

	ctx, span := otel.StartSpan(ctx, s.tracer, "collection.Refresh",
		trace.WithAttributes(
			otel.AttrResource.String(resource),
			otel.AttrPage.Int(q.Page),
			otel.AttrPageSize.Int(q.PageSize),
			otel.AttrHasFilter.Bool(q.FilterText != ""),
			otel.AttrSequence.Int64(int64(seq)),
		),
	)
	defer span.End()

	start := time.Now()
	body, err := s.backend.List(ctx, q, s.extra)
	s.metrics.RecordFetch(ctx, resource, time.Since(start), err == nil)

	if err != nil {
		cerr := Classify(err)
		if ferr := s.store.FailFetch(seq, UserMessage(cerr)); errors.Is(ferr, ErrStaleResponse) {
			s.discard(ctx, span, resource, seq)
			return nil
		}
		otel.RecordError(span, cerr)
		slog.Warn("Collection fetch failed", "resource", resource, "page", q.Page, "error", cerr)
		return cerr
	}

	page, shape, err := NormalizePage(body)
	if err != nil {
		// degrade to an empty page
		slog.Warn("Collection response has unexpected shape",
			"resource", resource,
			"error", err,
			"bytes", len(body))
		page = Page{}
	}

	clamped, err := s.store.ReplacePage(seq, page)
	switch {
	case errors.Is(err, ErrStaleResponse):
		s.discard(ctx, span, resource, seq)
		return nil
	case err != nil:
		_ = s.store.FailFetch(seq, UserMessage(err))
		otel.RecordError(span, err)
		return err
	}

	span.SetAttributes(
		otel.AttrResultCount.Int(len(page.Items)),
		otel.AttrResultTotal.Int(page.Total),
	)
	s.metrics.RecordTotal(ctx, resource, page.Total)
	slog.Debug("Collection page applied",
		"resource", resource,
		"shape", shape.String(),
		"items", len(page.Items),
		"total", page.Total)

	if clamped && refetchOnClamp {
		return s.refresh(ctx, false)
	}
	return nil
}

func (s *Synchronizer) discard(ctx context.Context, span trace.Span, resource string, seq uint64) {
	otel.Discarded(span, "stale")
	s.metrics.RecordStaleDiscard(ctx, resource)
	slog.Debug("Discarded stale collection response", "resource", resource, "seq", seq)
}
