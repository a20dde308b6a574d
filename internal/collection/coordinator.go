package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/backoffice-console/internal/events"
	"github.com/stacklok/backoffice-console/internal/otel"
	"github.com/stacklok/backoffice-console/internal/telemetry"
)

// createSlot is the in-flight key shared by all creates of one collection
const createSlot ID = "\x00create"

// Validator checks a payload before it is sent
type Validator interface {
	Validate(resource string, payload Item) error
}

// RefreshScheduler schedules a background reconciling refresh
type RefreshScheduler interface {
	Schedule(reason string)
}

// Notification reports the outcome of a mutation to the user
type Notification struct {
	Resource string
	Kind     Kind
	ID       ID
	Err      error
	Message  string
}

// Notifier surfaces mutation outcomes
type Notifier interface {
	Notify(n Notification)
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithValidator checks payloads before create and update
func WithValidator(v Validator) CoordinatorOption {
	return func(c *Coordinator) {
		c.validator = v
	}
}

// WithRefreshScheduler schedules a reconcile after every successful mutation
func WithRefreshScheduler(s RefreshScheduler) CoordinatorOption {
	return func(c *Coordinator) {
		c.scheduler = s
	}
}

// WithPublisher publishes <singular>Created after every create
func WithPublisher(p events.Publisher, singular string) CoordinatorOption {
	return func(c *Coordinator) {
		c.publisher = p
		c.createdTopic = events.CreatedTopic(singular)
	}
}

// WithNotifier reports outcomes to the user
func WithNotifier(n Notifier) CoordinatorOption {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithNewestFirst inserts created records at the front of the page
func WithNewestFirst(newestFirst bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.newestFirst = newestFirst
	}
}

// WithMutationMetrics sets the metrics recorder
func WithMutationMetrics(m *telemetry.CollectionMetrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithMutationTracer sets the tracer for mutation spans
func WithMutationTracer(t trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

// Coordinator applies mutation intents against the backend and patches the target on success.
// At most one mutation per record identity is in flight at a time.
type Coordinator struct {
	target       Target
	backend      Backend
	validator    Validator
	scheduler    RefreshScheduler
	publisher    events.Publisher
	createdTopic events.Topic
	notifier     Notifier
	newestFirst  bool
	metrics      *telemetry.CollectionMetrics
	tracer       trace.Tracer

	mu       sync.Mutex
	inFlight map[ID]Kind
}

// NewCoordinator creates a coordinator for target
func NewCoordinator(target Target, backend Backend, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		target:   target,
		backend:  backend,
		inFlight: make(map[ID]Kind),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InFlight reports whether a mutation for id is running. The empty id asks about creates.
func (c *Coordinator) InFlight(id ID) bool {
	if id == "" {
		id = createSlot
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[id]
	return ok
}

// Busy reports whether any mutation is running
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight) > 0
}

// Apply performs intent and returns the resulting record (nil for deletes).
// Failures leave the target untouched and are returned classified.
func (c *Coordinator) Apply(ctx context.Context, intent *Intent) (Item, error) {
	return c.apply(ctx, intent, nil)
}

// Upload performs a create or update intent as a multipart submission carrying files
func (c *Coordinator) Upload(ctx context.Context, intent *Intent, files []File) (Item, error) {
	if files == nil {
		files = []File{}
	}
	return c.apply(ctx, intent, files)
}

// Import submits a file of records as one bulk create and returns how many the backend took.
// Records are not validated one by one; the page is refreshed afterwards instead of patched.
func (c *Coordinator) Import(ctx context.Context, file File) (int, error) {
	resource := c.target.Resource()
	mutationID := uuid.NewString()
	ctx, span := otel.StartSpan(ctx, c.tracer, "collection.Import",
		trace.WithAttributes(
			otel.AttrResource.String(resource),
			otel.AttrMutationKind.String(string(KindCreate)),
			otel.AttrMutationID.String(mutationID),
		),
	)
	defer span.End()

	n, err := c.importFile(ctx, file, mutationID)
	c.metrics.RecordMutation(ctx, resource, string(KindCreate), err == nil)
	if err != nil {
		err = Classify(err)
		otel.RecordError(span, err)
		slog.Warn("Import failed", "resource", resource, "file", file.Name, "mutation_id", mutationID, "error", err)
		c.notify(Notification{Resource: resource, Kind: KindCreate, Err: err, Message: UserMessage(err)})
		return 0, err
	}

	slog.Info("Import applied", "resource", resource, "file", file.Name, "records", n, "mutation_id", mutationID)
	c.notify(Notification{Resource: resource, Kind: KindCreate, Message: fmt.Sprintf("imported %d", n)})
	if c.scheduler != nil {
		c.scheduler.Schedule("import")
	}
	return n, nil
}

func (c *Coordinator) importFile(ctx context.Context, file File, mutationID string) (int, error) {
	if len(file.Data) == 0 {
		return 0, &ValidationError{Resource: c.target.Resource(), Fields: []FieldError{{Field: file.Field, Message: "import file is empty"}}}
	}
	release, err := c.acquire(createSlot, KindCreate)
	if err != nil {
		return 0, err
	}
	defer release()

	body, err := c.backend.Upload(ctx, "", Item{}, []File{file}, mutationID)
	if err != nil {
		return 0, err
	}
	return c.importedCount(ctx, body), nil
}

// importedCount reads the "imported" count of a bulk answer, which may come without a record.
// A bare record without a count stands for one import.
func (c *Coordinator) importedCount(ctx context.Context, body []byte) int {
	record := DecodeRecord(body)
	n := 0
	if imported := importedField(body); imported.Exists() {
		n = max(int(imported.Int()), 0)
	} else if record != nil {
		n = 1
	}
	if n == 0 {
		return 0
	}
	if record == nil {
		record = Item{"imported": float64(n)}
	}
	c.publishCreated(ctx, record)
	return n
}

func importedField(body []byte) gjson.Result {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}
	}
	if r := gjson.GetBytes(body, "imported"); r.Exists() {
		return r
	}
	return gjson.GetBytes(body, "data.imported")
}

func (c *Coordinator) apply(ctx context.Context, intent *Intent, files []File) (Item, error) {
	if err := intent.consume(); err != nil {
		return nil, err
	}

	resource := c.target.Resource()
	ctx, span := otel.StartSpan(ctx, c.tracer, "collection.Apply",
		trace.WithAttributes(
			otel.AttrResource.String(resource),
			otel.AttrMutationKind.String(string(intent.Kind)),
			otel.AttrMutationID.String(intent.MutationID),
			otel.AttrItemID.String(string(intent.TargetID)),
		),
	)
	defer span.End()

	var (
		record Item
		err    error
	)
	switch intent.Kind {
	case KindCreate:
		record, err = c.create(ctx, intent, files)
	case KindUpdate:
		record, err = c.update(ctx, intent, files)
	case KindDelete:
		if files != nil {
			err = &ValidationError{Resource: resource, Fields: []FieldError{{Message: "files cannot be sent with a delete"}}}
			break
		}
		err = c.remove(ctx, intent)
	default:
		err = &ValidationError{Resource: resource, Fields: []FieldError{{Field: "kind", Message: "unknown mutation kind " + string(intent.Kind)}}}
	}

	c.metrics.RecordMutation(ctx, resource, string(intent.Kind), err == nil)
	if err != nil {
		err = Classify(err)
		otel.RecordError(span, err)
		slog.Warn("Mutation failed",
			"resource", resource,
			"kind", intent.Kind,
			"id", intent.TargetID,
			"mutation_id", intent.MutationID,
			"error", err)
		c.notify(Notification{Resource: resource, Kind: intent.Kind, ID: intent.TargetID, Err: err, Message: UserMessage(err)})
		return nil, err
	}

	id, _ := record.ID()
	if intent.Kind == KindDelete {
		id = intent.TargetID
	}
	slog.Info("Mutation applied",
		"resource", resource,
		"kind", intent.Kind,
		"id", id,
		"mutation_id", intent.MutationID)
	c.notify(Notification{Resource: resource, Kind: intent.Kind, ID: id, Message: successMessage(intent.Kind)})

	if c.scheduler != nil {
		c.scheduler.Schedule(string(intent.Kind))
	}
	return record, nil
}

func (c *Coordinator) create(ctx context.Context, intent *Intent, files []File) (Item, error) {
	payload := intent.Payload.Clone()
	if payload == nil {
		payload = Item{}
	}
	if err := c.validate(payload); err != nil {
		return nil, err
	}

	release, err := c.acquire(createSlot, KindCreate)
	if err != nil {
		return nil, err
	}
	defer release()

	var body []byte
	if files != nil {
		body, err = c.backend.Upload(ctx, "", payload, files, intent.MutationID)
	} else {
		body, err = c.backend.Create(ctx, payload, intent.MutationID)
	}
	if err != nil {
		return nil, err
	}

	record := DecodeRecord(body)
	if record == nil {
		slog.Debug("Create returned no record, inserting submitted payload", "resource", c.target.Resource())
		record = payload
	}

	position := InsertAtEnd
	if c.newestFirst {
		position = 0
	}
	c.target.InsertItem(record, position)
	c.publishCreated(ctx, record)
	return record, nil
}

func (c *Coordinator) update(ctx context.Context, intent *Intent, files []File) (Item, error) {
	if intent.TargetID == "" {
		return nil, c.missingID()
	}

	existing, found := c.target.Lookup(intent.TargetID)
	candidate := intent.Payload.Clone()
	if found {
		candidate = existing.Merge(intent.Payload)
	}
	if err := c.validate(candidate); err != nil {
		return nil, err
	}

	release, err := c.acquire(intent.TargetID, KindUpdate)
	if err != nil {
		return nil, err
	}
	defer release()

	var body []byte
	if files != nil {
		body, err = c.backend.Upload(ctx, intent.TargetID, intent.Payload, files, intent.MutationID)
	} else {
		body, err = c.backend.Update(ctx, intent.TargetID, intent.Payload, intent.MutationID)
	}
	if err != nil {
		return nil, err
	}

	patch := DecodeRecord(body)
	if patch == nil {
		// no record in the answer; merge what was submitted
		patch = intent.Payload.Clone()
	}
	c.target.PatchItem(intent.TargetID, patch)

	if found {
		return existing.Merge(patch), nil
	}
	return patch, nil
}

func (c *Coordinator) remove(ctx context.Context, intent *Intent) error {
	if intent.TargetID == "" {
		return c.missingID()
	}
	if !intent.Confirmed {
		return ErrNotConfirmed
	}

	release, err := c.acquire(intent.TargetID, KindDelete)
	if err != nil {
		return err
	}
	defer release()

	if err := c.backend.Delete(ctx, intent.TargetID, intent.MutationID); err != nil {
		return err
	}
	c.target.RemoveItem(intent.TargetID)
	return nil
}

func (c *Coordinator) acquire(id ID, kind Kind) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inFlight[id]; busy {
		return nil, ErrMutationInFlight
	}
	c.inFlight[id] = kind
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.inFlight, id)
	}, nil
}

func (c *Coordinator) validate(payload Item) error {
	if c.validator == nil {
		return nil
	}
	return c.validator.Validate(c.target.Resource(), payload)
}

func (c *Coordinator) missingID() error {
	return &ValidationError{
		Resource: c.target.Resource(),
		Fields:   []FieldError{{Field: IDField, Message: "target id is required"}},
	}
}

func (c *Coordinator) publishCreated(ctx context.Context, record Item) {
	if c.publisher == nil {
		return
	}
	id, _ := record.ID()
	evt := events.NewEvent(c.createdTopic, c.target.Resource(), string(id), record.Clone())
	if err := c.publisher.Publish(ctx, evt); err != nil {
		slog.Warn("Failed to publish event", "topic", c.createdTopic, "error", err)
	}
}

func (c *Coordinator) notify(n Notification) {
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
}

func successMessage(kind Kind) string {
	switch kind {
	case KindCreate:
		return "created"
	case KindUpdate:
		return "updated"
	case KindDelete:
		return "deleted"
	default:
		return "done"
	}
}
