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
	"github.com/stacklok/backoffice-console/internal/events"
	"github.com/stacklok/backoffice-console/internal/httpclient"
)

type recorder struct {
	mu            sync.Mutex
	notifications []collection.Notification
	schedules     []string
	published     []events.Event
}

func (r *recorder) Notify(n collection.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recorder) Schedule(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules = append(r.schedules, reason)
}

func (r *recorder) Publish(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, evt)
	return nil
}

type requireName struct{}

func (requireName) Validate(resource string, payload collection.Item) error {
	if name, _ := payload["name"].(string); name == "" {
		return &collection.ValidationError{Resource: resource, Fields: []collection.FieldError{{Field: "name", Message: "is required"}}}
	}
	return nil
}

func newCoordinator(t *testing.T, store *collection.Store, opts ...collection.CoordinatorOption) (*collection.Coordinator, *mocks.MockBackend, *recorder) {
	t.Helper()
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	rec := &recorder{}
	opts = append([]collection.CoordinatorOption{
		collection.WithNotifier(rec),
		collection.WithRefreshScheduler(rec),
		collection.WithPublisher(rec, "menu"),
		collection.WithValidator(requireName{}),
	}, opts...)
	return collection.NewCoordinator(store, backend, opts...), backend, rec
}

func TestCoordinator_Create(t *testing.T) {
	t.Parallel()

	t.Run("inserts server record newest first and publishes", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 3, 1, 2, 3)
		coord, backend, rec := newCoordinator(t, store, collection.WithNewestFirst(true))

		intent := collection.NewCreateIntent(collection.Item{"name": "Dinner"})
		backend.EXPECT().Create(gomock.Any(), collection.Item{"name": "Dinner"}, intent.MutationID).
			Return([]byte(`{"id":42,"name":"Dinner","createdAt":"2024-01-01"}`), nil)

		record, err := coord.Apply(context.Background(), intent)
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01", record["createdAt"])

		snap := store.Snapshot()
		assert.Equal(t, []collection.ID{"42", "1", "2", "3"}, ids(snap.Items))
		assert.Equal(t, 4, snap.Total)

		require.Len(t, rec.published, 1)
		assert.Equal(t, events.Topic("menuCreated"), rec.published[0].Topic)
		assert.Equal(t, "42", rec.published[0].ItemID)
		assert.Equal(t, []string{"create"}, rec.schedules)
		require.Len(t, rec.notifications, 1)
		assert.NoError(t, rec.notifications[0].Err)
	})

	t.Run("appends when not newest first", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 1, 1)
		coord, backend, _ := newCoordinator(t, store)
		backend.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte(`{"id":2,"name":"x"}`), nil)

		_, err := coord.Apply(context.Background(), collection.NewCreateIntent(collection.Item{"name": "x"}))
		require.NoError(t, err)
		assert.Equal(t, []collection.ID{"1", "2"}, ids(store.Snapshot().Items))
	})

	t.Run("validation failure never reaches the backend", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 1, 1)
		coord, _, rec := newCoordinator(t, store)

		_, err := coord.Apply(context.Background(), collection.NewCreateIntent(collection.Item{"name": ""}))
		var validation *collection.ValidationError
		require.ErrorAs(t, err, &validation)

		assert.Equal(t, 1, store.Snapshot().Total)
		assert.Empty(t, rec.schedules)
		require.Len(t, rec.notifications, 1)
		assert.Equal(t, "invalid menus: name: is required", rec.notifications[0].Message)
	})

	t.Run("rejection leaves the store unchanged", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 1, 1)
		coord, backend, rec := newCoordinator(t, store)
		backend.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, httpclient.NewHTTPErrorFromBody(409, "u", []byte(`{"error":"duplicate name"}`)))

		_, err := coord.Apply(context.Background(), collection.NewCreateIntent(collection.Item{"name": "dup"}))
		var rejection *collection.RejectionError
		require.ErrorAs(t, err, &rejection)

		snap := store.Snapshot()
		assert.Equal(t, []collection.ID{"1"}, ids(snap.Items))
		assert.Equal(t, 1, snap.Total)
		assert.Empty(t, rec.published)
		assert.Equal(t, "duplicate name", rec.notifications[0].Message)
	})
}

func TestCoordinator_Update(t *testing.T) {
	t.Parallel()

	t.Run("patches with the server record", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 2, 1, 2)
		coord, backend, rec := newCoordinator(t, store)

		backend.EXPECT().Update(gomock.Any(), collection.ID("2"), collection.Item{"name": "Brunch"}, gomock.Any()).
			Return([]byte(`{"id":2,"name":"Brunch","updatedAt":"now"}`), nil)

		record, err := coord.Apply(context.Background(), collection.NewUpdateIntent("2", collection.Item{"name": "Brunch"}))
		require.NoError(t, err)
		assert.Equal(t, "now", record["updatedAt"])

		got, _ := store.Lookup("2")
		assert.Equal(t, "Brunch", got["name"])
		assert.Equal(t, "now", got["updatedAt"])
		assert.Equal(t, 2, store.Snapshot().Total)
		assert.Empty(t, rec.published)
		assert.Equal(t, []string{"update"}, rec.schedules)
	})

	t.Run("falls back to merging the payload when no record returns", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 2, 1, 2)
		coord, backend, _ := newCoordinator(t, store)
		backend.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

		record, err := coord.Apply(context.Background(), collection.NewUpdateIntent("1", collection.Item{"name": "Renamed"}))
		require.NoError(t, err)
		assert.Equal(t, "Renamed", record["name"])
		assert.Equal(t, float64(1), record["id"])

		got, _ := store.Lookup("1")
		assert.Equal(t, "Renamed", got["name"])
	})

	t.Run("validates the merged record", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 1, 1)
		coord, backend, _ := newCoordinator(t, store)
		backend.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte(`{}`), nil)

		// the existing item already has a name, so a partial payload is valid
		_, err := coord.Apply(context.Background(), collection.NewUpdateIntent("1", collection.Item{"active": true}))
		require.NoError(t, err)
	})

	t.Run("failure leaves the item unchanged", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 1, 1)
		coord, backend, _ := newCoordinator(t, store)
		backend.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

		_, err := coord.Apply(context.Background(), collection.NewUpdateIntent("1", collection.Item{"name": "New"}))
		var transport *collection.TransportError
		require.ErrorAs(t, err, &transport)

		got, _ := store.Lookup("1")
		assert.Equal(t, "item-1", got["name"])
	})

	t.Run("missing target id", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 1, 1)
		coord, _, _ := newCoordinator(t, store)
		_, err := coord.Apply(context.Background(), collection.NewUpdateIntent("", collection.Item{"name": "x"}))
		var validation *collection.ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}

func TestCoordinator_Delete(t *testing.T) {
	t.Parallel()

	t.Run("requires confirmation", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 2, 1, 2)
		coord, _, _ := newCoordinator(t, store)

		_, err := coord.Apply(context.Background(), collection.NewDeleteIntent("1"))
		assert.ErrorIs(t, err, collection.ErrNotConfirmed)
		assert.Equal(t, 2, store.Snapshot().Total)
	})

	t.Run("removes after confirmation", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 2, 1, 2)
		coord, backend, rec := newCoordinator(t, store)
		backend.EXPECT().Delete(gomock.Any(), collection.ID("1"), gomock.Any()).Return(nil)

		record, err := coord.Apply(context.Background(), collection.NewDeleteIntent("1").Confirm())
		require.NoError(t, err)
		assert.Nil(t, record)

		snap := store.Snapshot()
		assert.Equal(t, []collection.ID{"2"}, ids(snap.Items))
		assert.Equal(t, 1, snap.Total)
		assert.Equal(t, collection.ID("1"), rec.notifications[0].ID)
	})

	t.Run("failure leaves the item present", func(t *testing.T) {
		t.Parallel()

		store := loadedStore(t, 10, 2, 1, 2)
		coord, backend, _ := newCoordinator(t, store)
		backend.EXPECT().Delete(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(httpclient.NewHTTPErrorFromBody(500, "u", nil))

		_, err := coord.Apply(context.Background(), collection.NewDeleteIntent("1").Confirm())
		require.Error(t, err)
		assert.Equal(t, []collection.ID{"1", "2"}, ids(store.Snapshot().Items))
		assert.Equal(t, "request failed", collection.UserMessage(err))
	})
}

func TestCoordinator_IntentConsumedOnce(t *testing.T) {
	t.Parallel()

	store := loadedStore(t, 10, 1, 1)
	coord, backend, _ := newCoordinator(t, store)
	backend.EXPECT().Delete(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	intent := collection.NewDeleteIntent("1").Confirm()
	_, err := coord.Apply(context.Background(), intent)
	require.NoError(t, err)
	assert.True(t, intent.Consumed())

	_, err = coord.Apply(context.Background(), intent)
	assert.ErrorIs(t, err, collection.ErrIntentConsumed)
}

func TestCoordinator_SerializesPerIdentity(t *testing.T) {
	t.Parallel()

	store := loadedStore(t, 10, 2, 1, 2)
	coord, backend, _ := newCoordinator(t, store)

	started := make(chan struct{})
	release := make(chan struct{})
	backend.EXPECT().Update(gomock.Any(), collection.ID("1"), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, collection.ID, collection.Item, string) ([]byte, error) {
			close(started)
			<-release
			return nil, nil
		}).Times(1)
	backend.EXPECT().Delete(gomock.Any(), collection.ID("2"), gomock.Any()).Return(nil).Times(1)

	done := make(chan error, 1)
	go func() {
		_, err := coord.Apply(context.Background(), collection.NewUpdateIntent("1", collection.Item{"name": "first"}))
		done <- err
	}()
	<-started

	assert.True(t, coord.InFlight("1"))
	assert.True(t, coord.Busy())

	_, err := coord.Apply(context.Background(), collection.NewDeleteIntent("1").Confirm())
	assert.ErrorIs(t, err, collection.ErrMutationInFlight)

	// other identities are not blocked
	_, err = coord.Apply(context.Background(), collection.NewDeleteIntent("2").Confirm())
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, coord.InFlight("1"))
	assert.False(t, coord.Busy())
}

func TestCoordinator_Upload(t *testing.T) {
	t.Parallel()

	store := loadedStore(t, 10, 0)
	coord, backend, _ := newCoordinator(t, store, collection.WithNewestFirst(true))

	files := []collection.File{{Field: "image", Name: "tea.png", ContentType: "image/png", Data: []byte{0x89}}}
	backend.EXPECT().Upload(gomock.Any(), collection.ID(""), collection.Item{"name": "Tea"}, files, gomock.Any()).
		Return([]byte(`{"id":3,"name":"Tea","image":"/uploads/tea.png"}`), nil)

	record, err := coord.Upload(context.Background(), collection.NewCreateIntent(collection.Item{"name": "Tea"}), files)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/tea.png", record["image"])
	assert.Equal(t, 1, store.Snapshot().Total)
}

func TestCoordinator_Import(t *testing.T) {
	t.Parallel()

	csv := collection.File{Field: "file", Name: "companies.csv", ContentType: "text/csv", Data: []byte("name,code\nAcme,AC\n")}

	tests := []struct {
		name      string
		file      collection.File
		body      []byte
		uploadErr error
		wantN     int
		wantErr   bool
		wantCalls bool
		// published is the number of created events expected on success
		published int
	}{
		{
			name:      "imported count from the last record",
			file:      csv,
			body:      []byte(`{"id":12,"name":"Acme","imported":3}`),
			wantN:     3,
			wantCalls: true,
			published: 1,
		},
		{
			name:      "record without count",
			file:      csv,
			body:      []byte(`{"id":12,"name":"Acme"}`),
			wantN:     1,
			wantCalls: true,
			published: 1,
		},
		{
			name:      "bulk answer without a record",
			file:      csv,
			body:      []byte(`{"imported":3}`),
			wantN:     3,
			wantCalls: true,
			published: 1,
		},
		{
			name:      "enveloped bulk answer",
			file:      csv,
			body:      []byte(`{"data":{"imported":2}}`),
			wantN:     2,
			wantCalls: true,
			published: 1,
		},
		{
			name:      "nothing imported",
			file:      csv,
			body:      []byte(`{"imported":0}`),
			wantN:     0,
			wantCalls: true,
		},
		{
			name:    "empty file",
			file:    collection.File{Field: "file", Name: "empty.csv"},
			wantErr: true,
		},
		{
			name:      "rejected by the backend",
			file:      csv,
			uploadErr: &httpclient.HTTPError{StatusCode: 400, ServerMessage: "import file has no rows"},
			wantErr:   true,
			wantCalls: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := loadedStore(t, 10, 0)
			coord, backend, rec := newCoordinator(t, store)
			if tt.wantCalls {
				backend.EXPECT().Upload(gomock.Any(), collection.ID(""), collection.Item{}, []collection.File{tt.file}, gomock.Any()).
					Return(tt.body, tt.uploadErr)
			}

			n, err := coord.Import(context.Background(), tt.file)
			if tt.wantErr {
				require.Error(t, err)
				assert.Zero(t, n)
				require.Len(t, rec.notifications, 1)
				assert.Error(t, rec.notifications[0].Err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantN, n)
			assert.Equal(t, 0, store.Snapshot().Total, "the page is refreshed, not patched")
			assert.Equal(t, []string{"import"}, rec.schedules)
			assert.Len(t, rec.published, tt.published)
			assert.False(t, coord.Busy())
		})
	}
}
