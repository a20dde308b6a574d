package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn loops published messages back to subscribers, like a single NATS server
type fakeConn struct {
	mu        sync.Mutex
	handlers  map[string]nats.MsgHandler
	published []string
	drained   bool
	failPub   error
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: map[string]nats.MsgHandler{}}
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.mu.Lock()
	if f.failPub != nil {
		f.mu.Unlock()
		return f.failPub
	}
	f.published = append(f.published, subj)
	h := f.handlers[subj]
	f.mu.Unlock()

	if h != nil {
		h(&nats.Msg{Subject: subj, Data: data})
	}
	return nil
}

func (f *fakeConn) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[subj] = cb
	return nil, nil
}

func (f *fakeConn) Drain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained = true
	return nil
}

func (*fakeConn) Close() {}

// inject delivers a message as if another process had published it
func (f *fakeConn) inject(t *testing.T, subj string, evt Event) {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	f.mu.Lock()
	h := f.handlers[subj]
	f.mu.Unlock()
	require.NotNil(t, h)
	h(&nats.Msg{Subject: subj, Data: data})
}

func TestNATSBus_Subject(t *testing.T) {
	t.Parallel()

	bus := newNATSBus(newFakeConn())
	assert.Equal(t, "backoffice.events.menuCreated", bus.Subject(CreatedTopic("menu")))

	custom := newNATSBus(newFakeConn(), WithSubjectPrefix("acme.bo."))
	assert.Equal(t, "acme.bo.roleCreated", custom.Subject(CreatedTopic("role")))
}

func TestNATSBus_OwnEventsDeliveredOnce(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	bus := newNATSBus(conn)

	var mu sync.Mutex
	var got []Event
	_, err := bus.Subscribe(CreatedTopic("menu"), func(_ context.Context, evt Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), NewEvent(CreatedTopic("menu"), "menus", "1", nil)))
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ItemID)
	assert.Equal(t, []string{"backoffice.events.menuCreated"}, conn.published)
	assert.True(t, conn.drained)
}

func TestNATSBus_RemoteEventsDelivered(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	bus := newNATSBus(conn)
	defer func() { _ = bus.Close() }()

	received := make(chan Event, 1)
	_, err := bus.Subscribe(CreatedTopic("role"), func(_ context.Context, evt Event) {
		received <- evt
	})
	require.NoError(t, err)

	remote := NewEvent(CreatedTopic("role"), "roles", "9", nil)
	remote.Origin = "another-process"
	conn.inject(t, "backoffice.events.roleCreated", remote)

	select {
	case evt := <-received:
		assert.Equal(t, "9", evt.ItemID)
	case <-time.After(time.Second):
		t.Fatal("remote event not delivered")
	}
}

func TestNATSBus_PublishError(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.failPub = errors.New("connection closed")
	bus := newNATSBus(conn)
	defer func() { _ = bus.Close() }()

	err := bus.Publish(context.Background(), NewEvent("tick", "menus", "", nil))
	assert.ErrorContains(t, err, "connection closed")
}
