package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrBusClosed is returned by a closed bus
var ErrBusClosed = errors.New("event bus closed")

type subscription struct {
	id      uint64
	handler Handler
}

// LocalBus delivers events to handlers in the same process.
// Each handler runs on its own goroutine and a panicking handler is logged and dropped.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[Topic][]subscription
	nextID   uint64
	closed   bool
	wg       sync.WaitGroup
}

// NewLocalBus creates an in-process bus
func NewLocalBus() *LocalBus {
	return &LocalBus{
		handlers: make(map[Topic][]subscription),
	}
}

// Subscribe registers h for topic
func (b *LocalBus) Subscribe(topic Topic, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}, nil
}

func (b *LocalBus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[topic]
	for i, s := range subs {
		if s.id == id {
			b.handlers[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[topic]) == 0 {
		delete(b.handlers, topic)
	}
}

// Publish hands evt to every handler of its topic without waiting for them
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := make([]subscription, len(b.handlers[evt.Topic]))
	copy(subs, b.handlers[evt.Topic])
	b.wg.Add(len(subs))
	b.mu.RUnlock()

	// handlers must outlive a request-scoped context
	hctx := context.WithoutCancel(ctx)
	for _, s := range subs {
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Event handler panicked",
						"topic", evt.Topic,
						"event_id", evt.ID,
						"panic", r)
				}
			}()
			h(hctx, evt)
		}(s.handler)
	}
	return nil
}

// Close rejects further use and waits for running handlers
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.handlers = make(map[Topic][]subscription)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
