package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Handler reacts to a published event.
type Handler func(context.Context, Event) error

// Dispatcher fans session lifecycle events out to subscribers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe registers handler for eventType and returns a func that removes it.
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())
}

type subscription struct {
	id      uint64
	handler Handler
}

type memoryDispatcher struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscription
}

// NewInMemoryDispatcher creates a synchronous, process-local dispatcher.
func NewInMemoryDispatcher() Dispatcher {
	return &memoryDispatcher{subs: make(map[EventType][]subscription)}
}

// Publish runs the subscribers of event.Type in subscription order. Every
// subscriber runs; failures, panics included, are joined into the result.
func (d *memoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	subs := slices.Clone(d.subs[event.Type])
	d.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := invoke(ctx, sub.handler, event); err != nil {
			errs = append(errs, fmt.Errorf("%s subscriber %d: %w", event.Type, sub.id, err))
		}
	}
	return errors.Join(errs...)
}

func (d *memoryDispatcher) Subscribe(eventType EventType, handler Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.subs[eventType] = append(d.subs[eventType], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.subs[eventType] = slices.DeleteFunc(d.subs[eventType], func(s subscription) bool {
				return s.id == id
			})
		})
	}
}

func invoke(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, event)
}
