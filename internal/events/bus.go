package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snapcommit/snapcommit/internal/logger"
)

const (
	defaultBufferSize = 256
	recentBufferSize  = 100
)

// Bus is an asynchronous publish/subscribe event bus. Events are
// dispatched from a single goroutine in publish order.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventCh       chan Event
	recent        []Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBus creates a stopped bus.
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string]*Subscription),
		eventCh:       make(chan Event, defaultBufferSize),
		recent:        make([]Event, 0, recentBufferSize),
	}
}

// Start launches the dispatch goroutine.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("event bus is already running")
	}
	b.running = true
	b.stopCh = make(chan struct{})

	b.wg.Add(1)
	go b.dispatch(ctx)

	logger.Debug("event bus started", "buffer_size", cap(b.eventCh))
	return nil
}

// Stop drains and shuts down the bus, waiting up to the context
// deadline for the dispatcher to finish.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopCh)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish enqueues an event. A full buffer drops the event rather than
// blocking the publisher.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()
	if !running {
		return fmt.Errorf("event bus is not running")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Source == "" {
		return fmt.Errorf("event source is required")
	}

	select {
	case b.eventCh <- event:
		return nil
	default:
		logger.Warn("event buffer full, dropping event", "type", event.Type, "id", event.ID)
		return fmt.Errorf("event buffer full")
	}
}

// Subscribe registers a handler for events matching the filter.
func (b *Bus) Subscribe(filter Filter, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.NewString(),
		Filter:  filter,
		Handler: handler,
		Created: time.Now(),
	}
	b.subscriptions[sub.ID] = sub

	logger.Debug("subscription created", "id", sub.ID, "types", filter.Types)
	return sub
}

// Unsubscribe removes a subscription by ID.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscriptions[id]; !ok {
		return fmt.Errorf("subscription not found: %s", id)
	}
	delete(b.subscriptions, id)
	return nil
}

// Recent returns the most recently dispatched events, newest last.
func (b *Bus) Recent() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, len(b.recent))
	copy(out, b.recent)
	return out
}

func (b *Bus) dispatch(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			b.drain()
			return
		case <-ctx.Done():
			return
		case event := <-b.eventCh:
			b.handle(event)
		}
	}
}

// drain delivers events still queued at shutdown.
func (b *Bus) drain() {
	for {
		select {
		case event := <-b.eventCh:
			b.handle(event)
		default:
			return
		}
	}
}

func (b *Bus) handle(event Event) {
	b.mu.Lock()
	b.recent = append(b.recent, event)
	if len(b.recent) > recentBufferSize {
		b.recent = b.recent[1:]
	}

	var matching []*Subscription
	for _, sub := range b.subscriptions {
		if sub.Filter.Matches(event) {
			matching = append(matching, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range matching {
		b.notify(sub, event)
	}
}

func (b *Bus) notify(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in event handler", "subscription_id", sub.ID, "error", r, "event_id", event.ID)
		}
	}()

	if err := sub.Handler(event); err != nil {
		logger.Error("event handler error", "subscription_id", sub.ID, "error", err, "event_id", event.ID)
		return
	}

	b.mu.Lock()
	sub.TriggerCount++
	now := time.Now()
	sub.LastFired = &now
	b.mu.Unlock()
}
