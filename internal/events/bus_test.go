package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedBus(t *testing.T) *Bus {
	t.Helper()
	b := NewBus()
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Stop(ctx)
	})
	return b
}

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := startedBus(t)

	got := make(chan Event, 1)
	b.Subscribe(Filter{}, func(e Event) error {
		got <- e
		return nil
	})

	require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "gallery"}))

	e := waitFor(t, got)
	assert.Equal(t, EventImageIndexed, e.Type)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestFilterByType(t *testing.T) {
	b := startedBus(t)

	indexed := make(chan Event, 2)
	b.Subscribe(Filter{Types: []EventType{EventImageIndexed}}, func(e Event) error {
		indexed <- e
		return nil
	})

	require.NoError(t, b.Publish(Event{Type: EventUploadReceived, Source: "api"}))
	require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "watcher"}))

	e := waitFor(t, indexed)
	assert.Equal(t, EventImageIndexed, e.Type)
	select {
	case extra := <-indexed:
		t.Fatalf("unexpected extra event: %v", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFilterBySource(t *testing.T) {
	b := startedBus(t)

	got := make(chan Event, 1)
	b.Subscribe(Filter{Sources: []string{"watcher"}}, func(e Event) error {
		got <- e
		return nil
	})

	require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "api"}))
	require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "watcher"}))

	e := waitFor(t, got)
	assert.Equal(t, "watcher", e.Source)
}

func TestPublishValidation(t *testing.T) {
	b := startedBus(t)

	assert.Error(t, b.Publish(Event{Source: "x"}))
	assert.Error(t, b.Publish(Event{Type: EventImageIndexed}))
}

func TestPublishOnStoppedBus(t *testing.T) {
	b := NewBus()
	assert.Error(t, b.Publish(Event{Type: EventImageIndexed, Source: "x"}))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := startedBus(t)

	var mu sync.Mutex
	count := 0
	sub := b.Subscribe(Filter{}, func(e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "x"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Unsubscribe(sub.ID))
	require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "x"}))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestUnsubscribeUnknownID(t *testing.T) {
	b := startedBus(t)
	assert.Error(t, b.Unsubscribe("nope"))
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	b := startedBus(t)

	got := make(chan Event, 1)
	b.Subscribe(Filter{}, func(e Event) error {
		return errors.New("boom")
	})
	b.Subscribe(Filter{}, func(e Event) error {
		got <- e
		return nil
	})

	require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "x"}))
	waitFor(t, got)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	b := startedBus(t)

	got := make(chan Event, 1)
	b.Subscribe(Filter{}, func(e Event) error {
		panic("handler bug")
	})
	b.Subscribe(Filter{}, func(e Event) error {
		got <- e
		return nil
	})

	require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "x"}))
	waitFor(t, got)
}

func TestRecentKeepsDispatchedEvents(t *testing.T) {
	b := startedBus(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "x"}))
	}

	require.Eventually(t, func() bool {
		return len(b.Recent()) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestStopDrainsQueuedEvents(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Start(context.Background()))

	var mu sync.Mutex
	count := 0
	b.Subscribe(Filter{}, func(e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(Event{Type: EventImageIndexed, Source: "x"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}
