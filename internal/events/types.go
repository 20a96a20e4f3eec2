// Package events provides the in-process event bus used to fan out
// notifications between the pipeline, the gallery ingest loop, and
// connected websocket clients.
package events

import (
	"time"
)

// EventType names a kind of event.
type EventType string

const (
	// Pipeline events
	EventCaptureCompleted  EventType = "capture.completed"
	EventArtifactPersisted EventType = "artifact.persisted"

	// Gallery events
	EventImageIndexed   EventType = "gallery.image.indexed"
	EventImageDuplicate EventType = "gallery.image.duplicate"
	EventUploadReceived EventType = "gallery.upload.received"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"
)

// Event is a single notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler processes a delivered event. Handlers run on the bus's
// dispatch goroutine and must not block for long.
type Handler func(event Event) error

// Filter selects which events a subscription receives. An empty Types
// slice matches everything.
type Filter struct {
	Types   []EventType `json:"types,omitempty"`
	Sources []string    `json:"sources,omitempty"`
}

// Subscription is a registered handler.
type Subscription struct {
	ID           string     `json:"id"`
	Filter       Filter     `json:"filter"`
	Handler      Handler    `json:"-"`
	Created      time.Time  `json:"created"`
	TriggerCount int64      `json:"trigger_count"`
	LastFired    *time.Time `json:"last_fired,omitempty"`
}

// Matches reports whether the event passes the filter.
func (f Filter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if t == event.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Sources) > 0 {
		ok := false
		for _, s := range f.Sources {
			if s == event.Source {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
