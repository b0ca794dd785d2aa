package types

import (
	"chatsync/internal/models"
)

// RangeQuery describes a bounded key-ordered read against one
// conversation's message log. Results are always returned in ascending
// key order regardless of which bounds are set.
type RangeQuery struct {
	// LimitFromEnd returns the last N rows of the matching range.
	LimitFromEnd int `json:"limitFromEnd,omitempty"`
	// EndAtKey bounds the range at this key, inclusive.
	EndAtKey models.MessageKey `json:"endAtKey,omitempty"`
	// StartAtKey starts the range at this key, inclusive.
	StartAtKey models.MessageKey `json:"startAtKey,omitempty"`
}

// PathValue is one (path, value) pair of an atomic multi-path write.
// A nil Value deletes the node at the path.
type PathValue struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// EventType identifies a live feed change event.
type EventType string

const (
	EventAdded   EventType = "added"
	EventChanged EventType = "changed"
	EventRemoved EventType = "removed"
)

// ChangeEvent is one push-based change notification from the live feed.
// Delivery is at-least-once; events for different keys carry no ordering
// guarantee relative to each other.
type ChangeEvent struct {
	Type    EventType         `json:"type"`
	Message *models.Message   `json:"message,omitempty"`
	Key     models.MessageKey `json:"key,omitempty"`
}

// ChangeHandlers receives live feed events. Handlers are invoked from the
// feed's dispatch goroutine; nil handlers are skipped.
type ChangeHandlers struct {
	OnAdded   func(models.Message)
	OnChanged func(models.Message)
	OnRemoved func(models.MessageKey)
}
