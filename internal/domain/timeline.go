package domain

import "time"

// EventType classifies a timeline entry for display.
type EventType string

const (
	EventMilestone EventType = "milestone"
	EventDeadline  EventType = "deadline"
	EventGeneric   EventType = "event"
)

// TimelineEvent is a derived, display-ready point on a class timeline.
// It is never persisted.
type TimelineEvent struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        EventType `json:"type"`
	Completed   bool      `json:"completed"`
}
