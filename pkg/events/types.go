package events

import "time"

// EventType identifies the kind of event emitted during a verification run.
type EventType string

const (
	EventRunStart       EventType = "run.start"
	EventPollStart      EventType = "poll.start"
	EventCheckResult    EventType = "check.result"
	EventCheckDefaulted EventType = "check.defaulted"
	EventPollEnd        EventType = "poll.end"
	EventRunEnd         EventType = "run.end"
)

// Event represents a single runtime event.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Data      any           `json:"data"`
	Poll      int           `json:"poll,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// NewEvent creates a new Event with the current timestamp.
func NewEvent(typ EventType, data any) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewPollEvent creates an Event tagged with a poll number.
func NewPollEvent(typ EventType, poll int, data any) Event {
	ev := NewEvent(typ, data)
	ev.Poll = poll
	return ev
}
