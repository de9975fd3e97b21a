package events

import "time"

// EventType identifies the kind of event emitted by the runtime.
type EventType string

const (
	EventSnapshotBuilt EventType = "snapshot.built"
	EventPlanRequested EventType = "plan.requested"
	EventPlanReceived  EventType = "plan.received"
	EventIntentStart   EventType = "intent.start"
	EventIntentEnd     EventType = "intent.end"
	EventVerifyStart   EventType = "verify.start"
	EventVerifyResult  EventType = "verify.result"
	EventRecoveryStart EventType = "recovery.start"
	EventTaskStart     EventType = "task.start"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
)

// Event represents a single runtime event.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id,omitempty"`
	Data      any           `json:"data,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// NewEvent creates a new Event with the current timestamp.
func NewEvent(typ EventType, runID string, data any) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      data,
	}
}
