package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/enqbot/enqbot/core"
)

type EventType uint

const (
	_ EventType = iota

	EventType_WorkflowExecutionStarted
	EventType_WorkflowExecutionFinished
	EventType_WorkflowExecutionContinuedAsNew

	EventType_WorkflowTaskStarted

	EventType_ActivityScheduled
	EventType_ActivityCompleted
	EventType_ActivityFailed

	EventType_SignalReceived
)

func (et EventType) String() string {
	switch et {
	case EventType_WorkflowExecutionStarted:
		return "WorkflowExecutionStarted"
	case EventType_WorkflowExecutionFinished:
		return "WorkflowExecutionFinished"
	case EventType_WorkflowExecutionContinuedAsNew:
		return "WorkflowExecutionContinuedAsNew"
	case EventType_WorkflowTaskStarted:
		return "WorkflowTaskStarted"
	case EventType_ActivityScheduled:
		return "ActivityScheduled"
	case EventType_ActivityCompleted:
		return "ActivityCompleted"
	case EventType_ActivityFailed:
		return "ActivityFailed"
	case EventType_SignalReceived:
		return "SignalReceived"
	default:
		return "Unknown"
	}
}

type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	Type EventType `json:"type"`

	Timestamp time.Time `json:"timestamp"`

	// SequenceID is the position of this event in the instance history. Only
	// set once the event has been executed and persisted.
	SequenceID int64 `json:"sequence_id"`

	// ScheduleEventID correlates events belonging together, e.g. the schedule
	// and completion events of the same activity.
	ScheduleEventID int64 `json:"schedule_event_id"`

	// Attributes are event type specific attributes
	Attributes any `json:"attr"`
}

type EventOption func(e *Event)

func ScheduleEventID(scheduleEventID int64) EventOption {
	return func(e *Event) {
		e.ScheduleEventID = scheduleEventID
	}
}

// NewPendingEvent creates an event that has not been added to an instance
// history yet.
func NewPendingEvent(timestamp time.Time, eventType EventType, attributes any, opts ...EventOption) *Event {
	e := &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  timestamp,
		Attributes: attributes,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// WorkflowEvent is an event destined for another (or a continued) workflow
// instance.
type WorkflowEvent struct {
	WorkflowInstance *core.WorkflowInstance `json:"instance"`
	HistoryEvent     *Event                 `json:"event"`
}
