package backend

import (
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/core"
)

// WorkflowTask is a unit of work for a workflow execution: one or more new
// events to be executed against the instance history.
type WorkflowTask struct {
	// ID is the task lock id
	ID string

	WorkflowInstance *core.WorkflowInstance

	// State of the execution when the task was leased
	State core.WorkflowInstanceState

	// CustomStatus of the execution when the task was leased
	CustomStatus payload.Payload

	// NewEvents are the events to execute
	NewEvents []*history.Event

	// LastSequenceID is the sequence id of the last event in the persisted
	// history of this execution
	LastSequenceID int64
}

// ActivityTask is a single scheduled activity execution.
type ActivityTask struct {
	// ID is the task lock id
	ID string

	WorkflowInstance *core.WorkflowInstance

	// Event is the ActivityScheduled event
	Event *history.Event
}
