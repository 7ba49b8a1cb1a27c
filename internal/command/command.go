package command

import (
	"github.com/benbjohnson/clock"

	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/core"
)

type CommandState int

const (
	// Pending, the command has not been committed to the history yet
	CommandState_Pending CommandState = iota

	// Committed, the command has produced its history events. During replay a
	// regenerated command transitions straight to Committed when its recorded
	// event is matched, without producing events again.
	CommandState_Committed

	// Done, the result of the command has been applied
	CommandState_Done
)

func (cs CommandState) String() string {
	switch cs {
	case CommandState_Pending:
		return "Pending"
	case CommandState_Committed:
		return "Committed"
	case CommandState_Done:
		return "Done"
	default:
		panic("unknown command state")
	}
}

type Command interface {
	ID() int64

	// Commit transitions a pending command to committed and returns the
	// events it contributes to the history.
	Commit(clock clock.Clock) *CommandResult

	// Done marks the command's result as applied.
	Done()

	State() CommandState

	Type() string
}

type CommandResult struct {
	// State is the instance state this command transitions the workflow to
	State core.WorkflowInstanceState

	// Events to add to the instance history
	Events []*history.Event

	// ActivityEvents are events to queue as activity tasks
	ActivityEvents []*history.Event

	// WorkflowEvents are events for other workflow executions
	WorkflowEvents []*history.WorkflowEvent
}

type command struct {
	state CommandState

	id int64
}

func (c *command) commit() {
	if c.state != CommandState_Pending {
		panic("command already committed")
	}

	c.state = CommandState_Committed
}

func (c *command) ID() int64 {
	return c.id
}

func (c *command) State() CommandState {
	return c.state
}

func (c *command) Done() {
	c.state = CommandState_Done
}
