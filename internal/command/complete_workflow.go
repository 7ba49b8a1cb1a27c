package command

import (
	"github.com/benbjohnson/clock"

	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/core"
	"github.com/enqbot/enqbot/internal/workflowerrors"
)

type CompleteWorkflowCommand struct {
	command

	Instance *core.WorkflowInstance
	Result   payload.Payload
	Error    *workflowerrors.Error
}

var _ Command = (*CompleteWorkflowCommand)(nil)

func NewCompleteWorkflowCommand(id int64, instance *core.WorkflowInstance, result payload.Payload, err *workflowerrors.Error) *CompleteWorkflowCommand {
	return &CompleteWorkflowCommand{
		command: command{
			state: CommandState_Pending,
			id:    id,
		},
		Instance: instance,
		Result:   result,
		Error:    err,
	}
}

func (*CompleteWorkflowCommand) Type() string {
	return "CompleteWorkflow"
}

func (c *CompleteWorkflowCommand) Commit(clock clock.Clock) *CommandResult {
	c.commit()

	return &CommandResult{
		State: core.WorkflowInstanceStateFinished,
		Events: []*history.Event{
			history.NewPendingEvent(
				clock.Now(),
				history.EventType_WorkflowExecutionFinished,
				&history.ExecutionCompletedAttributes{
					Result: c.Result,
					Error:  c.Error,
				},
			),
		},
	}
}
