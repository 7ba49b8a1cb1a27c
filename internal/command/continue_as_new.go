package command

import (
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/core"
)

type ContinueAsNewCommand struct {
	command

	Instance *core.WorkflowInstance
	Name     string
	Inputs   []payload.Payload
	Result   payload.Payload

	// ContinuedExecutionID is the execution id of the next generation, set
	// when the command is committed.
	ContinuedExecutionID string
}

var _ Command = (*ContinueAsNewCommand)(nil)

func NewContinueAsNewCommand(id int64, instance *core.WorkflowInstance, result payload.Payload, name string, inputs []payload.Payload) *ContinueAsNewCommand {
	return &ContinueAsNewCommand{
		command: command{
			state: CommandState_Pending,
			id:    id,
		},
		Instance: instance,
		Name:     name,
		Inputs:   inputs,
		Result:   result,
	}
}

func (*ContinueAsNewCommand) Type() string {
	return "ContinueAsNew"
}

func (c *ContinueAsNewCommand) Commit(clock clock.Clock) *CommandResult {
	c.commit()

	c.ContinuedExecutionID = uuid.NewString()
	continuedInstance := core.NewWorkflowInstance(c.Instance.InstanceID, c.ContinuedExecutionID)

	return &CommandResult{
		State: core.WorkflowInstanceStateContinuedAsNew,
		Events: []*history.Event{
			// End the current execution
			history.NewPendingEvent(
				clock.Now(),
				history.EventType_WorkflowExecutionContinuedAsNew,
				&history.ExecutionContinuedAsNewAttributes{
					Result:               c.Result,
					ContinuedExecutionID: c.ContinuedExecutionID,
				},
			),
		},
		WorkflowEvents: []*history.WorkflowEvent{
			// Schedule the next generation
			{
				WorkflowInstance: continuedInstance,
				HistoryEvent: history.NewPendingEvent(
					clock.Now(),
					history.EventType_WorkflowExecutionStarted,
					&history.ExecutionStartedAttributes{
						Name:   c.Name,
						Inputs: c.Inputs,
					},
				),
			},
		},
	}
}
