package command

import (
	"github.com/benbjohnson/clock"

	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/core"
)

type ScheduleActivityCommand struct {
	command

	Name   string
	Inputs []payload.Payload
	Retry  history.RetryPolicy
}

var _ Command = (*ScheduleActivityCommand)(nil)

func NewScheduleActivityCommand(id int64, name string, inputs []payload.Payload, retry history.RetryPolicy) *ScheduleActivityCommand {
	return &ScheduleActivityCommand{
		command: command{
			state: CommandState_Pending,
			id:    id,
		},
		Name:   name,
		Inputs: inputs,
		Retry:  retry,
	}
}

func (*ScheduleActivityCommand) Type() string {
	return "ScheduleActivity"
}

func (c *ScheduleActivityCommand) Commit(clock clock.Clock) *CommandResult {
	c.commit()

	event := history.NewPendingEvent(
		clock.Now(),
		history.EventType_ActivityScheduled,
		&history.ActivityScheduledAttributes{
			Name:   c.Name,
			Inputs: c.Inputs,
			Retry:  c.Retry,
		},
		history.ScheduleEventID(c.id))

	return &CommandResult{
		State:          core.WorkflowInstanceStateActive,
		Events:         []*history.Event{event},
		ActivityEvents: []*history.Event{event},
	}
}
