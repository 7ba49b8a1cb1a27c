package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/benbjohnson/clock"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/core"
	"github.com/enqbot/enqbot/internal/command"
	"github.com/enqbot/enqbot/internal/continueasnew"
	"github.com/enqbot/enqbot/internal/contextvalue"
	"github.com/enqbot/enqbot/internal/sync"
	"github.com/enqbot/enqbot/internal/workflowerrors"
	"github.com/enqbot/enqbot/internal/workflowstate"
	"github.com/enqbot/enqbot/registry"
)

type ExecutionResult struct {
	// State is the new state of the workflow execution
	State core.WorkflowInstanceState

	// CustomStatus is the status value to persist with this checkpoint
	CustomStatus payload.Payload

	// Executed are the events executed during the task, in order
	Executed []*history.Event

	// ActivityEvents are activities that were scheduled
	ActivityEvents []*history.Event

	// WorkflowEvents are events for other workflow executions, e.g. the
	// started event of a continued-as-new generation
	WorkflowEvents []*history.WorkflowEvent
}

type WorkflowHistoryProvider interface {
	GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error)
}

type WorkflowExecutor interface {
	ExecuteTask(ctx context.Context, t *backend.WorkflowTask) (*ExecutionResult, error)

	Close()
}

type executor struct {
	registry        *registry.Registry
	historyProvider WorkflowHistoryProvider
	workflow        *workflow
	workflowName    string
	workflowState   *workflowstate.WfState
	workflowCtx     sync.Context
	cv              converter.Converter
	clock           clock.Clock
	logger          *slog.Logger
	lastSequenceID  int64

	// Signals that arrived after the workflow completed in the current task,
	// carried over to the continued execution.
	deferredSignals []*history.Event
}

func NewExecutor(
	logger *slog.Logger,
	r *registry.Registry,
	cv converter.Converter,
	historyProvider WorkflowHistoryProvider,
	instance *core.WorkflowInstance,
	clock clock.Clock,
) (WorkflowExecutor, error) {
	s := workflowstate.NewWorkflowState(instance, logger, clock)

	wfCtx := sync.Background()
	wfCtx = contextvalue.WithConverter(wfCtx, cv)
	wfCtx = workflowstate.WithWorkflowState(wfCtx, s)

	return &executor{
		registry:        r,
		historyProvider: historyProvider,
		workflowState:   s,
		workflowCtx:     wfCtx,
		cv:              cv,
		clock:           clock,
		logger:          logger,
	}, nil
}

func (e *executor) ExecuteTask(ctx context.Context, t *backend.WorkflowTask) (*ExecutionResult, error) {
	logger := e.logger.With("task_id", t.ID, "instance_id", t.WorkflowInstance.InstanceID)

	logger.Debug("Executing workflow task", "last_sequence_id", t.LastSequenceID)

	if t.State == core.WorkflowInstanceStateFinished {
		// This can happen if signals are delivered after the workflow
		// finished
		logger.Error("Received workflow task for finished workflow execution, discarding events")

		for _, event := range t.NewEvents {
			logger.Debug("Discarded event", "event_id", event.ID, "event_type", event.Type.String())
		}

		return &ExecutionResult{
			State:        core.WorkflowInstanceStateFinished,
			CustomStatus: t.CustomStatus,
		}, nil
	}

	// Carry the custom status of the previous generation until the workflow
	// overwrites it
	if e.workflowState.CustomStatus() == nil && t.CustomStatus != nil {
		e.workflowState.SetCustomStatus(t.CustomStatus)
	}

	if err := e.catchupOnHistory(ctx, t, logger); err != nil {
		return nil, err
	}

	// Always add a WorkflowTaskStarted event before executing new events
	toExecute := []*history.Event{e.createNewEvent(history.EventType_WorkflowTaskStarted, &history.WorkflowTaskStartedAttributes{})}
	toExecute = append(toExecute, t.NewEvents...)

	executedEvents, err := e.executeNewEvents(toExecute)
	if err != nil {
		logger.Error("Error while executing new events", "error", err)

		// Transition workflow to error state
		e.workflowCompleted(nil, err)
	}

	// Process any commands added while executing new events
	state := core.WorkflowInstanceStateActive
	newCommandEvents := make([]*history.Event, 0)
	activityEvents := make([]*history.Event, 0)
	workflowEvents := make([]*history.WorkflowEvent, 0)

	for _, c := range e.workflowState.Commands() {
		if c.State() != command.CommandState_Pending {
			continue
		}

		r := c.Commit(e.clock)
		if r == nil {
			continue
		}

		if r.State > state {
			state = r.State
		}
		newCommandEvents = append(newCommandEvents, r.Events...)
		activityEvents = append(activityEvents, r.ActivityEvents...)
		workflowEvents = append(workflowEvents, r.WorkflowEvents...)
	}

	// Events from commands don't have to be executed again, add them to the
	// executed events
	executedEvents = append(executedEvents, newCommandEvents...)

	// Set sequence ids for all executed events
	for i := range executedEvents {
		executedEvents[i].SequenceID = e.nextSequenceID()
	}

	// Signals which arrived after the workflow requested its continuation stay
	// out of the executed events. They remain pending and the backend delivers
	// them to the next generation when it checkpoints this task.
	if n := len(e.deferredSignals); n > 0 {
		logger.Debug("Leaving signals pending for the continued execution", "count", n)
		e.deferredSignals = nil
	}

	logger.Debug("Finished workflow task",
		"executed_events", len(executedEvents),
		"last_sequence_id", e.lastSequenceID,
		"state", state.String(),
	)

	return &ExecutionResult{
		State:          state,
		CustomStatus:   e.workflowState.CustomStatus(),
		Executed:       executedEvents,
		ActivityEvents: activityEvents,
		WorkflowEvents: workflowEvents,
	}, nil
}

func (e *executor) Close() {
	if e.workflow != nil {
		e.logger.Debug("Stopping workflow executor")

		// End workflow execution to prevent leaking goroutines
		e.workflow.Close()
	}
}

func (e *executor) catchupOnHistory(ctx context.Context, t *backend.WorkflowTask, logger *slog.Logger) error {
	if t.LastSequenceID < e.lastSequenceID {
		return errors.New("task has older history than current state, cannot execute")
	}

	if t.LastSequenceID > e.lastSequenceID {
		logger.Debug("Task has newer history than current state, fetching and replaying history",
			"task_sequence_id", t.LastSequenceID,
			"local_sequence_id", e.lastSequenceID)

		h, err := e.historyProvider.GetWorkflowInstanceHistory(ctx, t.WorkflowInstance, &e.lastSequenceID)
		if err != nil {
			return fmt.Errorf("getting workflow history: %w", err)
		}

		if err := e.replayHistory(h); err != nil {
			return fmt.Errorf("replaying workflow history: %w", err)
		}

		if t.LastSequenceID != e.lastSequenceID {
			return errors.New("even after fetching and replaying history, executor state does not match task")
		}
	}

	return nil
}

func (e *executor) replayHistory(h []*history.Event) error {
	e.workflowState.SetReplaying(true)
	for _, event := range h {
		if event.SequenceID < e.lastSequenceID {
			return errors.New("history has older events than current state")
		}

		if err := e.executeEvent(event); err != nil {
			return err
		}

		e.lastSequenceID = event.SequenceID
	}

	return nil
}

func (e *executor) executeNewEvents(newEvents []*history.Event) ([]*history.Event, error) {
	e.workflowState.SetReplaying(false)

	executed := make([]*history.Event, 0, len(newEvents))

	for _, event := range newEvents {
		if e.workflow != nil && e.workflow.Completed() {
			// The workflow finished or continued as new while events were
			// still queued for this task
			if event.Type == history.EventType_SignalReceived {
				e.deferredSignals = append(e.deferredSignals, event)
				continue
			}

			e.logger.Debug("Skipping event for completed workflow", "event_type", event.Type.String())
			continue
		}

		if err := e.executeEvent(event); err != nil {
			return executed, err
		}

		executed = append(executed, event)
	}

	if e.workflow != nil && e.workflow.Completed() {
		if e.workflowState.HasPendingFutures() {
			return executed, fmt.Errorf("workflow completed, but there are still pending futures: %v", e.workflowState.PendingFutureNames())
		}

		if canErr := (*continueasnew.Error)(nil); errors.As(e.workflow.Error(), &canErr) {
			e.workflowRestarted(e.workflow.Result(), canErr)
		} else {
			e.workflowCompleted(e.workflow.Result(), e.workflow.Error())
		}
	}

	return executed, nil
}

func (e *executor) executeEvent(event *history.Event) error {
	e.logger.Debug("Executing event",
		"event_id", event.ID,
		"sequence_id", event.SequenceID,
		"event_type", event.Type.String(),
		"schedule_event_id", event.ScheduleEventID,
		"replaying", e.workflowState.Replaying(),
	)

	var err error

	switch event.Type {
	case history.EventType_WorkflowExecutionStarted:
		err = e.handleWorkflowExecutionStarted(event.Attributes.(*history.ExecutionStartedAttributes))

	case history.EventType_WorkflowExecutionFinished:
	// Ignore

	case history.EventType_WorkflowExecutionContinuedAsNew:
	// Ignore

	case history.EventType_WorkflowTaskStarted:
		err = e.handleWorkflowTaskStarted(event)

	case history.EventType_ActivityScheduled:
		err = e.handleActivityScheduled(event, event.Attributes.(*history.ActivityScheduledAttributes))

	case history.EventType_ActivityCompleted:
		err = e.handleActivityCompleted(event, event.Attributes.(*history.ActivityCompletedAttributes))

	case history.EventType_ActivityFailed:
		err = e.handleActivityFailed(event, event.Attributes.(*history.ActivityFailedAttributes))

	case history.EventType_SignalReceived:
		err = e.handleSignalReceived(event.Attributes.(*history.SignalReceivedAttributes))

	default:
		return fmt.Errorf("unknown event type: %v", event.Type)
	}

	return err
}

func (e *executor) handleWorkflowExecutionStarted(a *history.ExecutionStartedAttributes) error {
	e.workflowName = a.Name

	wfFn, err := e.registry.GetWorkflow(a.Name)
	if err != nil {
		return fmt.Errorf("workflow %q not found", a.Name)
	}

	e.workflow = newWorkflow(reflect.ValueOf(wfFn))
	return e.workflow.Execute(e.workflowCtx, a.Inputs)
}

func (e *executor) handleWorkflowTaskStarted(event *history.Event) error {
	e.workflowState.SetTime(event.Timestamp)

	return nil
}

func (e *executor) handleActivityScheduled(event *history.Event, a *history.ActivityScheduledAttributes) error {
	c := e.workflowState.CommandByScheduleEventID(event.ScheduleEventID)
	if c == nil {
		return errors.New("previous workflow execution scheduled an activity which could not be found")
	}

	sac, ok := c.(*command.ScheduleActivityCommand)
	if !ok {
		return fmt.Errorf("previous workflow execution scheduled an activity, not: %v", c.Type())
	}

	// Ensure the same activity is scheduled again
	if a.Name != sac.Name {
		return fmt.Errorf("previous workflow execution scheduled different type of activity: %s, %s", a.Name, sac.Name)
	}

	// Recorded event matched, the activity must not be dispatched again
	sac.Commit(e.clock)

	return nil
}

func (e *executor) handleActivityCompleted(event *history.Event, a *history.ActivityCompletedAttributes) error {
	f, ok := e.workflowState.FutureByScheduleEventID(event.ScheduleEventID)
	if !ok {
		return errors.New("no pending future for activity completed event")
	}

	if err := f(a.Result, nil); err != nil {
		return fmt.Errorf("setting activity completed result: %w", err)
	}

	e.workflowState.RemoveFuture(event.ScheduleEventID)

	if err := e.commandDone(event.ScheduleEventID); err != nil {
		return err
	}

	return e.workflow.Continue()
}

func (e *executor) handleActivityFailed(event *history.Event, a *history.ActivityFailedAttributes) error {
	f, ok := e.workflowState.FutureByScheduleEventID(event.ScheduleEventID)
	if !ok {
		return errors.New("no pending future for activity failed event")
	}

	if err := f(nil, workflowerrors.ToError(a.Error)); err != nil {
		return fmt.Errorf("setting activity failed result: %w", err)
	}

	e.workflowState.RemoveFuture(event.ScheduleEventID)

	if err := e.commandDone(event.ScheduleEventID); err != nil {
		return err
	}

	return e.workflow.Continue()
}

func (e *executor) handleSignalReceived(a *history.SignalReceivedAttributes) error {
	workflowstate.ReceiveSignal(e.workflowState, a.Name, a.Arg)

	return e.workflow.Continue()
}

func (e *executor) commandDone(scheduleEventID int64) error {
	c := e.workflowState.CommandByScheduleEventID(scheduleEventID)
	if c == nil {
		return errors.New("no command found for schedule event id")
	}

	sac, ok := c.(*command.ScheduleActivityCommand)
	if !ok {
		return fmt.Errorf("expected schedule activity command, not: %v", c.Type())
	}

	sac.Done()

	return nil
}

func (e *executor) workflowCompleted(result payload.Payload, wfErr error) {
	eventID := e.workflowState.GetNextScheduleEventID()

	cmd := command.NewCompleteWorkflowCommand(eventID, e.workflowState.Instance(), result, workflowerrors.FromError(wfErr))
	e.workflowState.AddCommand(cmd)
}

func (e *executor) workflowRestarted(result payload.Payload, continueAsNew *continueasnew.Error) {
	eventID := e.workflowState.GetNextScheduleEventID()

	cmd := command.NewContinueAsNewCommand(eventID, e.workflowState.Instance(), result, e.workflowName, continueAsNew.Inputs)
	e.workflowState.AddCommand(cmd)
}

func (e *executor) nextSequenceID() int64 {
	e.lastSequenceID++
	return e.lastSequenceID
}

func (e *executor) createNewEvent(eventType history.EventType, attributes any, opts ...history.EventOption) *history.Event {
	return history.NewPendingEvent(
		e.clock.Now(),
		eventType,
		attributes,
		opts...,
	)
}

