package executor

import (
	"context"
	"log/slog"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/core"
	"github.com/enqbot/enqbot/internal/args"
	"github.com/enqbot/enqbot/internal/fn"
	"github.com/enqbot/enqbot/registry"
	wf "github.com/enqbot/enqbot/workflow"
)

type historyStub struct {
	history []*history.Event
}

func (hs *historyStub) GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	if lastSequenceID == nil {
		return hs.history, nil
	}

	events := make([]*history.Event, 0)
	for _, e := range hs.history {
		if e.SequenceID > *lastSequenceID {
			events = append(events, e)
		}
	}

	return events, nil
}

func greetActivity(ctx context.Context, name string) (string, error) {
	return "hello " + name, nil
}

func activityWorkflow(ctx wf.Context, name string) (string, error) {
	return wf.ExecuteActivity[string](ctx, wf.DefaultActivityOptions, greetActivity, name).Get(ctx)
}

func signalLoopWorkflow(ctx wf.Context, answers []string) ([]string, error) {
	c := wf.NewSignalChannel[string](ctx, "answer")

	answer, _ := c.Receive(ctx)
	answers = append(answers, answer)

	if answer == "done" {
		return answers, nil
	}

	if err := wf.SetCustomStatus(ctx, len(answers)-1); err != nil {
		return nil, err
	}

	return nil, wf.ContinueAsNew(ctx, answers)
}

func newTestExecutor(t *testing.T, r *registry.Registry, instance *core.WorkflowInstance, hs *historyStub) WorkflowExecutor {
	t.Helper()

	e, err := NewExecutor(
		slog.New(slog.DiscardHandler),
		r,
		converter.DefaultConverter,
		hs,
		instance,
		clock.NewMock(),
	)
	require.NoError(t, err)

	t.Cleanup(e.Close)

	return e
}

func startTask(t *testing.T, instance *core.WorkflowInstance, wf any, wfArgs ...any) *backend.WorkflowTask {
	t.Helper()

	inputs, err := args.ArgsToInputs(converter.DefaultConverter, wfArgs...)
	require.NoError(t, err)

	return &backend.WorkflowTask{
		ID:               uuid.NewString(),
		WorkflowInstance: instance,
		State:            core.WorkflowInstanceStateActive,
		NewEvents: []*history.Event{
			history.NewPendingEvent(clock.NewMock().Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{
				Name:   fn.Name(wf),
				Inputs: inputs,
			}),
		},
	}
}

func TestExecuteTask_SchedulesActivity(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(activityWorkflow))
	require.NoError(t, r.RegisterActivity(greetActivity))

	instance := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	e := newTestExecutor(t, r, instance, &historyStub{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, instance, activityWorkflow, "world"))
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateActive, result.State)
	require.Len(t, result.ActivityEvents, 1)
	require.Equal(t, history.EventType_ActivityScheduled, result.ActivityEvents[0].Type)

	a := result.ActivityEvents[0].Attributes.(*history.ActivityScheduledAttributes)
	require.Equal(t, fn.Name(greetActivity), a.Name)

	// TaskStarted, ExecutionStarted, ActivityScheduled
	require.Len(t, result.Executed, 3)
	for i, event := range result.Executed {
		require.Equal(t, int64(i+1), event.SequenceID)
	}
}

func TestExecuteTask_CompletesWorkflowOnActivityResult(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(activityWorkflow))
	require.NoError(t, r.RegisterActivity(greetActivity))

	instance := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	e := newTestExecutor(t, r, instance, &historyStub{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, instance, activityWorkflow, "world"))
	require.NoError(t, err)

	scheduled := result.ActivityEvents[0]

	activityResult, err := converter.DefaultConverter.To("hello world")
	require.NoError(t, err)

	result, err = e.ExecuteTask(context.Background(), &backend.WorkflowTask{
		ID:               uuid.NewString(),
		WorkflowInstance: instance,
		State:            core.WorkflowInstanceStateActive,
		LastSequenceID:   3,
		NewEvents: []*history.Event{
			history.NewPendingEvent(clock.NewMock().Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{
				Result: activityResult,
			}, history.ScheduleEventID(scheduled.ScheduleEventID)),
		},
	})
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateFinished, result.State)

	finished := result.Executed[len(result.Executed)-1]
	require.Equal(t, history.EventType_WorkflowExecutionFinished, finished.Type)

	var wfResult string
	a := finished.Attributes.(*history.ExecutionCompletedAttributes)
	require.NoError(t, converter.DefaultConverter.From(a.Result, &wfResult))
	require.Equal(t, "hello world", wfResult)
}

func TestExecuteTask_ReplayDoesNotRescheduleActivity(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(activityWorkflow))
	require.NoError(t, r.RegisterActivity(greetActivity))

	instance := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())

	hs := &historyStub{}
	e := newTestExecutor(t, r, instance, hs)

	result, err := e.ExecuteTask(context.Background(), startTask(t, instance, activityWorkflow, "world"))
	require.NoError(t, err)

	hs.history = result.Executed
	scheduled := result.ActivityEvents[0]

	// A fresh executor simulates a crashed worker picking up the instance
	// again. The recorded activity must not be dispatched a second time.
	e2 := newTestExecutor(t, r, instance, hs)

	activityResult, err := converter.DefaultConverter.To("hello world")
	require.NoError(t, err)

	result, err = e2.ExecuteTask(context.Background(), &backend.WorkflowTask{
		ID:               uuid.NewString(),
		WorkflowInstance: instance,
		State:            core.WorkflowInstanceStateActive,
		LastSequenceID:   3,
		NewEvents: []*history.Event{
			history.NewPendingEvent(clock.NewMock().Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{
				Result: activityResult,
			}, history.ScheduleEventID(scheduled.ScheduleEventID)),
		},
	})
	require.NoError(t, err)

	require.Empty(t, result.ActivityEvents)
	require.Equal(t, core.WorkflowInstanceStateFinished, result.State)
}

func TestExecuteTask_ContinueAsNewCarriesInstanceID(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(signalLoopWorkflow))

	instance := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	e := newTestExecutor(t, r, instance, &historyStub{})

	result, err := e.ExecuteTask(context.Background(), startTask(t, instance, signalLoopWorkflow, []string{}))
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateActive, result.State)

	arg, err := converter.DefaultConverter.To("first answer")
	require.NoError(t, err)

	result, err = e.ExecuteTask(context.Background(), &backend.WorkflowTask{
		ID:               uuid.NewString(),
		WorkflowInstance: instance,
		State:            core.WorkflowInstanceStateActive,
		LastSequenceID:   2,
		NewEvents: []*history.Event{
			history.NewPendingEvent(clock.NewMock().Now(), history.EventType_SignalReceived, &history.SignalReceivedAttributes{
				Name: "answer",
				Arg:  arg,
			}),
		},
	})
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateContinuedAsNew, result.State)

	// Custom status was set before the continuation
	var status int
	require.NoError(t, converter.DefaultConverter.From(result.CustomStatus, &status))
	require.Equal(t, 0, status)

	require.Len(t, result.WorkflowEvents, 1)
	started := result.WorkflowEvents[0]
	require.Equal(t, history.EventType_WorkflowExecutionStarted, started.HistoryEvent.Type)
	require.Equal(t, instance.InstanceID, started.WorkflowInstance.InstanceID)
	require.NotEqual(t, instance.ExecutionID, started.WorkflowInstance.ExecutionID)
}

func TestExecuteTask_SignalAfterCompletionStaysPending(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterWorkflow(signalLoopWorkflow))

	instance := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	e := newTestExecutor(t, r, instance, &historyStub{})

	_, err := e.ExecuteTask(context.Background(), startTask(t, instance, signalLoopWorkflow, []string{}))
	require.NoError(t, err)

	final, err := converter.DefaultConverter.To("done")
	require.NoError(t, err)
	extra, err := converter.DefaultConverter.To("too late")
	require.NoError(t, err)

	extraEvent := history.NewPendingEvent(clock.NewMock().Now(), history.EventType_SignalReceived, &history.SignalReceivedAttributes{
		Name: "answer",
		Arg:  extra,
	})

	result, err := e.ExecuteTask(context.Background(), &backend.WorkflowTask{
		ID:               uuid.NewString(),
		WorkflowInstance: instance,
		State:            core.WorkflowInstanceStateActive,
		LastSequenceID:   2,
		NewEvents: []*history.Event{
			history.NewPendingEvent(clock.NewMock().Now(), history.EventType_SignalReceived, &history.SignalReceivedAttributes{
				Name: "answer",
				Arg:  final,
			}),
			extraEvent,
		},
	})
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateFinished, result.State)

	// The late signal is not part of the executed events, it stays pending
	for _, event := range result.Executed {
		require.NotEqual(t, extraEvent.ID, event.ID)
	}
}

func TestExecuteTask_DiscardsTaskForFinishedInstance(t *testing.T) {
	r := registry.New()

	instance := core.NewWorkflowInstance(uuid.NewString(), uuid.NewString())
	e := newTestExecutor(t, r, instance, &historyStub{})

	result, err := e.ExecuteTask(context.Background(), &backend.WorkflowTask{
		ID:               uuid.NewString(),
		WorkflowInstance: instance,
		State:            core.WorkflowInstanceStateFinished,
		NewEvents: []*history.Event{
			history.NewPendingEvent(clock.NewMock().Now(), history.EventType_SignalReceived, &history.SignalReceivedAttributes{Name: "answer"}),
		},
	})
	require.NoError(t, err)

	require.Equal(t, core.WorkflowInstanceStateFinished, result.State)
	require.Empty(t, result.Executed)
	require.Empty(t, result.ActivityEvents)
}
