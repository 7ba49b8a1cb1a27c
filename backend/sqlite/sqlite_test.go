package sqlite

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/core"
)

func newTestBackend(t *testing.T) backend.Backend {
	t.Helper()

	b := NewInMemoryBackend(backend.WithLogger(slog.New(slog.DiscardHandler)))
	t.Cleanup(func() {
		require.NoError(t, b.Close())
	})

	return b
}

func startEvent(name string) *history.Event {
	return history.NewPendingEvent(time.Now(), history.EventType_WorkflowExecutionStarted, &history.ExecutionStartedAttributes{
		Name: name,
	})
}

func signalEvent(name string, arg payload.Payload) *history.Event {
	return history.NewPendingEvent(time.Now(), history.EventType_SignalReceived, &history.SignalReceivedAttributes{
		Name: name,
		Arg:  arg,
	})
}

func TestCreateWorkflowInstance(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	instance := core.NewWorkflowInstance("user-1", uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, instance, startEvent("wf")))

	status, err := b.GetWorkflowInstanceStatus(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateActive, status.State)
	require.Nil(t, status.CustomStatus)
}

func TestCreateWorkflowInstance_AlreadyExists(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.CreateWorkflowInstance(ctx, core.NewWorkflowInstance("user-1", uuid.NewString()), startEvent("wf")))

	err := b.CreateWorkflowInstance(ctx, core.NewWorkflowInstance("user-1", uuid.NewString()), startEvent("wf"))
	require.ErrorIs(t, err, backend.ErrInstanceAlreadyExists)
}

func TestSignalWorkflow_InstanceNotFound(t *testing.T) {
	b := newTestBackend(t)

	err := b.SignalWorkflow(context.Background(), "missing", signalEvent("answer", nil))
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)
}

func TestGetWorkflowInstanceStatus_InstanceNotFound(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.GetWorkflowInstanceStatus(context.Background(), "missing")
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)
}

func TestRemoveWorkflowInstance(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	// Removing an unknown instance is not an error
	require.NoError(t, b.RemoveWorkflowInstance(ctx, "user-1"))

	require.NoError(t, b.CreateWorkflowInstance(ctx, core.NewWorkflowInstance("user-1", uuid.NewString()), startEvent("wf")))
	require.NoError(t, b.RemoveWorkflowInstance(ctx, "user-1"))

	_, err := b.GetWorkflowInstanceStatus(ctx, "user-1")
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)

	// The id is available again after the purge
	require.NoError(t, b.CreateWorkflowInstance(ctx, core.NewWorkflowInstance("user-1", uuid.NewString()), startEvent("wf")))
}

func TestGetWorkflowTask(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	task, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.Nil(t, task)

	instance := core.NewWorkflowInstance("user-1", uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, instance, startEvent("wf")))

	task, err = b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, instance.InstanceID, task.WorkflowInstance.InstanceID)
	require.Equal(t, instance.ExecutionID, task.WorkflowInstance.ExecutionID)
	require.Len(t, task.NewEvents, 1)
	require.Equal(t, history.EventType_WorkflowExecutionStarted, task.NewEvents[0].Type)
	require.Equal(t, int64(0), task.LastSequenceID)

	// The instance is locked, no other worker gets the task
	task2, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.Nil(t, task2)
}

func TestCompleteWorkflowTask_CheckpointsStatusWithActivity(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	cv := converter.DefaultConverter

	instance := core.NewWorkflowInstance("user-1", uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, instance, startEvent("wf")))

	task, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)

	scheduled := history.NewPendingEvent(time.Now(), history.EventType_ActivityScheduled, &history.ActivityScheduledAttributes{
		Name: "SendNextQuestion",
	}, history.ScheduleEventID(1))

	executed := append(task.NewEvents, scheduled)
	for i, e := range executed {
		e.SequenceID = int64(i + 1)
	}

	customStatus, err := cv.To(0)
	require.NoError(t, err)

	require.NoError(t, b.CompleteWorkflowTask(
		ctx, task, core.WorkflowInstanceStateActive, customStatus,
		executed, []*history.Event{scheduled}, nil,
	))

	// Custom status and the activity task become visible together
	status, err := b.GetWorkflowInstanceStatus(ctx, "user-1")
	require.NoError(t, err)

	var index int
	require.NoError(t, cv.From(status.CustomStatus, &index))
	require.Equal(t, 0, index)

	activityTask, err := b.GetActivityTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, activityTask)
	require.Equal(t, history.EventType_ActivityScheduled, activityTask.Event.Type)

	h, err := b.GetWorkflowInstanceHistory(ctx, instance, nil)
	require.NoError(t, err)
	require.Len(t, h, 2)

	// Completing the activity queues the result for the workflow
	result := history.NewPendingEvent(time.Now(), history.EventType_ActivityCompleted, &history.ActivityCompletedAttributes{}, history.ScheduleEventID(1))
	require.NoError(t, b.CompleteActivityTask(ctx, activityTask, result))

	task, err = b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Len(t, task.NewEvents, 1)
	require.Equal(t, history.EventType_ActivityCompleted, task.NewEvents[0].Type)
	require.Equal(t, int64(2), task.LastSequenceID)
}

func TestCompleteWorkflowTask_ContinueAsNew(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	cv := converter.DefaultConverter

	instance := core.NewWorkflowInstance("user-1", uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, instance, startEvent("wf")))

	task, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)

	// A second answer arrives while the task is being processed
	lateArg, err := cv.To("late answer")
	require.NoError(t, err)
	lateSignal := signalEvent("answer", lateArg)
	require.NoError(t, b.SignalWorkflow(ctx, "user-1", lateSignal))

	executed := task.NewEvents
	for i, e := range executed {
		e.SequenceID = int64(i + 1)
	}

	customStatus, err := cv.To(0)
	require.NoError(t, err)

	continued := core.NewWorkflowInstance("user-1", uuid.NewString())

	require.NoError(t, b.CompleteWorkflowTask(
		ctx, task, core.WorkflowInstanceStateContinuedAsNew, customStatus,
		executed, nil,
		[]*history.WorkflowEvent{
			{
				WorkflowInstance: continued,
				HistoryEvent:     startEvent("wf"),
			},
		},
	))

	// The new execution carries the custom status of the finished one
	status, err := b.GetWorkflowInstanceStatus(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateActive, status.State)
	require.Equal(t, continued.ExecutionID, status.Instance.ExecutionID)

	var index int
	require.NoError(t, cv.From(status.CustomStatus, &index))
	require.Equal(t, 0, index)

	// The late signal was redirected to the new execution
	task, err = b.GetWorkflowTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, continued.ExecutionID, task.WorkflowInstance.ExecutionID)

	types := make([]history.EventType, 0, len(task.NewEvents))
	for _, e := range task.NewEvents {
		types = append(types, e.Type)
	}
	require.Contains(t, types, history.EventType_WorkflowExecutionStarted)
	require.Contains(t, types, history.EventType_SignalReceived)
}

func TestSignalWorkflow_FinishedInstance(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	instance := core.NewWorkflowInstance("user-1", uuid.NewString())
	require.NoError(t, b.CreateWorkflowInstance(ctx, instance, startEvent("wf")))

	task, err := b.GetWorkflowTask(ctx)
	require.NoError(t, err)

	executed := task.NewEvents
	for i, e := range executed {
		e.SequenceID = int64(i + 1)
	}

	require.NoError(t, b.CompleteWorkflowTask(
		ctx, task, core.WorkflowInstanceStateFinished, nil, executed, nil, nil,
	))

	// A finished instance has no active execution to signal
	err = b.SignalWorkflow(ctx, "user-1", signalEvent("answer", nil))
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)
}
