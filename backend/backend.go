package backend

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/metrics"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/core"
)

var (
	ErrInstanceNotFound      = errors.New("workflow instance not found")
	ErrInstanceAlreadyExists = errors.New("workflow instance already exists")
)

const TracerName = "enqbot"

type Backend interface {
	// CreateWorkflowInstance creates a new workflow instance. Fails with
	// ErrInstanceAlreadyExists if an active execution exists for the
	// instance id.
	CreateWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error

	// SignalWorkflow delivers an event to the active execution of the given
	// instance. Fails with ErrInstanceNotFound if there is none.
	SignalWorkflow(ctx context.Context, instanceID string, event *history.Event) error

	// GetWorkflowInstanceStatus returns the run state and custom status of
	// the given instance. Fails with ErrInstanceNotFound if the instance does
	// not exist or has been removed.
	GetWorkflowInstanceStatus(ctx context.Context, instanceID string) (*core.WorkflowInstanceStatus, error)

	// RemoveWorkflowInstance removes all state of the given instance, making
	// the id available for a fresh start. Removing an unknown instance is not
	// an error.
	RemoveWorkflowInstance(ctx context.Context, instanceID string) error

	// GetWorkflowInstanceHistory returns the history of the given execution.
	// When lastSequenceID is given, only events after that sequence id are
	// returned.
	GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error)

	// GetWorkflowTask returns a pending workflow task, or nil if there is
	// none. A returned task is locked for the caller until completed or the
	// lock expires.
	GetWorkflowTask(ctx context.Context) (*WorkflowTask, error)

	// ExtendWorkflowTask extends the lock of a workflow task
	ExtendWorkflowTask(ctx context.Context, task *WorkflowTask) error

	// CompleteWorkflowTask checkpoints a workflow task in a single atomic
	// step: consumed events are removed, executed events are appended to the
	// history, the custom status and instance state are updated, activity
	// events become visible to activity workers, and workflowEvents are
	// delivered to their target executions.
	CompleteWorkflowTask(
		ctx context.Context, task *WorkflowTask, state core.WorkflowInstanceState, customStatus payload.Payload,
		executedEvents, activityEvents []*history.Event, workflowEvents []*history.WorkflowEvent) error

	// GetActivityTask returns a pending activity task, or nil if there is
	// none. A returned task is locked for the caller until completed or the
	// lock expires.
	GetActivityTask(ctx context.Context) (*ActivityTask, error)

	// ExtendActivityTask extends the lock of an activity task
	ExtendActivityTask(ctx context.Context, task *ActivityTask) error

	// CompleteActivityTask completes an activity task and delivers the result
	// event to the workflow execution that scheduled it
	CompleteActivityTask(ctx context.Context, task *ActivityTask, result *history.Event) error

	// Logger returns the configured logger for the backend
	Logger() *slog.Logger

	// Tracer returns the configured tracer for the backend
	Tracer() trace.Tracer

	// Metrics returns the configured metrics client for the backend
	Metrics() metrics.Client

	// Converter returns the configured payload converter for the backend
	Converter() converter.Converter

	// Options returns the configured options for the backend
	Options() *Options

	// Close closes any underlying resources
	Close() error
}
