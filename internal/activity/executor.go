package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/internal/args"
	"github.com/enqbot/enqbot/internal/workflowerrors"
	"github.com/enqbot/enqbot/registry"
)

// Executor invokes registered activity functions for scheduled activity
// events.
type Executor struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	registry *registry.Registry
	cv       converter.Converter
}

func NewExecutor(logger *slog.Logger, tracer trace.Tracer, r *registry.Registry, cv converter.Converter) *Executor {
	return &Executor{
		logger:   logger,
		tracer:   tracer,
		registry: r,
		cv:       cv,
	}
}

func (e *Executor) ExecuteActivity(ctx context.Context, task *backend.ActivityTask) (_ payload.Payload, err error) {
	a, ok := task.Event.Attributes.(*history.ActivityScheduledAttributes)
	if !ok {
		return nil, errors.New("invalid attributes for activity task")
	}

	activityFn, err := e.registry.GetActivity(a.Name)
	if err != nil {
		return nil, workflowerrors.NewPermanentError(fmt.Errorf("activity %q not found", a.Name))
	}

	fn := reflect.ValueOf(activityFn)

	argValues, addContext, err := args.InputsToArgs(e.cv, fn, a.Inputs)
	if err != nil {
		return nil, workflowerrors.NewPermanentError(fmt.Errorf("converting activity inputs: %w", err))
	}

	as := NewActivityState(task.Event.ID, task.WorkflowInstance, e.logger)
	ctx = WithActivityState(ctx, as)

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("ActivityTaskExecution: %s", a.Name),
		trace.WithAttributes(
			attribute.String("activity", a.Name),
			attribute.String("instance_id", task.WorkflowInstance.InstanceID),
		))
	defer span.End()

	if addContext {
		argValues[0] = reflect.ValueOf(ctx)
	}

	defer func() {
		if r := recover(); r != nil {
			err = workflowerrors.NewPanicError(r)
		}
	}()

	r := fn.Call(argValues)

	if len(r) < 1 || len(r) > 2 {
		return nil, errors.New("activity must return (error) or (result, error)")
	}

	errResult := r[len(r)-1]
	if !errResult.IsNil() {
		errInterface, ok := errResult.Interface().(error)
		if !ok {
			return nil, fmt.Errorf("activity error result does not satisfy error interface (%T): %v", errResult, errResult)
		}

		return nil, errInterface
	}

	if len(r) > 1 {
		result, err := e.cv.To(r[0].Interface())
		if err != nil {
			return nil, fmt.Errorf("converting activity result: %w", err)
		}

		return result, nil
	}

	return nil, nil
}

// Logger returns the activity-scoped logger. Must only be called from within
// an executing activity.
func Logger(ctx context.Context) *slog.Logger {
	return GetActivityState(ctx).Logger
}
