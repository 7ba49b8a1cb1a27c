package worker

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/internal/activity"
	"github.com/enqbot/enqbot/internal/workflowerrors"
	"github.com/enqbot/enqbot/registry"
)

type activityTaskWorker struct {
	backend  backend.Backend
	executor *activity.Executor
	clock    clock.Clock
}

var _ TaskWorker[backend.ActivityTask, history.Event] = (*activityTaskWorker)(nil)

func newActivityTaskWorker(b backend.Backend, r *registry.Registry) *activityTaskWorker {
	return &activityTaskWorker{
		backend:  b,
		executor: activity.NewExecutor(b.Logger(), b.Tracer(), r, b.Converter()),
		clock:    clock.New(),
	}
}

func (atw *activityTaskWorker) Get(ctx context.Context) (*backend.ActivityTask, error) {
	return atw.backend.GetActivityTask(ctx)
}

func (atw *activityTaskWorker) Extend(ctx context.Context, t *backend.ActivityTask) error {
	return atw.backend.ExtendActivityTask(ctx, t)
}

func (atw *activityTaskWorker) Execute(ctx context.Context, t *backend.ActivityTask) (*history.Event, error) {
	a, ok := t.Event.Attributes.(*history.ActivityScheduledAttributes)
	if !ok {
		return nil, errors.New("invalid attributes for activity task")
	}

	result, err := atw.executeWithRetries(ctx, t, a.Retry)

	atw.backend.Metrics().Counter("activity_tasks_processed", nil, 1)

	var event *history.Event
	if err != nil {
		event = history.NewPendingEvent(
			atw.clock.Now(),
			history.EventType_ActivityFailed,
			&history.ActivityFailedAttributes{
				Error: workflowerrors.FromError(err),
			},
			history.ScheduleEventID(t.Event.ScheduleEventID),
		)
	} else {
		event = history.NewPendingEvent(
			atw.clock.Now(),
			history.EventType_ActivityCompleted,
			&history.ActivityCompletedAttributes{
				Result: result,
			},
			history.ScheduleEventID(t.Event.ScheduleEventID),
		)
	}

	return event, nil
}

func (atw *activityTaskWorker) executeWithRetries(ctx context.Context, t *backend.ActivityTask, retry history.RetryPolicy) (payload.Payload, error) {
	op := func() (payload.Payload, error) {
		result, err := atw.executor.ExecuteActivity(ctx, t)
		if err != nil && !workflowerrors.CanRetry(err) {
			return nil, backoff.Permanent(err)
		}

		return result, err
	}

	if retry.MaxAttempts <= 1 {
		result, err := op()
		var perr *backoff.PermanentError
		if errors.As(err, &perr) {
			return result, perr.Unwrap()
		}

		return result, err
	}

	eb := backoff.NewExponentialBackOff()
	if retry.InitialInterval > 0 {
		eb.InitialInterval = retry.InitialInterval
	}
	if retry.BackoffCoefficient > 0 {
		eb.Multiplier = retry.BackoffCoefficient
	}
	if retry.MaxInterval > 0 {
		eb.MaxInterval = retry.MaxInterval
	}
	eb.MaxElapsedTime = 0 * time.Second

	return backoff.RetryWithData(
		op,
		backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retry.MaxAttempts-1)), ctx),
	)
}

func (atw *activityTaskWorker) Complete(ctx context.Context, t *backend.ActivityTask, result *history.Event) error {
	return atw.backend.CompleteActivityTask(ctx, t, result)
}
