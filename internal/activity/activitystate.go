package activity

import (
	"context"
	"log/slog"

	"github.com/enqbot/enqbot/core"
)

// State is the per-invocation state of a running activity.
type State struct {
	ActivityID string
	Instance   *core.WorkflowInstance
	Logger     *slog.Logger
}

func NewActivityState(activityID string, instance *core.WorkflowInstance, logger *slog.Logger) *State {
	return &State{
		ActivityID: activityID,
		Instance:   instance,
		Logger: logger.With(
			"activity_id", activityID,
			"instance_id", instance.InstanceID,
			"execution_id", instance.ExecutionID,
		),
	}
}

type key int

var activityCtxKey key

func WithActivityState(ctx context.Context, as *State) context.Context {
	return context.WithValue(ctx, activityCtxKey, as)
}

func GetActivityState(ctx context.Context) *State {
	return ctx.Value(activityCtxKey).(*State)
}
