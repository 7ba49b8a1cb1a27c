package workflow

import (
	"fmt"
	"time"

	"github.com/enqbot/enqbot/internal/args"
	"github.com/enqbot/enqbot/internal/command"
	"github.com/enqbot/enqbot/internal/contextvalue"
	"github.com/enqbot/enqbot/internal/fn"
	"github.com/enqbot/enqbot/internal/sync"
	"github.com/enqbot/enqbot/internal/workflowstate"
)

type ActivityOptions struct {
	RetryPolicy RetryPolicy
}

var DefaultActivityOptions = ActivityOptions{
	RetryPolicy: RetryPolicy{
		MaxAttempts:        3,
		InitialInterval:    time.Second,
		BackoffCoefficient: 2,
		MaxInterval:        30 * time.Second,
	},
}

// ExecuteActivity schedules the given activity and returns a future for its
// result. During replay a recorded result is returned instead of running the
// activity again.
func ExecuteActivity[TResult any](ctx Context, options ActivityOptions, activity any, activityArgs ...any) Future[TResult] {
	f := sync.NewFuture[TResult]()

	wfState := workflowstate.WorkflowState(ctx)
	scheduleEventID := wfState.GetNextScheduleEventID()

	cv := contextvalue.Converter(ctx)

	inputs, err := args.ArgsToInputs(cv, activityArgs...)
	if err != nil {
		var zero TResult
		f.Set(zero, fmt.Errorf("converting activity args: %w", err))
		return f
	}

	name := fn.Name(activity)

	cmd := command.NewScheduleActivityCommand(scheduleEventID, name, inputs, options.RetryPolicy)
	wfState.AddCommand(cmd)
	wfState.TrackFuture(scheduleEventID, workflowstate.AsDecodingSettable(cv, f), name)

	return f
}
