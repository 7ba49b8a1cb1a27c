package executor

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/internal/args"
	"github.com/enqbot/enqbot/internal/contextvalue"
	"github.com/enqbot/enqbot/internal/sync"
	"github.com/enqbot/enqbot/internal/workflowerrors"
)

// workflow drives the user workflow function on a coroutine scheduler.
type workflow struct {
	s      *sync.Scheduler
	fn     reflect.Value
	result payload.Payload
	err    error
}

func newWorkflow(workflowFn reflect.Value) *workflow {
	return &workflow{
		s:  sync.NewScheduler(),
		fn: workflowFn,
	}
}

func (w *workflow) Execute(ctx sync.Context, inputs []payload.Payload) error {
	w.s.NewCoroutine(ctx, func(ctx sync.Context) error {
		converter := contextvalue.Converter(ctx)

		args, addContext, err := args.InputsToArgs(converter, w.fn, inputs)
		if err != nil {
			return fmt.Errorf("converting workflow inputs: %w", err)
		}

		if !addContext {
			return errors.New("workflow must accept a workflow context as its first argument")
		}

		args[0] = reflect.ValueOf(ctx)

		defer func() {
			if r := recover(); r != nil {
				w.err = workflowerrors.NewPanicError(r)
			}
		}()

		r := w.fn.Call(args)

		if len(r) < 1 || len(r) > 2 {
			return errors.New("workflow must return (error) or (result, error)")
		}

		if len(r) > 1 {
			result, err := converter.To(r[0].Interface())
			if err != nil {
				return fmt.Errorf("converting workflow result: %w", err)
			}

			w.result = result
		}

		errResult := r[len(r)-1]
		if !errResult.IsNil() {
			errInterface, ok := errResult.Interface().(error)
			if !ok {
				return fmt.Errorf("workflow error result does not satisfy error interface (%T): %v", errResult, errResult)
			}

			w.err = errInterface
		}

		return nil
	})

	return w.s.Execute()
}

func (w *workflow) Continue() error {
	return w.s.Execute()
}

func (w *workflow) Completed() bool {
	return w.s.RunningCoroutines() == 0
}

// Result returns the return value of a finished workflow as a payload
func (w *workflow) Result() payload.Payload {
	return w.result
}

// Error returns the error of a finished workflow, can be nil
func (w *workflow) Error() error {
	return w.err
}

func (w *workflow) Close() {
	// End coroutine execution to prevent goroutine leaks
	w.s.Exit()
}
