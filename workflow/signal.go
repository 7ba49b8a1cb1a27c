package workflow

import (
	"github.com/enqbot/enqbot/internal/contextvalue"
	"github.com/enqbot/enqbot/internal/workflowstate"
)

// NewSignalChannel returns the channel for the given signal name. Signals
// received before the first call are buffered and delivered in order.
func NewSignalChannel[T any](ctx Context, name string) Channel[T] {
	wfState := workflowstate.WorkflowState(ctx)

	return workflowstate.GetSignalChannel[T](ctx, contextvalue.Converter(ctx), wfState, name)
}
