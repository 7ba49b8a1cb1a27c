package workflow

import (
	"fmt"

	"github.com/enqbot/enqbot/internal/args"
	"github.com/enqbot/enqbot/internal/continueasnew"
	"github.com/enqbot/enqbot/internal/contextvalue"
)

// ContinueAsNew ends the current execution and restarts the workflow with the
// given arguments, keeping the same instance id. The returned error must be
// returned from the workflow function.
func ContinueAsNew(ctx Context, wfArgs ...any) error {
	cv := contextvalue.Converter(ctx)

	inputs, err := args.ArgsToInputs(cv, wfArgs...)
	if err != nil {
		return fmt.Errorf("converting workflow args: %w", err)
	}

	return continueasnew.NewError(inputs)
}
