package workflow

import (
	"fmt"

	"github.com/enqbot/enqbot/internal/contextvalue"
	"github.com/enqbot/enqbot/internal/workflowstate"
)

// SetCustomStatus sets the externally queryable status of the calling
// workflow instance. The status becomes visible atomically with the effects
// of the current workflow task and survives ContinueAsNew.
func SetCustomStatus(ctx Context, status any) error {
	cv := contextvalue.Converter(ctx)

	p, err := cv.To(status)
	if err != nil {
		return fmt.Errorf("converting custom status: %w", err)
	}

	workflowstate.WorkflowState(ctx).SetCustomStatus(p)

	return nil
}
