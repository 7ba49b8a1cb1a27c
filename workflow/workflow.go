// Package workflow is the API surface available to workflow functions.
// Workflow code must be deterministic: all side effects go through activities
// and all inputs arrive through arguments or signal channels.
package workflow

import (
	"log/slog"
	"time"

	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/core"
	"github.com/enqbot/enqbot/internal/sync"
	"github.com/enqbot/enqbot/internal/workflowstate"
)

type (
	// Context is passed to workflow functions as their first argument
	Context = sync.Context

	// Instance identifies one logical workflow instance
	Instance = core.WorkflowInstance

	Future[T any]  = sync.Future[T]
	Channel[T any] = sync.Channel[T]

	// RetryPolicy controls activity retries
	RetryPolicy = history.RetryPolicy
)

// WorkflowInstance returns the instance the calling workflow runs as
func WorkflowInstance(ctx Context) *Instance {
	return workflowstate.WorkflowState(ctx).Instance()
}

// Now returns the timestamp of the current workflow task. Deterministic under
// replay, unlike time.Now.
func Now(ctx Context) time.Time {
	return workflowstate.WorkflowState(ctx).Time()
}

// Replaying returns true while recorded history is being replayed
func Replaying(ctx Context) bool {
	return workflowstate.WorkflowState(ctx).Replaying()
}

// Logger returns a logger that suppresses records while replaying
func Logger(ctx Context) *slog.Logger {
	return workflowstate.WorkflowState(ctx).Logger()
}
