package history

import (
	"time"

	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/internal/workflowerrors"
)

type ExecutionStartedAttributes struct {
	Name string `json:"name,omitempty"`

	Inputs []payload.Payload `json:"inputs,omitempty"`
}

type ExecutionCompletedAttributes struct {
	Result payload.Payload `json:"result,omitempty"`

	Error *workflowerrors.Error `json:"error,omitempty"`
}

type ExecutionContinuedAsNewAttributes struct {
	Result payload.Payload `json:"result,omitempty"`

	ContinuedExecutionID string `json:"continued_execution_id,omitempty"`
}

type WorkflowTaskStartedAttributes struct {
}

// RetryPolicy controls how the activity worker retries a failed activity
// before reporting it as failed to the workflow.
type RetryPolicy struct {
	MaxAttempts        int           `json:"max_attempts,omitempty"`
	InitialInterval    time.Duration `json:"initial_interval,omitempty"`
	BackoffCoefficient float64       `json:"backoff_coefficient,omitempty"`
	MaxInterval        time.Duration `json:"max_interval,omitempty"`
}

type ActivityScheduledAttributes struct {
	Name string `json:"name,omitempty"`

	Inputs []payload.Payload `json:"inputs,omitempty"`

	Retry RetryPolicy `json:"retry,omitempty"`
}

type ActivityCompletedAttributes struct {
	Result payload.Payload `json:"result,omitempty"`
}

type ActivityFailedAttributes struct {
	Error *workflowerrors.Error `json:"error,omitempty"`
}

type SignalReceivedAttributes struct {
	Name string `json:"name,omitempty"`

	Arg payload.Payload `json:"arg,omitempty"`
}
