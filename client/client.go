package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/core"
	"github.com/enqbot/enqbot/internal/args"
	"github.com/enqbot/enqbot/internal/fn"
	"github.com/enqbot/enqbot/internal/workflowerrors"
)

type WorkflowInstanceOptions struct {
	InstanceID string
}

// Client starts, signals, queries, and removes workflow instances.
type Client struct {
	backend backend.Backend
	clock   clock.Clock
}

func New(backend backend.Backend) *Client {
	return &Client{
		backend: backend,
		clock:   clock.New(),
	}
}

// CreateWorkflowInstance creates a new workflow instance of the given
// workflow. Fails with backend.ErrInstanceAlreadyExists if an active
// execution with the same instance id exists.
func (c *Client) CreateWorkflowInstance(ctx context.Context, options WorkflowInstanceOptions, workflow any, wfArgs ...any) (*core.WorkflowInstance, error) {
	inputs, err := args.ArgsToInputs(c.backend.Converter(), wfArgs...)
	if err != nil {
		return nil, fmt.Errorf("converting workflow inputs: %w", err)
	}

	instanceID := options.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	workflowName := fn.Name(workflow)

	instance := core.NewWorkflowInstance(instanceID, uuid.NewString())

	event := history.NewPendingEvent(
		c.clock.Now(),
		history.EventType_WorkflowExecutionStarted,
		&history.ExecutionStartedAttributes{
			Name:   workflowName,
			Inputs: inputs,
		},
	)

	ctx, span := c.backend.Tracer().Start(ctx, fmt.Sprintf("CreateWorkflowInstance: %s", workflowName),
		trace.WithAttributes(
			attribute.String("instance_id", instance.InstanceID),
			attribute.String("workflow", workflowName),
		))
	defer span.End()

	if err := c.backend.CreateWorkflowInstance(ctx, instance, event); err != nil {
		return nil, fmt.Errorf("creating workflow instance: %w", err)
	}

	c.backend.Metrics().Counter("workflow_instances_created", nil, 1)

	return instance, nil
}

// SignalWorkflow delivers a named signal with the given argument to the
// active execution of a workflow instance.
func (c *Client) SignalWorkflow(ctx context.Context, instanceID string, name string, arg any) error {
	input, err := c.backend.Converter().To(arg)
	if err != nil {
		return fmt.Errorf("converting signal argument: %w", err)
	}

	event := history.NewPendingEvent(
		c.clock.Now(),
		history.EventType_SignalReceived,
		&history.SignalReceivedAttributes{
			Name: name,
			Arg:  input,
		},
	)

	ctx, span := c.backend.Tracer().Start(ctx, fmt.Sprintf("SignalWorkflow: %s", name),
		trace.WithAttributes(
			attribute.String("instance_id", instanceID),
			attribute.String("signal", name),
		))
	defer span.End()

	if err := c.backend.SignalWorkflow(ctx, instanceID, event); err != nil {
		return err
	}

	c.backend.Metrics().Counter("workflow_signals_delivered", nil, 1)

	return nil
}

// GetWorkflowInstanceStatus returns the run state and custom status of the
// most recent execution of the given instance.
func (c *Client) GetWorkflowInstanceStatus(ctx context.Context, instanceID string) (*core.WorkflowInstanceStatus, error) {
	return c.backend.GetWorkflowInstanceStatus(ctx, instanceID)
}

// RemoveWorkflowInstance removes all state of the given instance. Removing an
// unknown instance is not an error.
func (c *Client) RemoveWorkflowInstance(ctx context.Context, instanceID string) error {
	return c.backend.RemoveWorkflowInstance(ctx, instanceID)
}

// WaitForWorkflowInstance polls the given instance until it reaches a
// finished state or the timeout elapses.
func (c *Client) WaitForWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, timeout time.Duration) error {
	if timeout == 0 {
		timeout = time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(100*time.Millisecond), ctx)

	return backoff.Retry(func() error {
		status, err := c.backend.GetWorkflowInstanceStatus(ctx, instance.InstanceID)
		if err != nil {
			return backoff.Permanent(err)
		}

		if status.State == core.WorkflowInstanceStateFinished {
			return nil
		}

		return errors.New("workflow instance not finished")
	}, b)
}

// GetWorkflowResult returns the result of a finished workflow execution.
func GetWorkflowResult[T any](ctx context.Context, c *Client, instance *core.WorkflowInstance, timeout time.Duration) (T, error) {
	var zero T

	if err := c.WaitForWorkflowInstance(ctx, instance, timeout); err != nil {
		return zero, fmt.Errorf("workflow did not finish in time: %w", err)
	}

	status, err := c.backend.GetWorkflowInstanceStatus(ctx, instance.InstanceID)
	if err != nil {
		return zero, err
	}

	h, err := c.backend.GetWorkflowInstanceHistory(ctx, status.Instance, nil)
	if err != nil {
		return zero, fmt.Errorf("getting workflow history: %w", err)
	}

	for i := len(h) - 1; i >= 0; i-- {
		event := h[i]
		if event.Type != history.EventType_WorkflowExecutionFinished {
			continue
		}

		a := event.Attributes.(*history.ExecutionCompletedAttributes)
		if a.Error != nil {
			return zero, workflowerrors.ToError(a.Error)
		}

		var result T
		if a.Result != nil {
			if err := c.backend.Converter().From(a.Result, &result); err != nil {
				return zero, fmt.Errorf("converting workflow result: %w", err)
			}
		}

		return result, nil
	}

	return zero, errors.New("workflow finished, but no result found in history")
}
