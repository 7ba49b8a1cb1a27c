package worker

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/core"
	"github.com/enqbot/enqbot/registry"
	"github.com/enqbot/enqbot/workflow/executor"
)

type workflowTaskWorker struct {
	backend  backend.Backend
	registry *registry.Registry
	cache    executor.Cache
	clock    clock.Clock
}

var _ TaskWorker[backend.WorkflowTask, executor.ExecutionResult] = (*workflowTaskWorker)(nil)

func newWorkflowTaskWorker(b backend.Backend, r *registry.Registry, cache executor.Cache) *workflowTaskWorker {
	return &workflowTaskWorker{
		backend:  b,
		registry: r,
		cache:    cache,
		clock:    clock.New(),
	}
}

func (wtw *workflowTaskWorker) Get(ctx context.Context) (*backend.WorkflowTask, error) {
	return wtw.backend.GetWorkflowTask(ctx)
}

func (wtw *workflowTaskWorker) Extend(ctx context.Context, t *backend.WorkflowTask) error {
	return wtw.backend.ExtendWorkflowTask(ctx, t)
}

func (wtw *workflowTaskWorker) Execute(ctx context.Context, t *backend.WorkflowTask) (*executor.ExecutionResult, error) {
	e, err := wtw.getExecutor(ctx, t)
	if err != nil {
		return nil, err
	}

	result, err := e.ExecuteTask(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("executing workflow task: %w", err)
	}

	wtw.backend.Metrics().Counter("workflow_tasks_processed", nil, 1)

	return result, nil
}

func (wtw *workflowTaskWorker) Complete(ctx context.Context, t *backend.WorkflowTask, result *executor.ExecutionResult) error {
	if err := wtw.backend.CompleteWorkflowTask(
		ctx, t, result.State, result.CustomStatus, result.Executed, result.ActivityEvents, result.WorkflowEvents,
	); err != nil {
		return fmt.Errorf("completing workflow task: %w", err)
	}

	if result.State != core.WorkflowInstanceStateActive {
		// The execution is done, its executor is not needed again
		if err := wtw.cache.Evict(ctx, t.WorkflowInstance); err != nil {
			return fmt.Errorf("evicting workflow executor: %w", err)
		}
	}

	return nil
}

func (wtw *workflowTaskWorker) getExecutor(ctx context.Context, t *backend.WorkflowTask) (executor.WorkflowExecutor, error) {
	if e, ok, err := wtw.cache.Get(ctx, t.WorkflowInstance); err != nil {
		return nil, fmt.Errorf("getting cached workflow executor: %w", err)
	} else if ok {
		return e, nil
	}

	e, err := executor.NewExecutor(
		wtw.backend.Logger(),
		wtw.registry,
		wtw.backend.Converter(),
		wtw.backend,
		t.WorkflowInstance,
		wtw.clock,
	)
	if err != nil {
		return nil, fmt.Errorf("creating workflow executor: %w", err)
	}

	if err := wtw.cache.Store(ctx, t.WorkflowInstance, e); err != nil {
		return nil, fmt.Errorf("caching workflow executor: %w", err)
	}

	return e, nil
}
