package worker

import (
	"context"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/registry"
	"github.com/enqbot/enqbot/workflow/executor"
)

// Worker polls the backend for workflow and activity tasks and processes them
// with registered workflow and activity functions.
type Worker struct {
	backend backend.Backend

	registry *registry.Registry

	workflowPoller *poller[backend.WorkflowTask, executor.ExecutionResult]
	activityPoller *poller[backend.ActivityTask, history.Event]

	cache     executor.Cache
	cacheDone chan struct{}
}

func New(b backend.Backend, options *Options) *Worker {
	if options == nil {
		options = &DefaultOptions
	}

	r := registry.New()

	cache := executor.NewCache(options.WorkflowExecutorCacheSize, options.WorkflowExecutorCacheTTL)

	workflowPoller := newPoller[backend.WorkflowTask, executor.ExecutionResult](
		newWorkflowTaskWorker(b, r, cache),
		b.Logger(),
		pollerConfig{
			pollers:           options.WorkflowPollers,
			maxParallelTasks:  options.MaxParallelWorkflowTasks,
			pollingInterval:   options.PollingInterval,
			heartbeatInterval: options.HeartbeatInterval,
		},
	)

	activityPoller := newPoller[backend.ActivityTask, history.Event](
		newActivityTaskWorker(b, r),
		b.Logger(),
		pollerConfig{
			pollers:           options.ActivityPollers,
			maxParallelTasks:  options.MaxParallelActivityTasks,
			pollingInterval:   options.PollingInterval,
			heartbeatInterval: options.HeartbeatInterval,
		},
	)

	return &Worker{
		backend:        b,
		registry:       r,
		workflowPoller: workflowPoller,
		activityPoller: activityPoller,
		cache:          cache,
		cacheDone:      make(chan struct{}),
	}
}

// RegisterWorkflow registers a workflow function with this worker's registry
func (w *Worker) RegisterWorkflow(workflow any) error {
	return w.registry.RegisterWorkflow(workflow)
}

// RegisterActivity registers an activity function with this worker's registry
func (w *Worker) RegisterActivity(activity any) error {
	return w.registry.RegisterActivity(activity)
}

// Start starts polling for tasks. Returns immediately, polling stops when the
// given context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.workflowPoller.Start(ctx)
	w.activityPoller.Start(ctx)

	go func() {
		w.cache.StartEviction(ctx)
		close(w.cacheDone)
	}()

	return nil
}

// WaitForCompletion blocks until all pollers and in-flight tasks have
// finished after the start context was canceled.
func (w *Worker) WaitForCompletion() error {
	w.workflowPoller.WaitForCompletion()
	w.activityPoller.WaitForCompletion()

	<-w.cacheDone

	return nil
}
