package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskWorker fetches, executes, and completes one kind of task.
type TaskWorker[Task, TaskResult any] interface {
	Get(ctx context.Context) (*Task, error)
	Extend(ctx context.Context, task *Task) error
	Execute(ctx context.Context, task *Task) (*TaskResult, error)
	Complete(ctx context.Context, task *Task, result *TaskResult) error
}

type pollerConfig struct {
	pollers           int
	maxParallelTasks  int
	pollingInterval   time.Duration
	heartbeatInterval time.Duration
}

// poller runs a fixed number of polling goroutines against a TaskWorker and
// dispatches fetched tasks, extending task locks while they are processed.
type poller[Task, TaskResult any] struct {
	tw     TaskWorker[Task, TaskResult]
	config pollerConfig
	logger *slog.Logger

	wg        sync.WaitGroup
	semaphore chan struct{}
}

func newPoller[Task, TaskResult any](tw TaskWorker[Task, TaskResult], logger *slog.Logger, config pollerConfig) *poller[Task, TaskResult] {
	var semaphore chan struct{}
	if config.maxParallelTasks > 0 {
		semaphore = make(chan struct{}, config.maxParallelTasks)
	}

	return &poller[Task, TaskResult]{
		tw:        tw,
		config:    config,
		logger:    logger,
		semaphore: semaphore,
	}
}

func (p *poller[Task, TaskResult]) Start(ctx context.Context) {
	for range p.config.pollers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.poll(ctx)
		}()
	}
}

// WaitForCompletion blocks until all polling goroutines and in-flight tasks
// have finished.
func (p *poller[Task, TaskResult]) WaitForCompletion() {
	p.wg.Wait()
}

func (p *poller[Task, TaskResult]) poll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := p.tw.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			p.logger.Error("Error getting task", "error", err)
		}

		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.pollingInterval):
			}

			continue
		}

		p.dispatch(ctx, task)
	}
}

func (p *poller[Task, TaskResult]) dispatch(ctx context.Context, task *Task) {
	if p.semaphore != nil {
		p.semaphore <- struct{}{}
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if p.semaphore != nil {
			defer func() { <-p.semaphore }()
		}

		if err := p.process(ctx, task); err != nil {
			p.logger.Error("Error processing task", "error", err)
		}
	}()
}

func (p *poller[Task, TaskResult]) process(ctx context.Context, task *Task) error {
	// Extend the task lock while the task is being processed
	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()

	go func() {
		t := time.NewTicker(p.config.heartbeatInterval)
		defer t.Stop()

		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-t.C:
				if err := p.tw.Extend(heartbeatCtx, task); err != nil {
					p.logger.Error("Error extending task lock", "error", err)
				}
			}
		}
	}()

	result, err := p.tw.Execute(ctx, task)
	if err != nil {
		return fmt.Errorf("executing task: %w", err)
	}

	cancelHeartbeat()

	if err := p.tw.Complete(ctx, task, result); err != nil {
		return fmt.Errorf("completing task: %w", err)
	}

	return nil
}
