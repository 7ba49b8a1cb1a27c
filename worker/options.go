package worker

import "time"

type Options struct {
	// WorkflowPollers is the number of pollers fetching workflow tasks
	WorkflowPollers int

	// MaxParallelWorkflowTasks is the maximum number of workflow tasks
	// processed at the same time. 0 means no limit.
	MaxParallelWorkflowTasks int

	// ActivityPollers is the number of pollers fetching activity tasks
	ActivityPollers int

	// MaxParallelActivityTasks is the maximum number of activity tasks
	// processed at the same time. 0 means no limit.
	MaxParallelActivityTasks int

	// WorkflowExecutorCacheSize is the maximum number of workflow executors
	// kept between tasks
	WorkflowExecutorCacheSize int

	// WorkflowExecutorCacheTTL is how long an idle workflow executor stays
	// cached
	WorkflowExecutorCacheTTL time.Duration

	// PollingInterval is how long a poller waits after an empty poll
	PollingInterval time.Duration

	// HeartbeatInterval is how often task locks are extended while a task is
	// being processed
	HeartbeatInterval time.Duration
}

var DefaultOptions = Options{
	WorkflowPollers:          2,
	MaxParallelWorkflowTasks: 0,
	ActivityPollers:          2,
	MaxParallelActivityTasks: 0,

	WorkflowExecutorCacheSize: 128,
	WorkflowExecutorCacheTTL:  10 * time.Minute,

	PollingInterval:   200 * time.Millisecond,
	HeartbeatInterval: 25 * time.Second,
}
