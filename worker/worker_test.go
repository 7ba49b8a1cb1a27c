package worker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/sqlite"
	"github.com/enqbot/enqbot/client"
	"github.com/enqbot/enqbot/workflow"
)

func echoActivity(ctx context.Context, text string) (string, error) {
	return text, nil
}

func echoWorkflow(ctx workflow.Context, text string) (string, error) {
	return workflow.ExecuteActivity[string](ctx, workflow.DefaultActivityOptions, echoActivity, text).Get(ctx)
}

func TestWorker_RunsWorkflowToCompletion(t *testing.T) {
	b := sqlite.NewInMemoryBackend(backend.WithLogger(slog.New(slog.DiscardHandler)))

	opts := DefaultOptions
	opts.PollingInterval = 5 * time.Millisecond

	w := New(b, &opts)
	require.NoError(t, w.RegisterWorkflow(echoWorkflow))
	require.NoError(t, w.RegisterActivity(echoActivity))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	c := client.New(b)

	instance, err := c.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: "echo-1",
	}, echoWorkflow, "ping")
	require.NoError(t, err)

	require.NoError(t, c.WaitForWorkflowInstance(ctx, instance, 5*time.Second))

	result, err := client.GetWorkflowResult[string](ctx, c, instance, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "ping", result)

	// Shutdown leaves no goroutines behind
	cancel()
	require.NoError(t, w.WaitForCompletion())
	require.NoError(t, b.Close())

	goleak.VerifyNone(t)
}

func TestWorker_NilOptionsUseDefaults(t *testing.T) {
	b := sqlite.NewInMemoryBackend(backend.WithLogger(slog.New(slog.DiscardHandler)))

	w := New(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	cancel()
	require.NoError(t, w.WaitForCompletion())
	require.NoError(t, b.Close())
}
