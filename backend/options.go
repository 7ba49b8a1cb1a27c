package backend

import (
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/metrics"
)

type Options struct {
	Logger *slog.Logger

	Metrics metrics.Client

	TracerProvider trace.TracerProvider

	Converter converter.Converter

	// WorkflowLockTimeout is how long a workflow task lease is valid before
	// another worker may pick the task up
	WorkflowLockTimeout time.Duration

	// ActivityLockTimeout is how long an activity task lease is valid before
	// another worker may pick the task up
	ActivityLockTimeout time.Duration
}

var DefaultOptions = Options{
	WorkflowLockTimeout: time.Minute,
	ActivityLockTimeout: 2 * time.Minute,

	Converter: converter.DefaultConverter,
}

type BackendOption func(*Options)

func WithLogger(logger *slog.Logger) BackendOption {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) BackendOption {
	return func(o *Options) {
		o.Metrics = client
	}
}

func WithTracerProvider(tp trace.TracerProvider) BackendOption {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

func WithConverter(converter converter.Converter) BackendOption {
	return func(o *Options) {
		o.Converter = converter
	}
}

func ApplyOptions(opts ...BackendOption) *Options {
	options := DefaultOptions

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	if options.Metrics == nil {
		options.Metrics = metrics.NewNoopMetricsClient()
	}

	if options.TracerProvider == nil {
		options.TracerProvider = noop.NewTracerProvider()
	}

	return &options
}
