package metrics

type Tags map[string]string

type Client interface {
	// Counter increments a counter by the given value
	Counter(name string, tags Tags, value int64)

	// Distribution records a value in a distribution
	Distribution(name string, tags Tags, value float64)

	// WithTags returns a client that adds the given tags to all metrics
	WithTags(tags Tags) Client
}

func NewNoopMetricsClient() Client {
	return &noopMetricsClient{}
}

type noopMetricsClient struct{}

func (*noopMetricsClient) Counter(string, Tags, int64) {
}

func (*noopMetricsClient) Distribution(string, Tags, float64) {
}

func (c *noopMetricsClient) WithTags(Tags) Client {
	return c
}
