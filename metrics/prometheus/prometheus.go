// Package prometheus adapts the backend metrics interface to a prometheus
// registry.
package prometheus

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/enqbot/enqbot/backend/metrics"
)

type client struct {
	store    *store
	baseTags metrics.Tags
}

// store holds the registered collectors, shared between all tag-scoped
// clients derived from the same root client.
type store struct {
	registerer prometheus.Registerer

	mu            sync.Mutex
	counters      map[string]prometheus.Counter
	distributions map[string]prometheus.Histogram
}

var _ metrics.Client = (*client)(nil)

func NewClient(registerer prometheus.Registerer) metrics.Client {
	return &client{
		store: &store{
			registerer:    registerer,
			counters:      map[string]prometheus.Counter{},
			distributions: map[string]prometheus.Histogram{},
		},
		baseTags: metrics.Tags{},
	}
}

func (c *client) Counter(name string, tags metrics.Tags, value int64) {
	c.store.counter(name, c.merge(tags)).Add(float64(value))
}

func (c *client) Distribution(name string, tags metrics.Tags, value float64) {
	c.store.distribution(name, c.merge(tags)).Observe(value)
}

func (c *client) WithTags(tags metrics.Tags) metrics.Client {
	return &client{
		store:    c.store,
		baseTags: c.merge(tags),
	}
}

func (s *store) counter(name string, tags metrics.Tags) prometheus.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := metricKey(name, tags)
	if counter, ok := s.counters[key]; ok {
		return counter
	}

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        name,
		ConstLabels: prometheus.Labels(tags),
	})
	s.registerer.MustRegister(counter)
	s.counters[key] = counter

	return counter
}

func (s *store) distribution(name string, tags metrics.Tags) prometheus.Histogram {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := metricKey(name, tags)
	if histogram, ok := s.distributions[key]; ok {
		return histogram
	}

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        name,
		ConstLabels: prometheus.Labels(tags),
	})
	s.registerer.MustRegister(histogram)
	s.distributions[key] = histogram

	return histogram
}

func (c *client) merge(tags metrics.Tags) metrics.Tags {
	if len(tags) == 0 {
		return c.baseTags
	}

	merged := make(metrics.Tags, len(c.baseTags)+len(tags))
	for k, v := range c.baseTags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}

	return merged
}

func metricKey(name string, tags metrics.Tags) string {
	if len(tags) == 0 {
		return name
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(tags[k])
	}

	return sb.String()
}
