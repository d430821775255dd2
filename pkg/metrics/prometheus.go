// Package metrics exposes engine counters and subscription outcomes to Prometheus.
package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "courier"

var _ protocol.StatsClient = (*Prometheus)(nil)

// Prometheus is a protocol.StatsClient backed by a Prometheus registry.
// Tags use the "key:value" form; tags without a value become "key:true".
// A metric name keeps the label set of its first use; samples with another
// label set are dropped.
type Prometheus struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec

	subscriptions        *prometheus.CounterVec
	subscriptionDuration *prometheus.HistogramVec
	events               *prometheus.CounterVec
}

func NewPrometheus(namespace string, withGoMetrics bool) *Prometheus {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	if withGoMetrics {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	p := &Prometheus{
		namespace:  namespace,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_total",
			Help:      "Subscription invocations by outcome.",
		}, []string{"destination", "action", "outcome"}),
		subscriptionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subscription_duration_seconds",
			Help:      "Duration of subscription invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"destination", "action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_events_total",
			Help:      "Events handed to subscriptions.",
		}, []string{"destination", "action"}),
	}

	registry.MustRegister(p.subscriptions, p.subscriptionDuration, p.events)

	return p
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) Incr(name string, value int64, tags []string) {
	labels := parseTags(tags)

	counter, err := p.counter(name, labels)
	if err != nil {
		return
	}

	counter.With(labels).Add(float64(value))
}

func (p *Prometheus) Histogram(name string, value float64, tags []string) {
	labels := parseTags(tags)

	histogram, err := p.histogram(name, labels)
	if err != nil {
		return
	}

	histogram.With(labels).Observe(value)
}

// RecordSubscription is meant to be used as the OnComplete callback of a delivery.
func (p *Prometheus) RecordSubscription(stats models.SubscriptionStats) {
	outcome := "success"

	for _, result := range stats.Output {
		if result.Failed() {
			outcome = "failure"

			break
		}
	}

	p.subscriptions.WithLabelValues(stats.Destination, stats.Action, outcome).Inc()
	p.subscriptionDuration.WithLabelValues(stats.Destination, stats.Action).Observe(stats.Duration.Seconds())
	p.events.WithLabelValues(stats.Destination, stats.Action).Add(float64(len(stats.Input.Data)))
}

func (p *Prometheus) counter(name string, labels prometheus.Labels) (*prometheus.CounterVec, error) {
	key, labelNames := metricKey(name, labels)

	p.mu.Lock()
	defer p.mu.Unlock()

	if counter, ok := p.counters[key]; ok {
		return counter, nil
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      sanitize(name) + "_total",
		Help:      "Counter " + name,
	}, labelNames)

	err := p.registry.Register(counter)
	if err != nil {
		return nil, err
	}

	p.counters[key] = counter

	return counter, nil
}

func (p *Prometheus) histogram(name string, labels prometheus.Labels) (*prometheus.HistogramVec, error) {
	key, labelNames := metricKey(name, labels)

	p.mu.Lock()
	defer p.mu.Unlock()

	if histogram, ok := p.histograms[key]; ok {
		return histogram, nil
	}

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      sanitize(name),
		Help:      "Histogram " + name,
		Buckets:   prometheus.DefBuckets,
	}, labelNames)

	err := p.registry.Register(histogram)
	if err != nil {
		return nil, err
	}

	p.histograms[key] = histogram

	return histogram, nil
}

func parseTags(tags []string) prometheus.Labels {
	labels := make(prometheus.Labels, len(tags))

	for _, tag := range tags {
		key, value, found := strings.Cut(tag, ":")
		if !found {
			value = "true"
		}

		if key = sanitize(key); key != "" {
			labels[key] = value
		}
	}

	return labels
}

func metricKey(name string, labels prometheus.Labels) (string, []string) {
	names := make([]string, 0, len(labels))
	for label := range labels {
		names = append(names, label)
	}

	sort.Strings(names)

	return name + "|" + strings.Join(names, ","), names
}

func sanitize(name string) string {
	var b strings.Builder

	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}

			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}
