// Package metrics exports scheduler activity of an observer.System as
// Prometheus metrics.
package metrics

import (
	"time"

	"github.com/delaneyj/watchparty/observer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "watchparty").
	Namespace string

	// Subsystem is the metrics subsystem (default: "scheduler").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for flush duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the flush duration buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "watchparty",
		Subsystem: "scheduler",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector records flushes and watcher runs. It implements
// observer.Instrumentation; pass it with observer.WithInstrumentation.
type Collector struct {
	flushes       prometheus.Counter
	flushDuration prometheus.Histogram
	queueSize     prometheus.Histogram
	watcherRuns   *prometheus.CounterVec
	watcherErrors *prometheus.CounterVec
	updateLoops   prometheus.Counter
}

var _ observer.Instrumentation = (*Collector)(nil)

// New creates and registers the collector metrics.
//
// Metrics collected:
//   - watchparty_scheduler_flushes_total: Counter of completed flushes
//   - watchparty_scheduler_flush_duration_seconds: Histogram of flush duration
//   - watchparty_scheduler_flush_queue_size: Histogram of watchers queued per flush
//   - watchparty_scheduler_watcher_runs_total: Counter of watcher runs by kind
//   - watchparty_scheduler_watcher_errors_total: Counter of failed runs by kind
//   - watchparty_scheduler_update_loops_total: Counter of detected update loops
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of scheduler flushes",
			ConstLabels: config.ConstLabels,
		}),

		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_duration_seconds",
			Help:        "Scheduler flush duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		queueSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_queue_size",
			Help:        "Number of watchers queued when a flush starts",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8), // 1 to 16384
		}),

		watcherRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "watcher_runs_total",
			Help:        "Total number of watcher runs during flushes",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		watcherErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "watcher_errors_total",
			Help:        "Total number of watcher runs that returned an error",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		updateLoops: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "update_loops_total",
			Help:        "Total number of watchers stopped for exceeding the update limit",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (c *Collector) FlushStarted(queued int) {
	c.queueSize.Observe(float64(queued))
}

func (c *Collector) WatcherRan(w *observer.Watcher, _ time.Duration, err error) {
	kind := w.Kind().String()
	c.watcherRuns.WithLabelValues(kind).Inc()
	if err != nil {
		c.watcherErrors.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) UpdateLoopDetected(*observer.Watcher) {
	c.updateLoops.Inc()
}

func (c *Collector) FlushFinished(_ int, took time.Duration) {
	c.flushes.Inc()
	c.flushDuration.Observe(took.Seconds())
}

// Snapshot is a point-in-time read of the collector counters.
type Snapshot struct {
	Flushes       uint64
	WatcherRuns   uint64
	WatcherErrors uint64
	UpdateLoops   uint64
	QueuedTotal   uint64
}

// Snapshot reads the current counter values.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Flushes:     uint64(counterValue(c.flushes)),
		UpdateLoops: uint64(counterValue(c.updateLoops)),
	}
	for _, k := range []observer.Kind{observer.KindRender, observer.KindComputed, observer.KindUser} {
		s.WatcherRuns += uint64(counterValue(c.watcherRuns.WithLabelValues(k.String())))
		s.WatcherErrors += uint64(counterValue(c.watcherErrors.WithLabelValues(k.String())))
	}
	var m dto.Metric
	if err := c.queueSize.Write(&m); err == nil {
		s.QueuedTotal = uint64(m.GetHistogram().GetSampleSum())
	}
	return s
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
