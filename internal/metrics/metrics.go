// Package metrics records migration and reset activity with Prometheus.
//
// The CLI is short-lived, so metrics are not scraped. They are written in
// the node_exporter textfile format when a run finishes.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/readinglist/internal/persistence/sqlite"
	"github.com/example/readinglist/internal/persistence/sqlite/migration"
)

const namespace = "readinglist"

// Collector implements sqlite.Observer on a private registry.
type Collector struct {
	registry *prometheus.Registry

	stepsApplied  prometheus.Counter
	stepFailures  *prometheus.CounterVec
	stepDuration  prometheus.Histogram
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	resetsTotal   *prometheus.CounterVec
	resetDuration prometheus.Histogram
	schemaVersion prometheus.Gauge
	pendingSteps  prometheus.Gauge
}

var _ sqlite.Observer = (*Collector)(nil)

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		stepsApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "steps_applied_total",
			Help:      "Total number of migration steps committed",
		}),
		stepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "step_failures_total",
			Help:      "Total number of migration steps rolled back",
		}, []string{"version"}),
		stepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "step_duration_seconds",
			Help:      "Time spent applying a single migration step",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "runs_total",
			Help:      "Total number of migration runs by result",
		}, []string{"result"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "run_duration_seconds",
			Help:      "Duration of complete migration runs",
			Buckets:   prometheus.DefBuckets,
		}),
		resetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "resets_total",
			Help:      "Total number of database resets by result",
		}, []string{"result"}),
		resetDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "reset_duration_seconds",
			Help:      "Duration of database resets including catalog replay",
			Buckets:   prometheus.DefBuckets,
		}),
		schemaVersion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "schema_version",
			Help:      "Highest applied migration version",
		}),
		pendingSteps: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "pending_steps",
			Help:      "Catalog steps not yet applied",
		}),
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StepApplied implements migration.Observer.
func (c *Collector) StepApplied(_ int64, elapsed time.Duration) {
	c.stepsApplied.Inc()
	c.stepDuration.Observe(elapsed.Seconds())
}

// StepFailed implements migration.Observer.
func (c *Collector) StepFailed(version int64) {
	c.stepFailures.WithLabelValues(strconv.FormatInt(version, 10)).Inc()
}

// ApplyFinished implements migration.Observer.
func (c *Collector) ApplyFinished(_ int, elapsed time.Duration, err error) {
	c.runsTotal.WithLabelValues(result(err)).Inc()
	c.runDuration.Observe(elapsed.Seconds())
}

// ResetFinished implements sqlite.Observer.
func (c *Collector) ResetFinished(elapsed time.Duration, err error) {
	c.resetsTotal.WithLabelValues(result(err)).Inc()
	c.resetDuration.Observe(elapsed.Seconds())
}

// ObserveStatus records the schema version and pending step gauges.
func (c *Collector) ObserveStatus(status migration.Status) {
	c.schemaVersion.Set(float64(status.CurrentVersion))
	c.pendingSteps.Set(float64(len(status.Pending)))
}

// WriteTextfile writes every metric to path in the textfile collector
// format. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
