// Package metrics records Prometheus metrics for backup and restore runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mongo_s3_backup"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder holds the run metrics on its own registry so that a one-shot
// process can write them to a node_exporter textfile.
type Recorder struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	stepDuration    *prometheus.HistogramVec
	archiveSize     *prometheus.GaugeVec
	lastSuccess     *prometheus.GaugeVec
	lastRunFinished *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "The total number of pipeline runs",
		}, []string{"pipeline", "database", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time taken by a whole pipeline run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"pipeline", "database"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Time taken by a single pipeline step",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"pipeline", "step"}),
		archiveSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_size_bytes",
			Help:      "Size of the last archive handled by the pipeline",
		}, []string{"pipeline", "database"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Timestamp of the last successful run",
		}, []string{"pipeline", "database"}),
		lastRunFinished: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Timestamp of the last finished run, successful or not",
		}, []string{"pipeline", "database"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStep records the duration of one pipeline step.
func (r *Recorder) ObserveStep(pipeline, step string, d time.Duration) {
	r.stepDuration.WithLabelValues(pipeline, step).Observe(d.Seconds())
}

// ObserveRun records the outcome of a finished run.
func (r *Recorder) ObserveRun(result *models.RunResult) {
	status := StatusSuccess
	if !result.Success() {
		status = StatusFailure
	}

	finished := result.StartTime.Add(result.Duration)
	r.runs.WithLabelValues(result.Pipeline, result.Database, status).Inc()
	r.runDuration.WithLabelValues(result.Pipeline, result.Database).Observe(result.Duration.Seconds())
	r.lastRunFinished.WithLabelValues(result.Pipeline, result.Database).Set(float64(finished.Unix()))

	if result.ArchiveSize > 0 {
		r.archiveSize.WithLabelValues(result.Pipeline, result.Database).Set(float64(result.ArchiveSize))
	}
	if status == StatusSuccess {
		r.lastSuccess.WithLabelValues(result.Pipeline, result.Database).Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes the registry in the text exposition format to path.
// The file is written atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
