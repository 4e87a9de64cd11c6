// Package metrics exposes the worker's Prometheus instrumentation,
// grounded on the teacher's story-generator/internal/worker/metrics.go: a
// local registry (not the global default), promauto-registered
// counters/histograms, and an optional Pushgateway pusher for short-lived
// worker processes.
package metrics

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const jobName = "storypipeline_worker"

// Metrics holds the worker's counters and an optional Pushgateway pusher.
type Metrics struct {
	Registry *prometheus.Registry

	JobsDequeued  prometheus.Counter
	JobsSucceeded prometheus.Counter
	JobsFailed    *prometheus.CounterVec
	JobsRequeued  *prometheus.CounterVec
	SceneDuration *prometheus.HistogramVec
	JobDuration   prometheus.Histogram
	ScenesActive  prometheus.Gauge

	pusher      *push.Pusher
	groupingKey map[string]string
	logger      *zap.Logger
}

// New builds a Metrics instance with its own registry.
func New(logger *zap.Logger) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		JobsDequeued: factory.NewCounter(prometheus.CounterOpts{
			Name: "storypipeline_jobs_dequeued_total",
			Help: "Total number of story jobs dequeued from the broker.",
		}),
		JobsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "storypipeline_jobs_succeeded_total",
			Help: "Total number of story jobs that reached COMPLETED.",
		}),
		JobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storypipeline_jobs_failed_total",
			Help: "Total number of story jobs that reached FAILED, partitioned by failing stage.",
		}, []string{"stage"}),
		JobsRequeued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storypipeline_jobs_requeued_total",
			Help: "Total number of stage failures that resulted in redelivery, partitioned by stage.",
		}, []string{"stage"}),
		SceneDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storypipeline_scene_duration_seconds",
			Help:    "Duration of a single scene's moment+image+audio generation, partitioned by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storypipeline_job_duration_seconds",
			Help:    "Duration of one Process() call from claim to ack.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ScenesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storypipeline_scenes_active",
			Help: "Number of scenes currently running inside the fan-out semaphore.",
		}),
		logger: logger.Named("metrics"),
	}
}

// InitPusher wires a Pushgateway destination, matching the teacher's
// pattern of pushing from a short-lived worker process rather than being
// scraped.
func (m *Metrics) InitPusher(pushgatewayURL string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	m.groupingKey = map[string]string{"instance": instanceID}
	m.pusher = push.New(pushgatewayURL, jobName).Gatherer(m.Registry).Grouping("instance", instanceID)

	if err := m.pusher.Push(); err != nil {
		return fmt.Errorf("initial push to pushgateway: %w", err)
	}
	return nil
}

// StartPusher pushes the registry's current state to the Pushgateway on
// every tick until ctx-independent stop via the returned function, or
// forever if never stopped.
func (m *Metrics) StartPusher(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if m.pusher == nil {
					continue
				}
				if err := m.pusher.Push(); err != nil {
					m.logger.Warn("push metrics failed", zap.Error(err))
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

// Cleanup deletes this instance's metrics from the Pushgateway, called via
// defer from main on graceful shutdown.
func (m *Metrics) Cleanup() {
	if m.pusher == nil {
		return
	}
	if err := m.pusher.Delete(); err != nil {
		m.logger.Warn("delete metrics from pushgateway failed", zap.Error(err), zap.Any("grouping_key", m.groupingKey))
	}
}
