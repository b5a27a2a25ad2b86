package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spacedub/internal/logging"
)

const namespace = "spacedub"

// Metrics owns the collectors for one daemon run.
type Metrics struct {
	registry *prometheus.Registry

	jobs             *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	captureDuration  *prometheus.HistogramVec
	mentionsAdmitted prometheus.Counter
	pollFailures     prometheus.Counter
	queueDepth       prometheus.Gauge
}

// New registers the spacedub collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Jobs that reached a terminal outcome.",
			},
			[]string{"outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall time from dispatch to terminal outcome.",
				Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
			},
			[]string{"outcome"},
		),
		captureDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "capture_duration_seconds",
				Help:      "Time spent resolving a stream manifest, by result.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 25, 30},
			},
			[]string{"result"},
		),
		mentionsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mentions_admitted_total",
			Help:      "Mentions admitted to the work queue.",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mention_poll_failures_total",
			Help:      "Mention polls that failed and were retried on the next tick.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Work units waiting in the queue.",
		}),
	}
	m.registry.MustRegister(
		m.jobs,
		m.jobDuration,
		m.captureDuration,
		m.mentionsAdmitted,
		m.pollFailures,
		m.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveJob records a terminal job outcome.
func (m *Metrics) ObserveJob(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
	m.jobDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveCapture records one capture attempt. result is "resolved" or the
// error kind that ended it.
func (m *Metrics) ObserveCapture(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.captureDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// MentionsAdmitted counts newly queued mentions.
func (m *Metrics) MentionsAdmitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mentionsAdmitted.Add(float64(n))
}

// PollFailed counts a failed mention poll.
func (m *Metrics) PollFailed() {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
}

// SetQueueDepth publishes the current queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on bind until ctx is cancelled. An empty bind
// disables the listener.
func (m *Metrics) Serve(ctx context.Context, bind string, logger *slog.Logger) error {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil
	}
	logger = logging.NewComponentLogger(logger, "metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	logger.Info("metrics endpoint listening",
		logging.String(logging.FieldEventType, "metrics_listening"),
		logging.String("bind", listener.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
