// Package metrics holds the Prometheus collectors for the bridge, the
// listener and the session manager.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pkt.systems/pslog"
)

const namespace = "gamebridge"

const shutdownTimeout = 5 * time.Second

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeTransport = "transport"
)

// Metrics is a registry plus the collectors that feed it. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	bridgeRequests   *prometheus.CounterVec
	bridgeLatency    *prometheus.HistogramVec
	listenerCommands *prometheus.CounterVec
	listenerDuration *prometheus.HistogramVec
	sessionStarts    prometheus.Counter
	sessionRunning   prometheus.Gauge
	outputLines      *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bridgeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "requests_total",
			Help:      "Bridge commands sent, by command and outcome.",
		}, []string{"command", "outcome"}),
		bridgeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "request_duration_seconds",
			Help:      "Round-trip latency of bridge commands.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"command"}),
		listenerCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "commands_total",
			Help:      "Commands handled by the embedded listener, by command and outcome.",
		}, []string{"command", "outcome"}),
		listenerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "command_duration_seconds",
			Help:      "Time spent producing a reply.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"command"}),
		sessionStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "starts_total",
			Help:      "Target processes started.",
		}),
		sessionRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "running",
			Help:      "1 while a target process is tracked as running.",
		}),
		outputLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "output_lines_total",
			Help:      "Lines captured from the target process, by stream.",
		}, []string{"stream"}),
	}
	m.registry.MustRegister(
		m.bridgeRequests,
		m.bridgeLatency,
		m.listenerCommands,
		m.listenerDuration,
		m.sessionStarts,
		m.sessionRunning,
		m.outputLines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveBridge records one bridge round trip.
func (m *Metrics) ObserveBridge(command, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bridgeRequests.WithLabelValues(command, outcome).Inc()
	m.bridgeLatency.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveListener records one listener reply.
func (m *Metrics) ObserveListener(command, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.listenerCommands.WithLabelValues(command, outcome).Inc()
	m.listenerDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// SessionStarted marks a target process start.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionStarts.Inc()
	m.sessionRunning.Set(1)
}

// SessionEnded marks the tracked target as gone.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionRunning.Set(0)
}

// OutputLine counts a captured line on stream ("stdout" or "stderr").
func (m *Metrics) OutputLine(stream string) {
	if m == nil {
		return
	}
	m.outputLines.WithLabelValues(stream).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ListenAndServe exposes /metrics on addr until ctx is canceled.
func ListenAndServe(ctx context.Context, addr string, m *Metrics) error {
	logger := pslog.Ctx(ctx)
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          pslog.LogLoggerWithLevel(logger, pslog.ErrorLevel),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("metrics listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
