// Package metrics registers thoth's prometheus collectors and exposes small
// recording helpers so callers never touch label plumbing.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "thoth"

var (
	provisioningRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "runs_total",
			Help:      "Provisioning runs by terminal outcome (succeeded, succeeded_no_address, failed)",
		},
		[]string{"outcome"},
	)

	provisioningPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each provisioning phase",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	addressPollAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "address_poll_attempts_total",
			Help:      "Address resolution checks issued",
		},
	)

	telemetrySamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "samples_total",
			Help:      "Stats fetches by result (ok, failed, empty, discarded)",
		},
		[]string{"result"},
	)

	activeMonitors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "active_monitors",
			Help:      "Telemetry monitors currently sampling",
		},
	)

	focusOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "focus",
			Name:      "operations_total",
			Help:      "Focus controller operations by name and result",
		},
		[]string{"operation", "result"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "REST request latency by route and status code",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)
)

func RecordRun(outcome string) {
	provisioningRuns.WithLabelValues(outcome).Inc()
}

func ObservePhase(phase string, d time.Duration) {
	provisioningPhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func RecordAddressAttempt() {
	addressPollAttempts.Inc()
}

func RecordSample(result string) {
	telemetrySamples.WithLabelValues(result).Inc()
}

func MonitorStarted() { activeMonitors.Inc() }
func MonitorStopped() { activeMonitors.Dec() }

func RecordOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	focusOperations.WithLabelValues(operation, result).Inc()
}

func ObserveRequest(method, route, code string, d time.Duration) {
	apiRequestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetupMetricsEndpoint serves /metrics on addr in the background.
func SetupMetricsEndpoint(addr string, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics endpoint stopped", "addr", addr, "error", err)
		}
	}()

	return server
}
