// Package metrics holds the Prometheus collectors for schema compilation,
// generation, publishing and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

var (
	// Registry holds every attrgraph collector plus the Go runtime ones.
	Registry = prometheus.NewRegistry()

	// CompileTotal counts schema compilations by result.
	CompileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attrgraph_compile_total",
			Help: "Count of schema compilations by result (success/failure)",
		},
		[]string{"result"},
	)

	// CompileDuration tracks schema compilation latency in seconds, store reads included.
	CompileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attrgraph_compile_duration_seconds",
			Help:    "Schema compilation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10), // 10us to ~2.6s
		},
	)

	// GenerationTotal counts generation calls by result.
	GenerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attrgraph_generation_total",
			Help: "Count of generation calls by result (success/failure)",
		},
		[]string{"result"},
	)

	// GenerationDuration tracks generation latency in seconds.
	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attrgraph_generation_duration_seconds",
			Help:    "Generation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4m
		},
	)

	// PublishTotal counts published versions.
	PublishTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attrgraph_publish_total",
			Help: "Count of published graph versions",
		},
	)

	// HTTPRequestsTotal counts HTTP requests by method and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attrgraph_http_requests_total",
			Help: "Count of HTTP requests by method and status code",
		},
		[]string{"method", "code"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CompileTotal,
		CompileDuration,
		GenerationTotal,
		GenerationDuration,
		PublishTotal,
		HTTPRequestsTotal,
	)
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

// RecordCompile records one compilation that started at start.
func RecordCompile(start time.Time, err error) {
	CompileDuration.Observe(time.Since(start).Seconds())
	CompileTotal.WithLabelValues(result(err)).Inc()
}

// RecordGeneration records one generation call that started at start.
func RecordGeneration(start time.Time, err error) {
	GenerationDuration.Observe(time.Since(start).Seconds())
	GenerationTotal.WithLabelValues(result(err)).Inc()
}

// RecordPublish increments the published version counter.
func RecordPublish() {
	PublishTotal.Inc()
}

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(method string, code int) {
	HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
