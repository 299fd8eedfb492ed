package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the script studio.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	scriptsGeneratedTotal prometheus.Counter
	playbacksStarted      prometheus.Counter
	playbacksCompleted    prometheus.Counter
	generationErrors      prometheus.Counter
	decodeErrors          prometheus.Counter
	activePlaybacks       prometheus.Gauge
}

// New creates and registers Prometheus metrics for the studio.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scriptcast_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scriptcast_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	scriptsGeneratedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scriptcast_scripts_generated_total",
		Help: "Total number of scripts generated",
	})
	playbacksStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scriptcast_playbacks_started_total",
		Help: "Total number of segment playbacks started",
	})
	playbacksCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scriptcast_playbacks_completed_total",
		Help: "Total number of segment playbacks that reached their natural end",
	})
	generationErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scriptcast_generation_errors_total",
		Help: "Total number of failed speech, image, or script generation calls",
	})
	decodeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scriptcast_decode_errors_total",
		Help: "Total number of malformed PCM payloads",
	})
	activePlaybacks := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scriptcast_active_playbacks",
		Help: "Number of controllers currently sounding (0 or 1)",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		scriptsGeneratedTotal,
		playbacksStarted,
		playbacksCompleted,
		generationErrors,
		decodeErrors,
		activePlaybacks,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		errorsTotal:           errorsTotal,
		scriptsGeneratedTotal: scriptsGeneratedTotal,
		playbacksStarted:      playbacksStarted,
		playbacksCompleted:    playbacksCompleted,
		generationErrors:      generationErrors,
		decodeErrors:          decodeErrors,
		activePlaybacks:       activePlaybacks,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncScriptsGenerated increments the generated scripts counter.
func (m *Metrics) IncScriptsGenerated() {
	m.scriptsGeneratedTotal.Inc()
}

// IncPlaybacksStarted increments the started playbacks counter.
func (m *Metrics) IncPlaybacksStarted() {
	m.playbacksStarted.Inc()
}

// IncPlaybacksCompleted increments the naturally completed playbacks counter.
func (m *Metrics) IncPlaybacksCompleted() {
	m.playbacksCompleted.Inc()
}

// IncGenerationErrors increments the failed generation calls counter.
func (m *Metrics) IncGenerationErrors() {
	m.generationErrors.Inc()
}

// IncDecodeErrors increments the malformed PCM payload counter.
func (m *Metrics) IncDecodeErrors() {
	m.decodeErrors.Inc()
}

// SetActivePlayback sets the active playback gauge from the coordinator slot.
func (m *Metrics) SetActivePlayback(occupied bool) {
	if occupied {
		m.activePlaybacks.Set(1)
	} else {
		m.activePlaybacks.Set(0)
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. the
// active playback slot).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
