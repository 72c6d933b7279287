// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups all collectors. A nil *Metrics records nothing.
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RecordingsCreated    prometheus.Counter
	ChunksUploaded       prometheus.Counter
	ChunkBytes           prometheus.Counter
	RecordingsFinished   *prometheus.CounterVec
	AssemblyDuration     prometheus.Histogram
	AssembledSize        prometheus.Histogram
	TranscriptionLatency *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioscribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audioscribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RecordingsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "audioscribe_recordings_created_total",
			Help: "Total number of recordings created",
		}),
		ChunksUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "audioscribe_chunks_uploaded_total",
			Help: "Total number of audio chunks stored",
		}),
		ChunkBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "audioscribe_chunk_bytes_total",
			Help: "Total bytes of audio chunks stored",
		}),
		RecordingsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioscribe_recordings_finished_total",
			Help: "Finished recordings by transcription outcome",
		}, []string{"outcome"}),
		AssemblyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioscribe_assembly_duration_seconds",
			Help:    "Time spent concatenating chunks into an artifact",
			Buckets: prometheus.DefBuckets,
		}),
		AssembledSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioscribe_assembled_bytes",
			Help:    "Size of assembled artifacts",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		}),
		TranscriptionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audioscribe_transcription_duration_seconds",
			Help:    "Transcription provider latency",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"provider", "outcome"}),
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) RecordRecordingCreated() {
	if m == nil {
		return
	}
	m.RecordingsCreated.Inc()
}

// RecordChunk records a stored chunk of size bytes.
func (m *Metrics) RecordChunk(size int64) {
	if m == nil {
		return
	}
	m.ChunksUploaded.Inc()
	if size > 0 {
		m.ChunkBytes.Add(float64(size))
	}
}

// RecordAssembly records a published artifact.
func (m *Metrics) RecordAssembly(seconds float64, size int64) {
	if m == nil {
		return
	}
	m.AssemblyDuration.Observe(seconds)
	m.AssembledSize.Observe(float64(size))
}

// RecordTranscription records a provider call and the finish it belongs to.
func (m *Metrics) RecordTranscription(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionLatency.WithLabelValues(provider, outcome).Observe(seconds)
	m.RecordingsFinished.WithLabelValues(outcome).Inc()
}
