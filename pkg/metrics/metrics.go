// Package metrics exposes detection-cycle counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teslashibe/go-moodcam/pkg/cycle"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
)

const namespace = "moodcam"

// Metrics is a cycle.Recorder backed by Prometheus collectors.
type Metrics struct {
	Polls          *prometheus.CounterVec
	Skips          *prometheus.CounterVec
	DetectDuration prometheus.Histogram
	Emotions       *prometheus.CounterVec
	Confidence     prometheus.Gauge
	IngestFrames   *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Polls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Completed detection polls by outcome",
			},
			[]string{"outcome"},
		),
		Skips: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skips_total",
				Help:      "Skipped detection polls by reason",
			},
			[]string{"reason"},
		),
		DetectDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "detect_duration_seconds",
				Help:      "Detector latency in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .2, .5, 1, 2},
			},
		),
		Emotions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emotions_total",
				Help:      "Accepted observations by label",
			},
			[]string{"label"},
		),
		Confidence: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "confidence",
				Help:      "Confidence of the latest accepted observation",
			},
		),
		IngestFrames: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_frames_total",
				Help:      "Frames received on the ingest endpoint by result",
			},
			[]string{"result"},
		),
	}
}

// Skipped counts a skipped poll.
func (m *Metrics) Skipped(reason string) {
	m.Skips.WithLabelValues(reason).Inc()
}

// Completed counts a finished poll and observes its detector latency.
func (m *Metrics) Completed(outcome string, latency time.Duration) {
	m.Polls.WithLabelValues(outcome).Inc()
	m.DetectDuration.Observe(latency.Seconds())
}

// Accepted counts an accepted observation.
func (m *Metrics) Accepted(obs emotion.Observation) {
	m.Emotions.WithLabelValues(obs.Label.String()).Inc()
	m.Confidence.Set(obs.Confidence)
}

// Frame counts an ingested frame; result is "ok" or "rejected".
func (m *Metrics) Frame(result string) {
	m.IngestFrames.WithLabelValues(result).Inc()
}

var _ cycle.Recorder = (*Metrics)(nil)
