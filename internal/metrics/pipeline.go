// Package metrics counts classification and upload outcomes. A CLI run is
// short-lived, so the registry is written out as a node-exporter textfile
// instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/Veraticus/matflow/internal/config"
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics holds the ingestion collectors.
type PipelineMetrics struct {
	registry *prometheus.Registry

	classifyTotal    *prometheus.CounterVec
	classifyDuration *prometheus.HistogramVec
	uploadTotal      *prometheus.CounterVec
	uploadDuration   *prometheus.HistogramVec
	uploadBytes      *prometheus.CounterVec
}

// NewPipelineMetrics creates the collectors on a private registry.
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()

	classifyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matflow",
			Subsystem: "classifier",
			Name:      "files_total",
			Help:      "Files seen by the classifier by outcome.",
		},
		[]string{"outcome"},
	)
	classifyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matflow",
			Subsystem: "classifier",
			Name:      "duration_seconds",
			Help:      "Per-file classification duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)
	uploadTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matflow",
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "Uploaded files by outcome.",
		},
		[]string{"outcome"},
	)
	uploadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matflow",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Per-file upload duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"outcome"},
	)
	uploadBytes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matflow",
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Bytes of file content handled by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(classifyTotal, classifyDuration, uploadTotal, uploadDuration, uploadBytes)

	return &PipelineMetrics{
		registry:         registry,
		classifyTotal:    classifyTotal,
		classifyDuration: classifyDuration,
		uploadTotal:      uploadTotal,
		uploadDuration:   uploadDuration,
		uploadBytes:      uploadBytes,
	}
}

// Registry exposes the registry for tests and exporters.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveClassification records one classified file.
func (m *PipelineMetrics) ObserveClassification(outcome string, elapsed time.Duration) {
	m.classifyTotal.WithLabelValues(outcome).Inc()
	m.classifyDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveUpload records one file outcome of an upload run.
func (m *PipelineMetrics) ObserveUpload(outcome string, bytes int64, elapsed time.Duration) {
	m.uploadTotal.WithLabelValues(outcome).Inc()
	m.uploadDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if bytes > 0 {
		m.uploadBytes.WithLabelValues(outcome).Add(float64(bytes))
	}
}

// WriteTextfile writes the current values in the text exposition format.
// The file is replaced atomically.
func (m *PipelineMetrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	path = config.ExpandPath(path)
	if err := config.EnsureParentDir(path); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
