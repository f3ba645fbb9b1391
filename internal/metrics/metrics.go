// Package metrics records statement engine activity in a private Prometheus registry
package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Status label values
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusPartial = "partial"
	StatusInvalid = "invalid"
)

// Metrics holds all Prometheus metrics of the statement engine
type Metrics struct {
	// Registry owns every metric below
	Registry *prometheus.Registry

	sectionFetches    *prometheus.CounterVec
	sectionDuration   *prometheus.HistogramVec
	statements        *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	recordsInspected  *prometheus.CounterVec
	staleDiscarded    prometheus.Counter
}

// New creates a dedicated registry and registers every metric in it, so
// several engines (or tests) never collide on collector names
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		sectionFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etat_section_fetches_total",
				Help: "Statement section fetches by section and outcome.",
			},
			[]string{"section", "status"},
		),
		sectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etat_section_fetch_duration_seconds",
				Help:    "Duration of statement section fetches.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"section"},
		),
		statements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etat_statements_total",
				Help: "Statements computed by path and outcome.",
			},
			[]string{"path", "status"},
		),
		statementDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etat_statement_duration_seconds",
				Help:    "Duration of a full statement computation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		recordsInspected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etat_records_inspected_total",
				Help: "Raw records inspected by the classifiers.",
			},
			[]string{"stream"},
		),
		staleDiscarded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "etat_stale_results_discarded_total",
				Help: "Statement results discarded because a newer request was issued.",
			},
		),
	}
}

// RecordSection records the outcome and duration of one section fetch
func (m *Metrics) RecordSection(section string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.sectionFetches.WithLabelValues(section, status).Inc()
	m.sectionDuration.WithLabelValues(section).Observe(d.Seconds())
}

// RecordStatement records the outcome and duration of one statement
func (m *Metrics) RecordStatement(path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.statements.WithLabelValues(path, status).Inc()
	m.statementDuration.WithLabelValues(path).Observe(d.Seconds())
}

// AddInspected counts raw records inspected for a stream
func (m *Metrics) AddInspected(stream string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsInspected.WithLabelValues(stream).Add(float64(n))
}

// IncrStaleDiscarded counts one stale result discarded by a session
func (m *Metrics) IncrStaleDiscarded() {
	if m == nil {
		return
	}
	m.staleDiscarded.Inc()
}

// SectionFetches returns the current count of fetches for a section and status
func (m *Metrics) SectionFetches(section, status string) float64 {
	return counterValue(m.sectionFetches.WithLabelValues(section, status))
}

// StaleDiscarded returns the number of discarded stale results
func (m *Metrics) StaleDiscarded() float64 {
	return counterValue(m.staleDiscarded)
}

func counterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		return 0
	}
	if metric.Counter != nil && metric.Counter.Value != nil {
		return *metric.Counter.Value
	}
	return 0
}

// WriteText writes every metric in the Prometheus text exposition format
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("encode metric %s: %w", family.GetName(), err)
		}
	}
	return nil
}

// WriteFile dumps the metrics to path in the text exposition format
func (m *Metrics) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer file.Close()

	return m.WriteText(file)
}
