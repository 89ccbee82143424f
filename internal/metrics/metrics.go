// Package metrics implements the pipeline's counters, gauges, and
// histograms on top of a private Prometheus registry. Unlike the teacher's
// package-level promauto globals, everything here lives on a Registry value
// constructed once by CoreContext and passed down explicitly, per the
// design notes' "no process-global mutable state beyond the logger sink
// file descriptors" rule.
package metrics

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry owns every collector the pipeline publishes and supports a
// pull-based JSON snapshot; there is no callback fan-out.
type Registry struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Counter increments a named counter, creating it (and its label schema) on
// first use.
func (r *Registry) Counter(name, help string, labels []string, labelValues ...string) {
	r.mu.Lock()
	c, ok := r.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
		r.reg.MustRegister(c)
		r.counters[name] = c
	}
	r.mu.Unlock()
	c.WithLabelValues(labelValues...).Inc()
}

// Gauge sets a named gauge to value.
func (r *Registry) Gauge(name, help string, labels []string, value float64, labelValues ...string) {
	r.mu.Lock()
	g, ok := r.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
		r.reg.MustRegister(g)
		r.gauges[name] = g
	}
	r.mu.Unlock()
	g.WithLabelValues(labelValues...).Set(value)
}

// Histogram observes a value in a named histogram.
func (r *Registry) Histogram(name, help string, buckets []float64, labels []string, value float64, labelValues ...string) {
	r.mu.Lock()
	h, ok := r.histograms[name]
	if !ok {
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
		r.reg.MustRegister(h)
		r.histograms[name] = h
	}
	r.mu.Unlock()
	h.WithLabelValues(labelValues...).Observe(value)
}

// Snapshot is the flat JSON structure of the registry's collectors plus a
// health score. This package does not write it to disk; WriteJSON only
// returns the encoded bytes.
type Snapshot struct {
	CapturedAt  time.Time                `json:"captured_at"`
	Counters    map[string]float64       `json:"counters"`
	Gauges      map[string]float64       `json:"gauges"`
	Histograms  map[string]HistogramStat `json:"histograms"`
	HealthScore float64                  `json:"health_score"`
}

// HistogramStat summarizes a histogram's observation count and sum, enough
// to derive a mean without carrying every raw sample.
type HistogramStat struct {
	SampleCount uint64  `json:"sample_count"`
	SampleSum   float64 `json:"sample_sum"`
}

// Snapshot walks the registry's Gather() output into the flat JSON shape
// consumers expect, then folds in a health score computed from the inputs
// the caller supplies (success ratio, mean validation quality, open
// circuits) since Prometheus's own model has no notion of "health".
func (r *Registry) Snapshot(health HealthInputs) (Snapshot, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return Snapshot{}, fmt.Errorf("gather metrics: %w", err)
	}

	snap := Snapshot{
		CapturedAt: time.Now().UTC(),
		Counters:   make(map[string]float64),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string]HistogramStat),
	}

	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			key := metricKey(fam.GetName(), m)
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				snap.Counters[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				snap.Gauges[key] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				snap.Histograms[key] = HistogramStat{
					SampleCount: m.GetHistogram().GetSampleCount(),
					SampleSum:   m.GetHistogram().GetSampleSum(),
				}
			}
		}
	}

	snap.HealthScore = health.Score()
	return snap, nil
}

// WriteJSON encodes the snapshot as indented JSON with a trailing newline.
func (s Snapshot) WriteJSON() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metrics snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

func metricKey(name string, m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return name
	}
	key := name
	for _, l := range m.GetLabel() {
		key += "{" + l.GetName() + "=" + l.GetValue() + "}"
	}
	return key
}

// HealthInputs are the raw signals the health score is derived from:
// success ratio, mean validation quality, and open-circuit count.
type HealthInputs struct {
	SuccessRatio         float64
	MeanValidationScore  float64
	OpenCircuitCount     int
}

// Score derives a 0-100 health score. Each open circuit knocks 10 points
// off, floored at zero.
func (h HealthInputs) Score() float64 {
	base := (h.SuccessRatio*0.6 + h.MeanValidationScore*0.4) * 100
	base -= float64(h.OpenCircuitCount) * 10
	if base < 0 {
		base = 0
	}
	if base > 100 {
		base = 100
	}
	return base
}
