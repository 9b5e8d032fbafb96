// Package metrics keeps per-run counters and exposes them to node_exporter's
// textfile collector.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"placement-engine/internal/ingest"
)

type Metrics struct {
	reg *prometheus.Registry

	runs        *prometheus.CounterVec
	fetched     prometheus.Counter
	skipped     *prometheus.CounterVec
	rows        prometheus.Counter
	watermark   prometheus.Gauge
	lastSuccess prometheus.Gauge
	runDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "placement_runs_total",
			Help: "Ingest runs by mode and result",
		}, []string{"mode", "result"}),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placement_messages_fetched_total",
			Help: "Messages returned by the mail source",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "placement_messages_skipped_total",
			Help: "Messages dropped before producing a row",
		}, []string{"reason"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placement_rows_appended_total",
			Help: "Rows appended to the sinks",
		}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "placement_watermark_seconds",
			Help: "Newest mail timestamp observed",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "placement_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "placement_run_duration_seconds",
			Help:    "Wall time of one ingest run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		}),
	}
	m.reg.MustRegister(m.runs, m.fetched, m.skipped, m.rows, m.watermark, m.lastSuccess, m.runDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Record folds one run into the counters. res may be partial when err is set.
func (m *Metrics) Record(res ingest.Result, err error, d time.Duration) {
	mode := string(res.Mode)
	if mode == "" {
		mode = "unknown"
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	m.runs.WithLabelValues(mode, result).Inc()
	m.runDuration.Observe(d.Seconds())
	m.fetched.Add(float64(res.Fetched))
	for reason, n := range res.Skipped {
		m.skipped.WithLabelValues(reason).Add(float64(n))
	}
	if err == nil || errors.Is(err, ingest.ErrStateSave) {
		m.rows.Add(float64(len(res.Rows)))
	}
	if err != nil {
		return
	}
	if res.Watermark > 0 {
		m.watermark.Set(float64(res.Watermark) / 1000)
	}
	m.lastSuccess.SetToCurrentTime()
}

// WriteTextfile writes the registry atomically to path. Empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
