// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brawer/missingpedia/internal/pageviews"
	"github.com/brawer/missingpedia/internal/store"
)

// Metrics about a pipeline run. Since the builder is a batch job,
// there is nobody to scrape it; instead, the metrics get written
// to a file for the textfile collector of the Prometheus node exporter.
type Metrics struct {
	registry    *prometheus.Registry
	rows        *prometheus.CounterVec
	records     *prometheus.CounterVec
	shards      *prometheus.CounterVec
	steps       *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "missingpedia",
			Subsystem: "builder",
			Name:      "dump_rows_total",
			Help:      "Dump rows read, by step and outcome.",
		}, []string{"step", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "missingpedia",
			Subsystem: "builder",
			Name:      "records_total",
			Help:      "Records loaded into the store, by relation and outcome.",
		}, []string{"relation", "outcome"}),
		shards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "missingpedia",
			Subsystem: "builder",
			Name:      "pageview_shards_total",
			Help:      "Hourly pageview shards, by outcome.",
		}, []string{"outcome"}),
		steps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "missingpedia",
			Subsystem: "builder",
			Name:      "step_duration_seconds",
			Help:      "How long each pipeline step took.",
		}, []string{"step"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "missingpedia",
			Subsystem: "builder",
			Name:      "last_success_timestamp_seconds",
			Help:      "When the pipeline last completed.",
		}),
	}
	m.registry.MustRegister(m.rows, m.records, m.shards, m.steps, m.lastSuccess)
	return m
}

func (m *Metrics) Ingested(step string, s IngestStats) {
	m.rows.WithLabelValues(step, "accepted").Add(float64(s.Accepted))
	for reason, n := range s.Rejected {
		m.rows.WithLabelValues(step, "rejected_"+reason).Add(float64(n))
	}
}

func (m *Metrics) Loaded(relation string, r store.LoadResult) {
	m.records.WithLabelValues(relation, "written").Add(float64(r.Written))
	m.records.WithLabelValues(relation, "skipped").Add(float64(r.Skipped))
}

func (m *Metrics) Shards(r *pageviews.Report) {
	m.shards.WithLabelValues("succeeded").Add(float64(r.Succeeded))
	m.shards.WithLabelValues("failed").Add(float64(len(r.Failed)))
}

func (m *Metrics) StepDuration(step string, d time.Duration) {
	m.steps.WithLabelValues(step).Set(d.Seconds())
}

func (m *Metrics) Succeeded(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// Write stores the metrics in Prometheus text format.
func (m *Metrics) Write(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
