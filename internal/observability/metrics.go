// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cnnetwork/imperium/internal/hash"
)

// Metrics holds the account core's Prometheus collectors. It implements
// account.Recorder and bus.DropRecorder, and ObserveHash fits
// hash.WithObserver.
type Metrics struct {
	AccountOperations *prometheus.CounterVec
	HashDuration      *prometheus.HistogramVec
	EventsDropped     *prometheus.CounterVec
	SessionsPurged    prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AccountOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imperium_account_operations_total",
				Help: "Account operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imperium_hash_duration_seconds",
				Help:    "Time spent deriving hashes by algorithm",
				Buckets: []float64{.0001, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"algorithm"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imperium_events_dropped_total",
				Help: "Events dropped because a subscriber buffer was full, by topic",
			},
			[]string{"topic"},
		),
		SessionsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "imperium_sessions_purged_total",
				Help: "Expired sessions removed by the reaper",
			},
		),
	}

	reg.MustRegister(m.AccountOperations, m.HashDuration, m.EventsDropped, m.SessionsPurged)
	return m
}

// RecordOperation implements account.Recorder.
func (m *Metrics) RecordOperation(operation, result string) {
	m.AccountOperations.WithLabelValues(operation, result).Inc()
}

// ObserveHash records one derivation.
func (m *Metrics) ObserveHash(algorithm hash.Algorithm, elapsed time.Duration) {
	m.HashDuration.WithLabelValues(string(algorithm)).Observe(elapsed.Seconds())
}

// RecordDrop implements bus.DropRecorder.
func (m *Metrics) RecordDrop(topic string) {
	m.EventsDropped.WithLabelValues(topic).Inc()
}

// RecordPurged adds n purged sessions.
func (m *Metrics) RecordPurged(n int64) {
	if n > 0 {
		m.SessionsPurged.Add(float64(n))
	}
}
