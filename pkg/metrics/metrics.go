// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics collects Prometheus counters and histograms for the
// pipeline's own stages (jobs, embedding calls, retrieval queries,
// dedup passes), trimmed from the teacher's much larger agent/LLM/HTTP
// surface down to the concerns this pipeline actually has. Every
// recording method is nil-receiver safe so a collaborator can hold a
// possibly-nil *Metrics and skip instrumentation without a branch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector this pipeline records against.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	embedBatches  *prometheus.CounterVec
	embedDuration *prometheus.HistogramVec

	retrievalSearches *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec

	dedupGroupsTotal  prometheus.Counter
	dedupRemovedTotal prometheus.Counter
}

// New builds a Metrics instance registered under namespace, isolated
// in its own Registry rather than the global default so tests and
// multiple Engines never collide.
func New(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "total",
		Help:      "Total number of jobs processed, by kind and outcome.",
	}, []string{"kind", "status"})

	m.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Stage handler duration in seconds, by kind.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
	}, []string{"kind"})

	m.embedBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embed",
		Name:      "batches_total",
		Help:      "Total number of embedding batch calls.",
	}, []string{"provider"})

	m.embedDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "embed",
		Name:      "duration_seconds",
		Help:      "Embedding batch call duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"provider"})

	m.retrievalSearches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retrieval",
		Name:      "searches_total",
		Help:      "Total number of retrieval queries, by mode.",
	}, []string{"mode"})

	m.retrievalDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retrieval",
		Name:      "duration_seconds",
		Help:      "Retrieval query duration in seconds, by mode.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"mode"})

	m.dedupGroupsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dedup",
		Name:      "groups_total",
		Help:      "Total number of duplicate groups collapsed.",
	})

	m.dedupRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dedup",
		Name:      "chunks_removed_total",
		Help:      "Total number of duplicate chunks removed.",
	})

	m.registry.MustRegister(
		m.jobsTotal, m.jobDuration,
		m.embedBatches, m.embedDuration,
		m.retrievalSearches, m.retrievalDuration,
		m.dedupGroupsTotal, m.dedupRemovedTotal,
	)

	return m
}

// Registry exposes the underlying Prometheus registry for a caller
// that wants to gather or serve it.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordJob records one stage-handler invocation's outcome and
// duration.
func (m *Metrics) RecordJob(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(kind, status).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEmbedBatch records one embedder batch call.
func (m *Metrics) RecordEmbedBatch(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	m.embedBatches.WithLabelValues(provider).Inc()
	m.embedDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRetrieval records one retrieval query.
func (m *Metrics) RecordRetrieval(mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.retrievalSearches.WithLabelValues(mode).Inc()
	m.retrievalDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordDedup records one dedup pass's results.
func (m *Metrics) RecordDedup(removedCount, groupsCount int) {
	if m == nil {
		return
	}
	m.dedupGroupsTotal.Add(float64(groupsCount))
	m.dedupRemovedTotal.Add(float64(removedCount))
}
