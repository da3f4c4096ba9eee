// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics exposes the prometheus counters and histograms the
// relayer's dashboard endpoint consumes: HTTP, DB, ledger tx, and the
// merkle_divergence_total alert counter spec.md §4.9/§7 calls for.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is a handle over the metrics this service publishes. It is
// constructed explicitly and threaded through the runtime rather than kept
// as package-level globals.
type Registry struct {
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	DBOperationsTotal   *prometheus.CounterVec
	DBOperationDuration *prometheus.HistogramVec

	LedgerSubmitTotal    *prometheus.CounterVec
	LedgerSubmitDuration *prometheus.HistogramVec

	MerkleDivergenceTotal prometheus.Counter
	MerkleAppendTotal     prometheus.Counter
}

// New builds a Registry backed by a fresh prometheus.Registry, matching the
// teacher's style of constructing handles explicitly instead of relying on
// prometheus's default global registerer.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registerer: reg,
		Gatherer:   reg,
		HTTPRequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cipherpay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served, by route and HTTP status text.",
		}, []string{"route", "status"}),
		HTTPRequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cipherpay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		DBOperationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cipherpay",
			Subsystem: "db",
			Name:      "operations_total",
			Help:      "Total persistent-store operations, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		DBOperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cipherpay",
			Subsystem: "db",
			Name:      "operation_duration_seconds",
			Help:      "Persistent-store operation latency in seconds, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		LedgerSubmitTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cipherpay",
			Subsystem: "ledger",
			Name:      "submit_total",
			Help:      "Total ledger submissions, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		LedgerSubmitDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cipherpay",
			Subsystem: "ledger",
			Name:      "submit_duration_seconds",
			Help:      "Ledger submission latency in seconds, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		MerkleDivergenceTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cipherpay",
			Subsystem: "merkle",
			Name:      "divergence_total",
			Help:      "Times the reconciler recomputed a root that disagreed with the ledger's authoritative root.",
		}),
		MerkleAppendTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cipherpay",
			Subsystem: "merkle",
			Name:      "append_total",
			Help:      "Total leaves appended to the canonical tree.",
		}),
	}

	return r
}
