// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors the daemon exports
// on its ops listener. A nil *Metrics is valid and records nothing, so
// tests and the CLI's run-once command can skip registration.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dropship"

// Loop labels.
const (
	LoopMain     = "main"
	LoopExternal = "external"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}

// Metrics holds the registered collectors.
type Metrics struct {
	cycles       *prometheus.CounterVec
	cycleSeconds *prometheus.HistogramVec
	staged       prometheus.Counter
	copied       *prometheus.CounterVec
	transfers    *prometheus.CounterVec
	reaped       prometheus.Counter
}

// New creates the collectors and registers them with registerer. A
// collector that is already registered is reused, so New may be called
// more than once against the default registry.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed poll cycles by loop and outcome.",
		}, []string{"loop", "outcome"}),
		cycleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of poll cycles.",
			Buckets:   durationBuckets,
		}, []string{"loop"}),
		staged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_staged_total",
			Help:      "Package versions staged and recorded.",
		}),
		copied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_copied_total",
			Help:      "Artifact copies into the staging root by outcome.",
		}, []string{"outcome"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Mirror transfer units by transport and outcome.",
		}, []string{"transport", "outcome"}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directories_reaped_total",
			Help:      "Version directories removed by retention.",
		}),
	}

	register := func(collector prometheus.Collector) (prometheus.Collector, error) {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return already.ExistingCollector, nil
			}
			return nil, err
		}
		return collector, nil
	}

	var err error
	var collector prometheus.Collector
	if collector, err = register(m.cycles); err != nil {
		return nil, err
	}
	m.cycles = collector.(*prometheus.CounterVec)
	if collector, err = register(m.cycleSeconds); err != nil {
		return nil, err
	}
	m.cycleSeconds = collector.(*prometheus.HistogramVec)
	if collector, err = register(m.staged); err != nil {
		return nil, err
	}
	m.staged = collector.(prometheus.Counter)
	if collector, err = register(m.copied); err != nil {
		return nil, err
	}
	m.copied = collector.(*prometheus.CounterVec)
	if collector, err = register(m.transfers); err != nil {
		return nil, err
	}
	m.transfers = collector.(*prometheus.CounterVec)
	if collector, err = register(m.reaped); err != nil {
		return nil, err
	}
	m.reaped = collector.(prometheus.Counter)

	return m, nil
}

// Handler serves the gatherer's metrics in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// CycleFinished records one cycle of loop.
func (m *Metrics) CycleFinished(loop string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(loop, outcome(err)).Inc()
	m.cycleSeconds.WithLabelValues(loop).Observe(elapsed.Seconds())
}

// PackageStaged counts one recorded package version.
func (m *Metrics) PackageStaged() {
	if m == nil {
		return
	}
	m.staged.Inc()
}

// ArtifactCopied counts one artifact copy attempt.
func (m *Metrics) ArtifactCopied(err error) {
	if m == nil {
		return
	}
	m.copied.WithLabelValues(outcome(err)).Inc()
}

// Transfer counts one mirror unit.
func (m *Metrics) Transfer(transport string, err error) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(transport, outcome(err)).Inc()
}

// DirectoryReaped counts one removed version directory.
func (m *Metrics) DirectoryReaped() {
	if m == nil {
		return
	}
	m.reaped.Inc()
}
