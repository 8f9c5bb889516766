// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package migration

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pingcap/dm/pkg/metricsproxy"
)

var (
	currentState = metricsproxy.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dm",
			Subsystem: "migration",
			Name:      "driver_state",
			Help:      "current DriverState of the migration driver, one gauge per state held at 1 when active",
		}, []string{"state"})

	pollErrors = metricsproxy.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dm",
			Subsystem: "migration",
			Name:      "poll_errors_total",
			Help:      "number of event errors classified by the event loop (transient, auth and unhandled), by event name",
		}, []string{"event"})

	replayBatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dm",
			Subsystem: "migration",
			Name:      "replay_batches_total",
			Help:      "number of LegacyStore metadata batches accepted during MigrationReplay",
		})

	dualWriteLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dm",
			Subsystem: "migration",
			Name:      "dual_write_mirror_seconds",
			Help:      "latency of one complete dual-write mirror pass",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		})
)

// RegisterMetrics registers the migration driver's collectors with
// registry. Callers that already run their own registry (e.g. an embedded
// LogMeta quorum) should pass it here instead of using the global default.
func RegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(currentState)
	registry.MustRegister(pollErrors)
	registry.MustRegister(replayBatches)
	registry.MustRegister(dualWriteLatency)
}

// reportState records that the driver transitioned to s, clearing the gauge
// for every other known state so exactly one reads 1 at a time.
func reportState(s DriverState) {
	for _, known := range allStates {
		v := 0.0
		if known == s {
			v = 1.0
		}
		currentState.WithLabelValues(known.String()).Set(v)
	}
}

var allStates = []DriverState{
	StateUninitialized,
	StateInactive,
	StateWaitForControllerQuorum,
	StateWaitForBrokers,
	StateBecomeController,
	StateZkMigration,
	StateKRaftControllerToBrokerComm,
	StateDualWrite,
}
