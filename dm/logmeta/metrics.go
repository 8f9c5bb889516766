// Copyright 2019 PingCAP, Inc.
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

package logmeta

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pingcap/dm/pkg/metricsproxy"
)

var (
	isLeader = metricsproxy.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dm",
			Subsystem: "logmeta",
			Name:      "quorum_is_leader",
			Help:      "1 if this replica currently holds the quorum leadership, 0 otherwise",
		}, []string{"node_id"})

	electionErrors = metricsproxy.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dm",
			Subsystem: "logmeta",
			Name:      "quorum_election_errors_total",
			Help:      "number of errors received from the embedded etcd campaign loop",
		}, []string{"node_id"})
)

// RegisterMetrics registers this package's collectors with registry.
func RegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(isLeader)
	registry.MustRegister(electionErrors)
}
