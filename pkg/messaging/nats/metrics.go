// Copyright (c) 2026 OpsGate, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nats

import (
	"github.com/opsgate/permprobe/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsNamespace is used as the metric namespace for nats related metrics
	MetricsNamespace = "permprobe"
	// MetricsSubSystem is used as the metric subsystem for nats related metrics
	MetricsSubSystem = "nats"
)

var (
	// MetricLabels are the variable metric labels
	MetricLabels = []string{"cluster"}

	// SessionCreatedCounterOpts tracks the number of sessions that have been opened
	SessionCreatedCounterOpts = &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "sessions_created",
			Help:      "The number of sessions that have been opened",
		},
		Labels: MetricLabels,
	}
	sessionCreatedCounter = metrics.GetOrMustRegisterCounterVec(SessionCreatedCounterOpts)

	// SessionClosedCounterOpts tracks the number of sessions that have been closed
	SessionClosedCounterOpts = &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "sessions_closed",
			Help:      "The number of sessions that have been closed",
		},
		Labels: MetricLabels,
	}
	sessionClosedCounter = metrics.GetOrMustRegisterCounterVec(SessionClosedCounterOpts)

	// DisconnectedCounterOpts tracks when sessions have disconnected
	DisconnectedCounterOpts = &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "disconnects",
			Help:      "The number of times sessions disconnected",
		},
		Labels: MetricLabels,
	}
	disconnectedCounter = metrics.GetOrMustRegisterCounterVec(DisconnectedCounterOpts)

	// ReconnectedCounterOpts tracks when sessions have reconnected
	ReconnectedCounterOpts = &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "reconnects",
			Help:      "The number of times sessions reconnected",
		},
		Labels: MetricLabels,
	}
	reconnectedCounter = metrics.GetOrMustRegisterCounterVec(ReconnectedCounterOpts)

	// ViolationCounterOpts tracks async permission violations reported by the broker
	ViolationCounterOpts = &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "permission_violations",
			Help:      "The number of async permission violations reported by the broker",
		},
		Labels: MetricLabels,
	}
	violationCounter = metrics.GetOrMustRegisterCounterVec(ViolationCounterOpts)

	// MsgsPublishedCounterOpts tracks the number of messages published per cluster
	MsgsPublishedCounterOpts = &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "msgs_published",
			Help:      "The number of messages published",
		},
		Labels: MetricLabels,
	}
	msgsPublishedCounter = metrics.GetOrMustRegisterCounterVec(MsgsPublishedCounterOpts)

	// MsgsReceivedCounterOpts tracks the number of messages received per cluster
	MsgsReceivedCounterOpts = &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "msgs_received",
			Help:      "The number of messages received by subscriber roles",
		},
		Labels: MetricLabels,
	}
	msgsReceivedCounter = metrics.GetOrMustRegisterCounterVec(MsgsReceivedCounterOpts)

	// ProbeVerdictCounterOpts tracks capability probe verdicts per cluster
	ProbeVerdictCounterOpts = &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "probe_verdicts",
			Help:      "The number of capability probe verdicts, by verdict",
		},
		Labels: []string{"cluster", "verdict"},
	}
	probeVerdictCounter = metrics.GetOrMustRegisterCounterVec(ProbeVerdictCounterOpts)

	// EndpointSelectedCounterOpts tracks fallback selector decisions per cluster
	EndpointSelectedCounterOpts = &metrics.CounterVecOpts{
		CounterOpts: &prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubSystem,
			Name:      "endpoints_selected",
			Help:      "The number of times the fallback selector accepted an endpoint",
		},
		Labels: MetricLabels,
	}
	endpointSelectedCounter = metrics.GetOrMustRegisterCounterVec(EndpointSelectedCounterOpts)
)
