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

// Package metrics owns the prometheus registry for the process and provides
// get-or-register helpers so that packages can declare their metrics as vars
// without worrying about duplicate registration across tests.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mutex sync.RWMutex

	// Registry is the process-wide registry
	Registry = NewRegistry(true)

	counterVecsMap = map[string]*prometheus.CounterVec{}
	gaugeVecsMap   = map[string]*prometheus.GaugeVec{}
)

// CounterVecOpts pairs counter opts with the variable label names
type CounterVecOpts struct {
	*prometheus.CounterOpts
	Labels []string
}

// GaugeVecOpts pairs gauge opts with the variable label names
type GaugeVecOpts struct {
	*prometheus.GaugeOpts
	Labels []string
}

// NewRegistry creates a new registry.
// If collectProcessMetrics = true, then the prometheus Go and Process collectors are registered.
func NewRegistry(collectProcessMetrics bool) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	if collectProcessMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// ResetRegistry resets the prometheus Registry and clears all cached metrics
func ResetRegistry() {
	mutex.Lock()
	defer mutex.Unlock()
	Registry = NewRegistry(true)
	counterVecsMap = map[string]*prometheus.CounterVec{}
	gaugeVecsMap = map[string]*prometheus.GaugeVec{}
}

// CounterFQName returns the fully qualified name for the counter
func CounterFQName(opts *prometheus.CounterOpts) string {
	return prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
}

// GaugeFQName returns the fully qualified name for the gauge
func GaugeFQName(opts *prometheus.GaugeOpts) string {
	return prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
}

// GetOrMustRegisterCounterVec first checks if a counterVec with the same name
// is already registered, returning the cached one if so. Otherwise it is
// registered and cached.
func GetOrMustRegisterCounterVec(opts *CounterVecOpts) *prometheus.CounterVec {
	mutex.Lock()
	defer mutex.Unlock()
	name := CounterFQName(opts.CounterOpts)
	if counterVec := counterVecsMap[name]; counterVec != nil {
		return counterVec
	}
	counterVec := prometheus.NewCounterVec(*opts.CounterOpts, opts.Labels)
	Registry.MustRegister(counterVec)
	counterVecsMap[name] = counterVec
	return counterVec
}

// GetOrMustRegisterGaugeVec first checks if a gaugeVec with the same name
// is already registered, returning the cached one if so. Otherwise it is
// registered and cached.
func GetOrMustRegisterGaugeVec(opts *GaugeVecOpts) *prometheus.GaugeVec {
	mutex.Lock()
	defer mutex.Unlock()
	name := GaugeFQName(opts.GaugeOpts)
	if gaugeVec := gaugeVecsMap[name]; gaugeVec != nil {
		return gaugeVec
	}
	gaugeVec := prometheus.NewGaugeVec(*opts.GaugeOpts, opts.Labels)
	Registry.MustRegister(gaugeVec)
	gaugeVecsMap[name] = gaugeVec
	return gaugeVec
}

// Registered returns true if a metric is registered with the same name
func Registered(name string) bool {
	mutex.RLock()
	defer mutex.RUnlock()
	if _, exists := counterVecsMap[name]; exists {
		return true
	}
	_, exists := gaugeVecsMap[name]
	return exists
}
