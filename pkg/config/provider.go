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

package config

import (
	"fmt"
	"time"

	"github.com/opsgate/permprobe/pkg/messaging"
)

// Scenario is a resolved publisher test case: identity references replaced by
// the identities themselves.
type Scenario struct {
	Name              string
	Identity          messaging.Identity
	PrimarySubject    messaging.Subject
	FallbackSubject   messaging.Subject
	Message           string
	Timeout           time.Duration
	ExpectedReceivers []string
}

// SubscriberSpec is a resolved subscriber role declaration
type SubscriberSpec struct {
	Name     string
	Identity messaging.Identity
	Patterns []messaging.Subject
	Queue    messaging.Queue
}

// Provider hands validated configuration to role constructors
type Provider interface {
	// Identity resolves an identity by name
	Identity(name string) (messaging.Identity, error)
	// Identities returns every configured identity
	Identities() []messaging.Identity
	// Subscribers returns the subscriber role declarations in config order
	Subscribers() []SubscriberSpec
	// Scenarios returns the publisher test cases in config order
	Scenarios() []Scenario
	// GracePeriod is the startup grace before publishers run
	GracePeriod() time.Duration
	// MinBrokerVersion is the semver constraint the broker must satisfy, blank for none
	MinBrokerVersion() string
}

// DefaultGracePeriod is used when the config does not set grace_period
const DefaultGracePeriod = 500 * time.Millisecond

// DefaultScenarioTimeout bounds a scenario's request when the config does not set one
const DefaultScenarioTimeout = 2 * time.Second

// NewProvider builds a Provider from a validated Config
func NewProvider(cfg *Config) Provider {
	identities := make(map[string]messaging.Identity, len(cfg.Identities))
	ordered := make([]messaging.Identity, 0, len(cfg.Identities))
	for _, ic := range cfg.Identities {
		identity := toIdentity(ic)
		identities[ic.Name] = identity
		ordered = append(ordered, identity)
	}

	subscribers := make([]SubscriberSpec, 0, len(cfg.Subscribers))
	for _, sc := range cfg.Subscribers {
		patterns := make([]messaging.Subject, len(sc.Patterns))
		for i, p := range sc.Patterns {
			patterns[i] = messaging.Subject(p)
		}
		subscribers = append(subscribers, SubscriberSpec{
			Name:     sc.Name,
			Identity: identities[sc.Identity],
			Patterns: patterns,
			Queue:    messaging.Queue(sc.Queue),
		})
	}

	scenarios := make([]Scenario, 0, len(cfg.Scenarios))
	for _, sc := range cfg.Scenarios {
		timeout := sc.Timeout.Std()
		if timeout <= 0 {
			timeout = DefaultScenarioTimeout
		}
		scenarios = append(scenarios, Scenario{
			Name:              sc.Name,
			Identity:          identities[sc.Identity],
			PrimarySubject:    messaging.Subject(sc.PrimarySubject),
			FallbackSubject:   messaging.Subject(sc.FallbackSubject),
			Message:           sc.Message,
			Timeout:           timeout,
			ExpectedReceivers: sc.ExpectedReceivers,
		})
	}

	grace := cfg.GracePeriod.Std()
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	return &provider{
		identities:       identities,
		ordered:          ordered,
		subscribers:      subscribers,
		scenarios:        scenarios,
		gracePeriod:      grace,
		minBrokerVersion: cfg.MinBrokerVersion,
	}
}

func toIdentity(ic IdentityConfig) messaging.Identity {
	endpoints := make([]messaging.Endpoint, len(ic.Endpoints))
	for i, ec := range ic.Endpoints {
		endpoints[i] = messaging.Endpoint{
			Cluster:    messaging.ClusterName(ec.Cluster),
			URL:        ec.URL,
			MonitorURL: ec.MonitorURL,
		}
	}
	return messaging.Identity{
		Name: ic.Name,
		Credentials: messaging.Credentials{
			Username: ic.Credentials.Username,
			Password: ic.Credentials.Password,
			CertFile: ic.Credentials.CertFile,
			KeyFile:  ic.Credentials.KeyFile,
			CAFile:   ic.Credentials.CAFile,
		},
		Endpoints:  endpoints,
		Restricted: ic.Restricted,
	}
}

type provider struct {
	identities       map[string]messaging.Identity
	ordered          []messaging.Identity
	subscribers      []SubscriberSpec
	scenarios        []Scenario
	gracePeriod      time.Duration
	minBrokerVersion string
}

func (a *provider) Identity(name string) (messaging.Identity, error) {
	identity, ok := a.identities[name]
	if !ok {
		return messaging.Identity{}, fmt.Errorf("unknown identity %q", name)
	}
	return identity, nil
}

func (a *provider) Identities() []messaging.Identity {
	identities := make([]messaging.Identity, len(a.ordered))
	copy(identities, a.ordered)
	return identities
}

func (a *provider) Subscribers() []SubscriberSpec {
	subscribers := make([]SubscriberSpec, len(a.subscribers))
	copy(subscribers, a.subscribers)
	return subscribers
}

func (a *provider) Scenarios() []Scenario {
	scenarios := make([]Scenario, len(a.scenarios))
	copy(scenarios, a.scenarios)
	return scenarios
}

func (a *provider) GracePeriod() time.Duration {
	return a.gracePeriod
}

func (a *provider) MinBrokerVersion() string {
	return a.minBrokerVersion
}
