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

// Package config loads and validates the harness configuration: identities
// with their credentials and ordered endpoint lists, subscriber role specs,
// and the test scenarios with their expected receivers.
//
// Decoding is strict - unknown fields are rejected at load time rather than
// failing deep inside a role. A validated Provider is passed into each role
// constructor; there is no process-wide mutable registry.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opsgate/permprobe/pkg/messaging"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML string parsing, e.g. "500ms"
type Duration time.Duration

// UnmarshalYAML parses a Go duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// CredentialsConfig is the credential material for one identity. Either the
// username/password pair or the TLS client certificate set is used.
type CredentialsConfig struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	CAFile   string `yaml:"ca_file,omitempty"`
}

// EndpointConfig is one broker endpoint in an identity's fallback order
type EndpointConfig struct {
	Cluster    string `yaml:"cluster"`
	URL        string `yaml:"url"`
	MonitorURL string `yaml:"monitor_url,omitempty"`
}

// IdentityConfig declares one identity the harness can authenticate as
type IdentityConfig struct {
	Name        string            `yaml:"name"`
	Restricted  bool              `yaml:"restricted,omitempty"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Endpoints   []EndpointConfig  `yaml:"endpoints"`
}

// SubscriberConfig declares one subscriber role instance for orchestrated runs
type SubscriberConfig struct {
	Name     string   `yaml:"name"`
	Identity string   `yaml:"identity"`
	Patterns []string `yaml:"patterns"`
	Queue    string   `yaml:"queue,omitempty"`
}

// ScenarioConfig declares one publisher test case
type ScenarioConfig struct {
	Name              string   `yaml:"name"`
	Identity          string   `yaml:"identity"`
	PrimarySubject    string   `yaml:"primary_subject"`
	FallbackSubject   string   `yaml:"fallback_subject,omitempty"`
	Message           string   `yaml:"message,omitempty"`
	Timeout           Duration `yaml:"timeout,omitempty"`
	ExpectedReceivers []string `yaml:"expected_receivers"`
}

// Config is the root configuration document
type Config struct {
	MinBrokerVersion string             `yaml:"min_broker_version,omitempty"`
	GracePeriod      Duration           `yaml:"grace_period,omitempty"`
	Identities       []IdentityConfig   `yaml:"identities"`
	Subscribers      []SubscriberConfig `yaml:"subscribers,omitempty"`
	Scenarios        []ScenarioConfig   `yaml:"scenarios,omitempty"`
}

// Load reads and validates the configuration file at path
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a configuration document. Unknown fields are
// rejected.
func Parse(r io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	cfg := &Config{}
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config decode failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross references and field constraints eagerly
func (c *Config) Validate() error {
	if len(c.Identities) == 0 {
		return fmt.Errorf("config declares no identities")
	}
	identityNames := map[string]bool{}
	for i, identity := range c.Identities {
		if identity.Name == "" {
			return fmt.Errorf("identities[%d]: %w", i, messaging.ErrIdentityNameMustNotBeBlank)
		}
		if identityNames[identity.Name] {
			return fmt.Errorf("identities[%d]: duplicate identity name %q", i, identity.Name)
		}
		identityNames[identity.Name] = true
		if len(identity.Endpoints) == 0 {
			return fmt.Errorf("identity %q: %w", identity.Name, messaging.ErrIdentityHasNoEndpoints)
		}
		creds := identity.Credentials
		if creds.Username == "" && creds.CertFile == "" {
			return fmt.Errorf("identity %q: credentials need a username or a cert_file", identity.Name)
		}
		if creds.CertFile != "" && creds.KeyFile == "" {
			return fmt.Errorf("identity %q: cert_file requires key_file", identity.Name)
		}
		for j, endpoint := range identity.Endpoints {
			if err := (messaging.Endpoint{Cluster: messaging.ClusterName(endpoint.Cluster), URL: endpoint.URL}).Validate(); err != nil {
				return fmt.Errorf("identity %q endpoints[%d]: %w", identity.Name, j, err)
			}
		}
	}

	subscriberNames := map[string]bool{}
	for i, sub := range c.Subscribers {
		if sub.Name == "" {
			return fmt.Errorf("subscribers[%d]: name must not be blank", i)
		}
		if subscriberNames[sub.Name] {
			return fmt.Errorf("subscribers[%d]: duplicate subscriber name %q", i, sub.Name)
		}
		subscriberNames[sub.Name] = true
		if !identityNames[sub.Identity] {
			return fmt.Errorf("subscriber %q references unknown identity %q", sub.Name, sub.Identity)
		}
		if len(sub.Patterns) == 0 {
			return fmt.Errorf("subscriber %q declares no patterns", sub.Name)
		}
	}

	scenarioNames := map[string]bool{}
	for i, scenario := range c.Scenarios {
		if scenario.Name == "" {
			return fmt.Errorf("scenarios[%d]: name must not be blank", i)
		}
		if scenarioNames[scenario.Name] {
			return fmt.Errorf("scenarios[%d]: duplicate scenario name %q", i, scenario.Name)
		}
		scenarioNames[scenario.Name] = true
		if !identityNames[scenario.Identity] {
			return fmt.Errorf("scenario %q references unknown identity %q", scenario.Name, scenario.Identity)
		}
		if err := messaging.Subject(scenario.PrimarySubject).Validate(); err != nil {
			return fmt.Errorf("scenario %q primary_subject: %w", scenario.Name, err)
		}
		if scenario.FallbackSubject != "" {
			if err := messaging.Subject(scenario.FallbackSubject).Validate(); err != nil {
				return fmt.Errorf("scenario %q fallback_subject: %w", scenario.Name, err)
			}
		}
		for _, receiver := range scenario.ExpectedReceivers {
			if !subscriberNames[receiver] {
				return fmt.Errorf("scenario %q expects unknown receiver %q", scenario.Name, receiver)
			}
		}
	}
	return nil
}
