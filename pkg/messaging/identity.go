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

package messaging

import (
	"strings"
)

// ClusterName is the logical name of a broker cluster from the harness's
// perspective, e.g. "main" or "leaf".
type ClusterName string

// Validate checks that the cluster name is not blank
func (a ClusterName) Validate() error {
	if strings.TrimSpace(string(a)) == "" {
		return ErrClusterNameMustNotBeBlank
	}
	return nil
}

func (a ClusterName) String() string {
	return string(a)
}

// Endpoint is a logical broker cluster/server reference. An ordered list of
// Endpoints forms the fallback search order for an identity.
type Endpoint struct {
	// Cluster is the human label for the endpoint
	Cluster ClusterName
	// URL is the transport URI, e.g. nats://localhost:4222 or tls://broker:4222
	URL string
	// MonitorURL is the broker's read-only HTTP monitoring endpoint. Optional.
	// It is a precondition check for orchestrated runs, not part of any
	// operation's contract.
	MonitorURL string
}

// Validate checks that the endpoint carries a cluster name and a transport URI
func (a Endpoint) Validate() error {
	if err := a.Cluster.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(a.URL) == "" {
		return ErrEndpointURLMustNotBeBlank
	}
	return nil
}

// Credentials is the identity's credential material. It is opaque to the
// fallback core: either a username/password pair or a TLS client certificate
// set is used, selected per deployment.
type Credentials struct {
	Username string
	Password string

	// PEM file paths. When CertFile is set, the TLS form is used.
	CertFile string
	KeyFile  string
	CAFile   string
}

// TLS returns true when the credential is the client-certificate form
func (a Credentials) TLS() bool {
	return a.CertFile != ""
}

// Identity is one of the fixed identities the harness authenticates as.
// Immutable once loaded from configuration.
type Identity struct {
	// Name identifies the identity in configuration, logs, and outcome records
	Name string
	// Credentials is the credential material used at connect time
	Credentials Credentials
	// Endpoints is the ordered fallback search order. Never reordered at runtime.
	Endpoints []Endpoint
	// Restricted marks identities expected to be denied on restricted
	// endpoints. It selects the probe policy for NoResponder classification.
	Restricted bool
}

// Validate checks the identity is well formed: a name and at least one valid endpoint
func (a Identity) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrIdentityNameMustNotBeBlank
	}
	if len(a.Endpoints) == 0 {
		return ErrIdentityHasNoEndpoints
	}
	for _, endpoint := range a.Endpoints {
		if err := endpoint.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ProbePolicy selects how a NoResponder-class probe failure is interpreted.
// The underlying protocol does not distinguish "denied" from "no one is
// listening", so the interpretation is a per-identity heuristic.
type ProbePolicy int

const (
	// AssumeDeniedOnNoResponder treats NoResponder as an authorization denial.
	// Used for restricted identities probing restricted endpoints.
	AssumeDeniedOnNoResponder ProbePolicy = iota
	// AssumeUnservedOnNoResponder treats NoResponder as authorized-but-unserved.
	// Used for identities expected to have full access.
	AssumeUnservedOnNoResponder
)

func (a ProbePolicy) String() string {
	switch a {
	case AssumeDeniedOnNoResponder:
		return "assume-denied"
	case AssumeUnservedOnNoResponder:
		return "assume-unserved"
	default:
		return "unknown"
	}
}

// ProbePolicy returns the NoResponder interpretation for this identity
func (a Identity) ProbePolicy() ProbePolicy {
	if a.Restricted {
		return AssumeDeniedOnNoResponder
	}
	return AssumeUnservedOnNoResponder
}
