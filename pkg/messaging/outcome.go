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
	"time"
)

// FailureClassification is the classified failure mode of one attempted
// operation. Classification is heuristic: the broker does not always
// distinguish "denied" from "no one is listening" at the protocol level.
type FailureClassification int

const (
	// Unknown means the raw error carried no recognizable signal
	Unknown FailureClassification = iota
	// AuthorizationDenied means the broker refused the operation for this identity
	AuthorizationDenied
	// NoResponder means the operation was accepted but no responder serviced it
	NoResponder
	// Timeout means the bounded wait for a reply elapsed
	Timeout
	// TransportError means a connection/handshake level failure
	TransportError
)

func (a FailureClassification) String() string {
	switch a {
	case AuthorizationDenied:
		return "authorization_denied"
	case NoResponder:
		return "no_responder"
	case Timeout:
		return "timeout"
	case TransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure with this classification should trigger
// a fallback attempt on the secondary resource. Transport and unknown errors
// likely indicate misconfiguration and are surfaced verbatim instead.
func (a FailureClassification) Retryable() bool {
	switch a {
	case AuthorizationDenied, NoResponder, Timeout:
		return true
	default:
		return false
	}
}

// Outcome records the result of one attempted operation. Immutable once
// created; accumulated into ordered sequences for fallback decisions and
// test assertions.
type Outcome struct {
	// Identity that attempted the operation
	Identity string `json:"identity"`
	// Cluster is the endpoint label the operation targeted
	Cluster ClusterName `json:"cluster"`
	// Subject the operation targeted
	Subject Subject `json:"subject"`
	// Success is true when the operation succeeded
	Success bool `json:"success"`
	// Elapsed is how long the attempt took
	Elapsed time.Duration `json:"elapsed"`
	// Failure is the classification when Success is false
	Failure FailureClassification `json:"failure,omitempty"`
	// Err is the raw error text, retained for diagnostics. Optional.
	Err string `json:"err,omitempty"`
}

// Verdict is the Capability Prober's judgement for one (identity, subject,
// endpoint) combination.
type Verdict int

const (
	// Indeterminate means the trial failed in a way that says nothing about
	// authorization. It is surfaced to the caller as a hard failure.
	Indeterminate Verdict = iota
	// Authorized means the trial was accepted and forwarded by the broker
	Authorized
	// Denied means the broker refused the trial for this identity
	Denied
)

func (a Verdict) String() string {
	switch a {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	default:
		return "indeterminate"
	}
}
