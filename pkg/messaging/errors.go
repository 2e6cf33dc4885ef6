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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSubjectMustNotBeBlank indicates a blank subject
	ErrSubjectMustNotBeBlank = errors.New("subject must not be blank")
	// ErrSubjectInvalid indicates a malformed subject, e.g. an empty segment
	ErrSubjectInvalid = errors.New("subject is malformed")
	// ErrReplyToMustNotBeBlank indicates a blank reply subject
	ErrReplyToMustNotBeBlank = errors.New("replyTo must not be blank")
	// ErrClusterNameMustNotBeBlank indicates a blank cluster name
	ErrClusterNameMustNotBeBlank = errors.New("cluster name must not be blank")
	// ErrEndpointURLMustNotBeBlank indicates an endpoint without a transport URI
	ErrEndpointURLMustNotBeBlank = errors.New("endpoint URL must not be blank")
	// ErrIdentityNameMustNotBeBlank indicates an identity without a name
	ErrIdentityNameMustNotBeBlank = errors.New("identity name must not be blank")
	// ErrIdentityHasNoEndpoints indicates an identity with an empty endpoint list
	ErrIdentityHasNoEndpoints = errors.New("identity has no endpoints")
	// ErrSessionClosed indicates an operation on a closed session
	ErrSessionClosed = errors.New("session is closed")
	// ErrAllPatternsFailed indicates that no subject pattern could be registered
	ErrAllPatternsFailed = errors.New("every subject pattern failed to register")
	// ErrSubscriberStopped indicates the subscriber was stopped before it began listening
	ErrSubscriberStopped = errors.New("subscriber was stopped before it began listening")
)

// ConnectError reports a failed connection handshake. It is always fatal for
// that endpoint attempt - retry against the next endpoint is the Fallback
// Selector's responsibility, never this error's producer's.
type ConnectError struct {
	Cluster ClusterName
	Reason  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %q failed: %v", e.Cluster, e.Reason)
}

func (e *ConnectError) Unwrap() error {
	return e.Reason
}

// ExhaustedError reports that every candidate endpoint was tried and none
// was accepted. Attempts carries every attempt's Outcome in input order so
// callers can inspect all of them, not just the last.
type ExhaustedError struct {
	Identity string
	Subject  Subject
	Attempts []Outcome
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, len(e.Attempts))
	for i, attempt := range e.Attempts {
		reasons[i] = fmt.Sprintf("%s=%s", attempt.Cluster, attempt.Failure)
	}
	return fmt.Sprintf("identity %q exhausted all endpoints for subject %q: [%s]",
		e.Identity, e.Subject, strings.Join(reasons, ", "))
}

// FallbackError reports that both the primary and the fallback subject failed.
// It names both subjects and both failure reasons.
type FallbackError struct {
	Primary         Subject
	PrimaryFailure  FailureClassification
	PrimaryErr      error
	Fallback        Subject
	FallbackFailure FailureClassification
	FallbackErr     error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("request failed on primary subject %q (%s: %v) and fallback subject %q (%s: %v)",
		e.Primary, e.PrimaryFailure, e.PrimaryErr,
		e.Fallback, e.FallbackFailure, e.FallbackErr)
}
