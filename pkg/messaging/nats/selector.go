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
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opsgate/permprobe/pkg/logging"
	"github.com/opsgate/permprobe/pkg/messaging"
)

// ConnectFunc opens a session for the identity on the endpoint
type ConnectFunc func(identity messaging.Identity, endpoint messaging.Endpoint, timeout time.Duration, options ...nats.Option) (*Session, error)

// ProbeFunc classifies whether the session's identity is authorized for the subject
type ProbeFunc func(session *Session, subject messaging.Subject, trialTimeout time.Duration, policy messaging.ProbePolicy) (messaging.Verdict, messaging.Outcome)

// Selector picks the first viable endpoint from an ordered candidate list.
// Selection is deterministic: candidates are tried strictly in input order,
// never reordered, never ranked by latency. Given the same sequence of probe
// verdicts the selected endpoint is always the same.
type Selector struct {
	// ConnectTimeout bounds each endpoint's connection handshake
	ConnectTimeout time.Duration
	// ProbeTimeout bounds each endpoint's capability trial
	ProbeTimeout time.Duration

	// Connect and Probe default to the package implementations. Tests
	// substitute them to drive fixed verdict sequences.
	Connect ConnectFunc
	Probe   ProbeFunc
}

func (a *Selector) connectFunc() ConnectFunc {
	if a.Connect != nil {
		return a.Connect
	}
	return Connect
}

func (a *Selector) probeFunc() ProbeFunc {
	if a.Probe != nil {
		return a.Probe
	}
	return Probe
}

// SelectEndpoint iterates the ordered endpoints: connect, probe the subject,
// accept the first endpoint whose probe verdict is Authorized. Sessions for
// rejected endpoints are closed before moving on.
//
// The returned attempts slice records every attempt in input order, the
// accepted one included. When no endpoint is accepted the returned error is a
// *messaging.ExhaustedError carrying the same attempts.
func (a *Selector) SelectEndpoint(identity messaging.Identity, endpoints []messaging.Endpoint, subject messaging.Subject, policy messaging.ProbePolicy) (*Session, messaging.Endpoint, []messaging.Outcome, error) {
	connect := a.connectFunc()
	probe := a.probeFunc()

	attempts := make([]messaging.Outcome, 0, len(endpoints))
	for _, endpoint := range endpoints {
		start := time.Now()
		session, err := connect(identity, endpoint, a.ConnectTimeout)
		if err != nil {
			attempts = append(attempts, messaging.Outcome{
				Identity: identity.Name,
				Cluster:  endpoint.Cluster,
				Subject:  subject,
				Success:  false,
				Elapsed:  time.Since(start),
				Failure:  messaging.TransportError,
				Err:      err.Error(),
			})
			logger.Info().Str(logging.EVENT, EVENT_ENDPOINT_SELECT).
				Str(logging.IDENTITY, identity.Name).
				Str(logging.ENDPOINT, endpoint.Cluster.String()).
				Str(ATTEMPT, "connect_failed").
				Err(err).Msg("")
			continue
		}

		verdict, outcome := probe(session, subject, a.ProbeTimeout, policy)
		attempts = append(attempts, outcome)
		if verdict == messaging.Authorized {
			endpointSelectedCounter.WithLabelValues(endpoint.Cluster.String()).Inc()
			logger.Info().Str(logging.EVENT, EVENT_ENDPOINT_SELECT).
				Str(logging.IDENTITY, identity.Name).
				Str(logging.ENDPOINT, endpoint.Cluster.String()).
				Str(ATTEMPT, "accepted").Msg("")
			return session, endpoint, attempts, nil
		}

		session.Close()
		logger.Info().Str(logging.EVENT, EVENT_ENDPOINT_SELECT).
			Str(logging.IDENTITY, identity.Name).
			Str(logging.ENDPOINT, endpoint.Cluster.String()).
			Str(ATTEMPT, verdict.String()).Msg("")
	}

	return nil, messaging.Endpoint{}, attempts, &messaging.ExhaustedError{
		Identity: identity.Name,
		Subject:  subject,
		Attempts: attempts,
	}
}
