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
	"fmt"
	"sync"
	"time"

	"github.com/opsgate/permprobe/pkg/logging"
	"github.com/opsgate/permprobe/pkg/messaging"
)

// Publisher sends one-way and request/reply messages over a session,
// recording an Outcome for every attempt. Two fallback modes are supported:
//
//   - subject fallback: a fixed endpoint and two candidate subjects; the
//     fallback subject is attempted only after the primary subject failed
//     with a retryable classification (RequestWithFallback).
//   - endpoint fallback: a fixed subject and multiple candidate endpoints;
//     endpoint selection is delegated to the Selector (NewPublisherWithFallback).
type Publisher struct {
	session *Session

	mutex    sync.Mutex
	outcomes []messaging.Outcome
}

// NewPublisher creates a publisher over an established session (subject-fallback mode)
func NewPublisher(session *Session) *Publisher {
	return &Publisher{session: session}
}

// NewPublisherWithFallback runs the fallback selector over the identity's
// ordered endpoints and returns a publisher over the selected endpoint's
// session (endpoint-fallback mode). The selector's attempt outcomes seed the
// publisher's outcome sequence. On exhaustion the *messaging.ExhaustedError
// is returned as is.
func NewPublisherWithFallback(selector *Selector, identity messaging.Identity, subject messaging.Subject) (*Publisher, error) {
	session, _, attempts, err := selector.SelectEndpoint(identity, identity.Endpoints, subject, identity.ProbePolicy())
	if err != nil {
		return nil, err
	}
	return &Publisher{session: session, outcomes: attempts}, nil
}

// Session returns the session the publisher operates over
func (a *Publisher) Session() *Session {
	return a.session
}

// Outcomes returns a copy of the recorded outcome sequence, in attempt order
func (a *Publisher) Outcomes() []messaging.Outcome {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	outcomes := make([]messaging.Outcome, len(a.outcomes))
	copy(outcomes, a.outcomes)
	return outcomes
}

func (a *Publisher) record(outcome messaging.Outcome) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.outcomes = append(a.outcomes, outcome)
}

// Publish sends a one-way message. Success means only that the client-side
// send completed: the broker may silently drop an unauthorized one-way
// publish with no signal to the client.
func (a *Publisher) Publish(subject messaging.Subject, data []byte) error {
	start := time.Now()
	err := a.session.Publish(subject, data)
	outcome := messaging.Outcome{
		Identity: a.session.Identity().Name,
		Cluster:  a.session.Cluster(),
		Subject:  subject,
		Success:  err == nil,
		Elapsed:  time.Since(start),
	}
	if err != nil {
		outcome.Failure = Classify(err)
		outcome.Err = err.Error()
	}
	a.record(outcome)
	return err
}

// Request sends a request and waits for the reply, bounded by the timeout.
// A failed attempt is reclassified as AuthorizationDenied when the broker
// reported a permission violation for the subject during the attempt.
func (a *Publisher) Request(subject messaging.Subject, data []byte, timeout time.Duration) (*messaging.Message, error) {
	start := time.Now()
	reply, err := a.session.Request(subject, data, timeout)
	outcome := messaging.Outcome{
		Identity: a.session.Identity().Name,
		Cluster:  a.session.Cluster(),
		Subject:  subject,
		Success:  err == nil,
		Elapsed:  time.Since(start),
	}
	if err != nil {
		outcome.Failure = Classify(err)
		outcome.Err = err.Error()
		for _, violation := range a.session.ViolationsSince(start) {
			if violation.Subject == subject || violation.Subject.Covers(subject) {
				outcome.Failure = messaging.AuthorizationDenied
				outcome.Err = violation.Err
				break
			}
		}
	}
	a.record(outcome)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// RequestWithFallback attempts the request on the primary subject and, iff
// that attempt failed with a retryable classification (NoResponder,
// AuthorizationDenied, Timeout), retries exactly once on the fallback subject
// with a fresh timeout. The fallback subject is never contacted while the
// primary has not failed. On double failure the returned error is a
// *messaging.FallbackError naming both subjects and both failure reasons.
func (a *Publisher) RequestWithFallback(primary, fallback messaging.Subject, data []byte, timeout time.Duration) (*messaging.Message, error) {
	reply, primaryErr := a.Request(primary, data, timeout)
	if primaryErr == nil {
		return reply, nil
	}

	primaryFailure := a.lastFailure()
	if !primaryFailure.Retryable() {
		// unexpected transport error - surfaced verbatim, no fallback
		return nil, primaryErr
	}

	logger.Info().Str(logging.EVENT, EVENT_SUBJECT_FALLBACK).
		Str(logging.IDENTITY, a.session.Identity().Name).
		Str(logging.SUBJECT, string(primary)).
		Str("failure", primaryFailure.String()).
		Str("next", string(fallback)).Msg("")

	reply, fallbackErr := a.Request(fallback, data, timeout)
	if fallbackErr == nil {
		return reply, nil
	}

	return nil, &messaging.FallbackError{
		Primary:         primary,
		PrimaryFailure:  primaryFailure,
		PrimaryErr:      primaryErr,
		Fallback:        fallback,
		FallbackFailure: a.lastFailure(),
		FallbackErr:     fallbackErr,
	}
}

// RequestAll sends one request and collects every structured acknowledgement
// that arrives on a dedicated reply inbox within the window. Unlike Request,
// which resolves on the first reply, RequestAll observes the full receiver
// set of a broadcast subject.
//
// Zero acknowledgements within the window is a failure; the attempt is
// classified AuthorizationDenied when the broker reported a permission
// violation for the subject, Timeout otherwise.
func (a *Publisher) RequestAll(subject messaging.Subject, data []byte, window time.Duration) ([]messaging.Ack, error) {
	if window <= 0 {
		window = DefaultRequestTimeout
	}
	start := time.Now()
	outcome := messaging.Outcome{
		Identity: a.session.Identity().Name,
		Cluster:  a.session.Cluster(),
		Subject:  subject,
	}

	inbox := a.session.NewInbox()
	sub, err := a.session.Subscribe(inbox, 64)
	if err != nil {
		outcome.Success = false
		outcome.Elapsed = time.Since(start)
		outcome.Failure = Classify(err)
		outcome.Err = err.Error()
		a.record(outcome)
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := a.session.PublishRequest(subject, inbox.AsReplyTo(), data); err != nil {
		outcome.Success = false
		outcome.Elapsed = time.Since(start)
		outcome.Failure = Classify(err)
		outcome.Err = err.Error()
		a.record(outcome)
		return nil, err
	}

	var acks []messaging.Ack
	deadline := time.NewTimer(window)
	defer deadline.Stop()
collect:
	for {
		select {
		case msg := <-sub.Channel():
			var ack messaging.Ack
			if err := json.Unmarshal(msg.Data, &ack); err != nil {
				logger.Warn().Err(err).Msg("malformed ack")
				continue
			}
			acks = append(acks, ack)
		case <-deadline.C:
			break collect
		}
	}

	outcome.Elapsed = time.Since(start)
	if len(acks) == 0 {
		outcome.Success = false
		outcome.Failure = messaging.Timeout
		outcome.Err = "no acknowledgements within window"
		for _, violation := range a.session.ViolationsSince(start) {
			if violation.Subject == subject || violation.Subject.Covers(subject) {
				outcome.Failure = messaging.AuthorizationDenied
				outcome.Err = violation.Err
				break
			}
		}
		a.record(outcome)
		return nil, fmt.Errorf("no acknowledgements on %q within %s", subject, window)
	}
	outcome.Success = true
	a.record(outcome)
	return acks, nil
}

// RequestAllWithFallback runs RequestAll on the primary subject and, iff that
// attempt failed with a retryable classification, retries exactly once on the
// fallback subject with a fresh window.
func (a *Publisher) RequestAllWithFallback(primary, fallback messaging.Subject, data []byte, window time.Duration) ([]messaging.Ack, error) {
	acks, primaryErr := a.RequestAll(primary, data, window)
	if primaryErr == nil {
		return acks, nil
	}
	primaryFailure := a.lastFailure()
	if !primaryFailure.Retryable() {
		return nil, primaryErr
	}
	logger.Info().Str(logging.EVENT, EVENT_SUBJECT_FALLBACK).
		Str(logging.IDENTITY, a.session.Identity().Name).
		Str(logging.SUBJECT, string(primary)).
		Str("failure", primaryFailure.String()).
		Str("next", string(fallback)).Msg("")
	acks, fallbackErr := a.RequestAll(fallback, data, window)
	if fallbackErr == nil {
		return acks, nil
	}
	return nil, &messaging.FallbackError{
		Primary:         primary,
		PrimaryFailure:  primaryFailure,
		PrimaryErr:      primaryErr,
		Fallback:        fallback,
		FallbackFailure: a.lastFailure(),
		FallbackErr:     fallbackErr,
	}
}

// lastFailure reads the classification of the most recently recorded outcome
func (a *Publisher) lastFailure() messaging.FailureClassification {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if len(a.outcomes) == 0 {
		return messaging.Unknown
	}
	return a.outcomes[len(a.outcomes)-1].Failure
}

// Close closes the underlying session
func (a *Publisher) Close() {
	a.session.Close()
}
