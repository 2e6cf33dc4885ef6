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

	"github.com/opsgate/permprobe/pkg/logging"
	"github.com/opsgate/permprobe/pkg/messaging"
)

// probeSentinel is the trial payload. No real responder is expected to answer
// it meaningfully; a timeout waiting for a reply is the expected outcome on an
// authorized but unserved subject.
var probeSentinel = []byte("capability-probe")

// Probe issues a low-cost request-style trial on the subject to classify
// whether the session's identity is authorized for it.
//
// The verdict is a heuristic approximation, not a guaranteed permission check:
//
//   - A timeout means the broker accepted and forwarded the trial; the absence
//     of a reply only means no subscriber is listening. Verdict: Authorized.
//   - A NoResponder failure is ambiguous. The policy decides: restricted
//     identities assume Denied, full-access identities assume
//     authorized-but-unserved.
//   - Any other transport-level failure is Indeterminate and surfaced in the
//     outcome as a hard failure, never swallowed.
//
// An async permission violation naming the subject, observed during the trial
// window, forces Denied regardless of policy - it is the only structured-ish
// signal the broker gives.
func Probe(session *Session, subject messaging.Subject, trialTimeout time.Duration, policy messaging.ProbePolicy) (messaging.Verdict, messaging.Outcome) {
	if trialTimeout <= 0 {
		trialTimeout = DefaultProbeTimeout
	}
	start := time.Now()
	_, err := session.Request(subject, probeSentinel, trialTimeout)
	elapsed := time.Since(start)

	outcome := messaging.Outcome{
		Identity: session.Identity().Name,
		Cluster:  session.Cluster(),
		Subject:  subject,
		Elapsed:  elapsed,
	}

	verdict := messaging.Indeterminate
	switch {
	case err == nil:
		// a responder actually answered the sentinel, which settles it
		verdict = messaging.Authorized
	default:
		outcome.Err = err.Error()
		outcome.Failure = Classify(err)
		switch outcome.Failure {
		case messaging.Timeout:
			verdict = messaging.Authorized
		case messaging.NoResponder:
			if policy == messaging.AssumeDeniedOnNoResponder {
				verdict = messaging.Denied
				outcome.Failure = messaging.AuthorizationDenied
			} else {
				verdict = messaging.Authorized
			}
		case messaging.AuthorizationDenied:
			verdict = messaging.Denied
		default:
			verdict = messaging.Indeterminate
		}
	}

	// The round trip gives the broker time to report a violation for the
	// trial publish. A recorded violation naming the subject is authoritative.
	if verdict != messaging.Denied {
		session.Flush(trialTimeout)
		for _, violation := range session.ViolationsSince(start) {
			if violation.Subject == subject || violation.Subject.Covers(subject) {
				verdict = messaging.Denied
				outcome.Failure = messaging.AuthorizationDenied
				outcome.Err = violation.Err
				break
			}
		}
	}

	outcome.Success = verdict == messaging.Authorized

	probeVerdictCounter.WithLabelValues(session.Cluster().String(), verdict.String()).Inc()
	logger.Debug().Str(logging.EVENT, EVENT_PROBE).
		Str(logging.IDENTITY, session.Identity().Name).
		Str(logging.ENDPOINT, session.Cluster().String()).
		Str(logging.SUBJECT, string(subject)).
		Str(logging.VERDICT, verdict.String()).
		Dur("elapsed", elapsed).
		Msg("")

	return verdict, outcome
}

// ProbeSubscription classifies whether the session's identity may subscribe
// to the pattern. The trial is a real registration: the broker either lets it
// stand or reports an async permission violation naming the pattern during
// the trial window. The trial subscription is removed before returning.
//
// Unlike the request trial there is no no-responder ambiguity - nobody needs
// to be publishing on the pattern for the verdict to settle - so the policy
// plays no part; the parameter exists only to satisfy ProbeFunc.
func ProbeSubscription(session *Session, pattern messaging.Subject, trialTimeout time.Duration, _ messaging.ProbePolicy) (messaging.Verdict, messaging.Outcome) {
	if trialTimeout <= 0 {
		trialTimeout = DefaultProbeTimeout
	}
	start := time.Now()

	outcome := messaging.Outcome{
		Identity: session.Identity().Name,
		Cluster:  session.Cluster(),
		Subject:  pattern,
	}

	sub, err := session.Subscribe(pattern, 1)
	if err != nil {
		outcome.Elapsed = time.Since(start)
		outcome.Failure = Classify(err)
		outcome.Err = err.Error()
		return messaging.Indeterminate, outcome
	}

	// the flush round trip forces the broker to process the registration;
	// the violation, if any, lands on the async error handler shortly after
	session.Flush(trialTimeout)
	verdict := messaging.Authorized
	deadline := time.Now().Add(trialTimeout)
trial:
	for {
		for _, violation := range session.ViolationsSince(start) {
			if violation.Subject == pattern || violation.Subject.Covers(pattern) {
				verdict = messaging.Denied
				outcome.Failure = messaging.AuthorizationDenied
				outcome.Err = violation.Err
				break trial
			}
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	sub.Unsubscribe()

	outcome.Elapsed = time.Since(start)
	outcome.Success = verdict == messaging.Authorized

	probeVerdictCounter.WithLabelValues(session.Cluster().String(), verdict.String()).Inc()
	logger.Debug().Str(logging.EVENT, EVENT_PROBE).
		Str(logging.IDENTITY, session.Identity().Name).
		Str(logging.ENDPOINT, session.Cluster().String()).
		Str(PATTERN, string(pattern)).
		Str(logging.VERDICT, verdict.String()).
		Dur("elapsed", outcome.Elapsed).
		Msg("")

	return verdict, outcome
}
