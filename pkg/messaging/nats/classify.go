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
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/opsgate/permprobe/pkg/messaging"
)

// Classify maps a raw client error to a FailureClassification. Structured
// client errors are matched first. The broker reports permission violations
// only as free-text async errors, so for those a substring match is the only
// available signal - a known-weak heuristic, kept deliberately narrow.
func Classify(err error) messaging.FailureClassification {
	switch {
	case err == nil:
		return messaging.Unknown
	case errors.Is(err, nats.ErrNoResponders):
		return messaging.NoResponder
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return messaging.Timeout
	case errors.Is(err, nats.ErrAuthorization):
		return messaging.AuthorizationDenied
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrNoServers),
		errors.Is(err, messaging.ErrSessionClosed):
		return messaging.TransportError
	case isPermissionViolation(err):
		return messaging.AuthorizationDenied
	default:
		var connErr *messaging.ConnectError
		if errors.As(err, &connErr) {
			return messaging.TransportError
		}
		return messaging.Unknown
	}
}

// isPermissionViolation detects the broker's async permission error. There is
// no typed error for it in the client, only the server's error text.
func isPermissionViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "permissions violation")
}

// violationSubject extracts the quoted subject from a permission violation's
// error text, e.g. `Permissions Violation for Publish to "rpc.hello.world"`.
// Returns "" when no quoted subject is present.
func violationSubject(errText string) messaging.Subject {
	start := strings.IndexByte(errText, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(errText[start+1:], '"')
	if end < 0 {
		return ""
	}
	return messaging.Subject(errText[start+1 : start+1+end])
}
