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

package nats_test

import (
	"errors"
	"testing"
	"time"

	"github.com/opsgate/permprobe/pkg/messaging"
	"github.com/opsgate/permprobe/pkg/messaging/nats"
	"github.com/opsgate/permprobe/pkg/messaging/natstest"
	"github.com/opsgate/permprobe/pkg/metrics"
)

// scriptedSelector builds a selector whose probe verdicts are fixed per
// cluster label. Connections are real, against the given server, so that
// rejected sessions are closed the way production code closes them.
func scriptedSelector(verdicts map[messaging.ClusterName]messaging.Verdict, probed *[]messaging.ClusterName) *nats.Selector {
	return &nats.Selector{
		ConnectTimeout: time.Second,
		Probe: func(session *nats.Session, subject messaging.Subject, trialTimeout time.Duration, policy messaging.ProbePolicy) (messaging.Verdict, messaging.Outcome) {
			cluster := session.Cluster()
			*probed = append(*probed, cluster)
			verdict := verdicts[cluster]
			outcome := messaging.Outcome{
				Identity: session.Identity().Name,
				Cluster:  cluster,
				Subject:  subject,
				Success:  verdict == messaging.Authorized,
			}
			if verdict != messaging.Authorized {
				outcome.Failure = messaging.AuthorizationDenied
			}
			return verdict, outcome
		},
	}
}

func TestSelectEndpointPicksFirstAuthorized(t *testing.T) {
	metrics.ResetRegistry()
	s := natstest.RunServer(t, natstest.DefaultOptions())

	endpoints := []messaging.Endpoint{
		{Cluster: "a", URL: s.ClientURL()},
		{Cluster: "b", URL: s.ClientURL()},
		{Cluster: "c", URL: s.ClientURL()},
	}
	identity := natstest.Identity("alpha", false, endpoints...)

	verdicts := map[messaging.ClusterName]messaging.Verdict{
		"a": messaging.Denied,
		"b": messaging.Authorized,
		"c": messaging.Authorized,
	}

	// selection is deterministic: same verdicts, same selected endpoint
	for i := 0; i < 3; i++ {
		var probed []messaging.ClusterName
		selector := scriptedSelector(verdicts, &probed)
		session, endpoint, attempts, err := selector.SelectEndpoint(identity, endpoints, "rpc.hello", identity.ProbePolicy())
		if err != nil {
			t.Fatalf("selection should succeed : %v", err)
		}
		if endpoint.Cluster != "b" {
			t.Errorf("run %d: should always select b, got %s", i, endpoint.Cluster)
		}
		if len(probed) != 2 || probed[0] != "a" || probed[1] != "b" {
			t.Errorf("run %d: candidates must be tried strictly in input order : %v", i, probed)
		}
		if len(attempts) != 2 {
			t.Errorf("run %d: attempts should record the rejected and the accepted endpoint : %v", i, attempts)
		}
		if attempts[0].Success || attempts[0].Cluster != "a" {
			t.Errorf("run %d: first attempt should be the rejected a : %+v", i, attempts[0])
		}
		if !attempts[1].Success || attempts[1].Cluster != "b" {
			t.Errorf("run %d: second attempt should be the accepted b : %+v", i, attempts[1])
		}
		session.Close()
	}
}

func TestSelectEndpointExhaustion(t *testing.T) {
	metrics.ResetRegistry()
	s := natstest.RunServer(t, natstest.DefaultOptions())

	endpoints := []messaging.Endpoint{
		{Cluster: "a", URL: s.ClientURL()},
		{Cluster: "b", URL: s.ClientURL()},
		{Cluster: "c", URL: s.ClientURL()},
	}
	identity := natstest.Identity("beta", true, endpoints...)

	verdicts := map[messaging.ClusterName]messaging.Verdict{
		"a": messaging.Denied,
		"b": messaging.Denied,
		"c": messaging.Denied,
	}
	var probed []messaging.ClusterName
	selector := scriptedSelector(verdicts, &probed)

	session, _, attempts, err := selector.SelectEndpoint(identity, endpoints, "rpc.hello", identity.ProbePolicy())
	if session != nil {
		t.Fatal("no session should be returned on exhaustion")
	}
	var exhausted *messaging.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("exhaustion should return *messaging.ExhaustedError : %v", err)
	}
	if len(exhausted.Attempts) != 3 || len(attempts) != 3 {
		t.Fatalf("every endpoint's attempt must be recorded : %v", exhausted.Attempts)
	}
	for i, cluster := range []messaging.ClusterName{"a", "b", "c"} {
		if exhausted.Attempts[i].Cluster != cluster {
			t.Errorf("attempts[%d] should be %s : %+v", i, cluster, exhausted.Attempts[i])
		}
		if exhausted.Attempts[i].Failure != messaging.AuthorizationDenied {
			t.Errorf("attempts[%d] should be classified denied : %+v", i, exhausted.Attempts[i])
		}
	}
}

func TestSelectEndpointSkipsUnreachable(t *testing.T) {
	metrics.ResetRegistry()
	s := natstest.RunServer(t, natstest.DefaultOptions())

	endpoints := []messaging.Endpoint{
		{Cluster: "down", URL: "nats://127.0.0.1:1"},
		{Cluster: "up", URL: s.ClientURL()},
	}
	identity := natstest.Identity("alpha", false, endpoints...)

	var probed []messaging.ClusterName
	selector := scriptedSelector(map[messaging.ClusterName]messaging.Verdict{"up": messaging.Authorized}, &probed)
	selector.ConnectTimeout = 250 * time.Millisecond

	session, endpoint, attempts, err := selector.SelectEndpoint(identity, endpoints, "rpc.hello", identity.ProbePolicy())
	if err != nil {
		t.Fatalf("selection should fall through to the reachable endpoint : %v", err)
	}
	defer session.Close()
	if endpoint.Cluster != "up" {
		t.Errorf("should select the reachable endpoint : %s", endpoint.Cluster)
	}
	if len(attempts) != 2 || attempts[0].Failure != messaging.TransportError {
		t.Errorf("the unreachable endpoint should be recorded as a transport error : %+v", attempts)
	}
	if len(probed) != 1 || probed[0] != "up" {
		t.Errorf("the unreachable endpoint must not be probed : %v", probed)
	}
}
