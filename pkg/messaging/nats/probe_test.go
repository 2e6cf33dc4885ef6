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
	"testing"
	"time"

	"github.com/opsgate/permprobe/pkg/messaging"
	"github.com/opsgate/permprobe/pkg/messaging/nats"
	"github.com/opsgate/permprobe/pkg/messaging/natstest"
	"github.com/opsgate/permprobe/pkg/metrics"
)

func TestProbeServedSubject(t *testing.T) {
	metrics.ResetRegistry()
	s := natstest.RunServer(t, natstest.DefaultOptions())
	identity := natstest.Identity("alpha", false, natstest.Endpoint("main", s))

	responder, err := nats.Connect(identity, identity.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	defer responder.Close()
	sub, err := responder.Subscribe("rpc.hello", 8)
	if err != nil {
		t.Fatalf("subscribe failed : %v", err)
	}
	responder.Flush(time.Second)
	go func() {
		for msg := range sub.Channel() {
			if msg.ReplyTo != "" {
				responder.Publish(msg.ReplyTo.AsSubject(), []byte("pong"))
			}
		}
	}()

	session, err := nats.Connect(identity, identity.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	defer session.Close()

	verdict, outcome := nats.Probe(session, "rpc.hello", time.Second, identity.ProbePolicy())
	if verdict != messaging.Authorized {
		t.Errorf("a served subject should probe authorized : %s / %+v", verdict, outcome)
	}
	if !outcome.Success {
		t.Errorf("outcome should be successful : %+v", outcome)
	}
}

// An unserved subject is ambiguous: the policy decides how NoResponder is read.
func TestProbeUnservedSubjectPolicy(t *testing.T) {
	metrics.ResetRegistry()
	s := natstest.RunServer(t, natstest.DefaultOptions())

	full := natstest.Identity("alpha", false, natstest.Endpoint("main", s))
	session, err := nats.Connect(full, full.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	defer session.Close()

	verdict, outcome := nats.Probe(session, "rpc.nobody.listens", 500*time.Millisecond, messaging.AssumeUnservedOnNoResponder)
	if verdict != messaging.Authorized {
		t.Errorf("full access identities read NoResponder as authorized-but-unserved : %s / %+v", verdict, outcome)
	}

	verdict, outcome = nats.Probe(session, "rpc.nobody.listens", 500*time.Millisecond, messaging.AssumeDeniedOnNoResponder)
	if verdict != messaging.Denied {
		t.Errorf("restricted identities read NoResponder as denied : %s / %+v", verdict, outcome)
	}
	if outcome.Failure != messaging.AuthorizationDenied {
		t.Errorf("the assumed denial should be classified as such : %+v", outcome)
	}
}

// Subscribe authorization is settled by a trial registration: a permitted
// pattern probes authorized even when nobody publishes on it, and the
// identity's publish rights play no part.
func TestProbeSubscriptionVerdicts(t *testing.T) {
	metrics.ResetRegistry()
	opts := natstest.WithUsers(natstest.DefaultOptions(),
		natstest.UserFor("beta", []string{"_INBOX.>"}, []string{"orders.>"}),
	)
	s := natstest.RunServer(t, opts)
	identity := natstest.Identity("beta", true, natstest.Endpoint("main", s))

	session, err := nats.Connect(identity, identity.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	defer session.Close()

	verdict, outcome := nats.ProbeSubscription(session, "orders.>", 500*time.Millisecond, identity.ProbePolicy())
	if verdict != messaging.Authorized {
		t.Errorf("a permitted pattern should probe authorized : %s / %+v", verdict, outcome)
	}
	if !outcome.Success {
		t.Errorf("outcome should be successful : %+v", outcome)
	}

	verdict, outcome = nats.ProbeSubscription(session, "rpc.hello", 500*time.Millisecond, identity.ProbePolicy())
	if verdict != messaging.Denied {
		t.Errorf("a forbidden pattern should probe denied : %s / %+v", verdict, outcome)
	}
	if outcome.Failure != messaging.AuthorizationDenied {
		t.Errorf("the denial should be classified : %+v", outcome)
	}
}

func TestProbeDeniedSubject(t *testing.T) {
	metrics.ResetRegistry()
	opts := natstest.WithUsers(natstest.DefaultOptions(),
		natstest.UserFor("beta", []string{"rpc.fallback.>"}, []string{"_INBOX.>"}),
	)
	s := natstest.RunServer(t, opts)
	identity := natstest.Identity("beta", true, natstest.Endpoint("main", s))

	session, err := nats.Connect(identity, identity.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	defer session.Close()

	verdict, outcome := nats.Probe(session, "rpc.hello", 500*time.Millisecond, identity.ProbePolicy())
	if verdict != messaging.Denied {
		t.Errorf("a denied subject should probe denied : %s / %+v", verdict, outcome)
	}
	if outcome.Failure != messaging.AuthorizationDenied {
		t.Errorf("the denial should be classified : %+v", outcome)
	}
	if outcome.Success {
		t.Errorf("a denied probe is not a success : %+v", outcome)
	}
}
