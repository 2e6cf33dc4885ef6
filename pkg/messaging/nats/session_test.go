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

// waitFor polls the condition until it holds or the timeout elapses. Used for
// signals that arrive on the client's async callback goroutine.
func waitFor(t *testing.T, timeout time.Duration, msg string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition never held : %s", msg)
}

func TestSessionPubSub(t *testing.T) {
	metrics.ResetRegistry()
	s := natstest.RunServer(t, natstest.DefaultOptions())
	identity := natstest.Identity("alpha", false, natstest.Endpoint("main", s))

	session, err := nats.Connect(identity, identity.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	defer session.Close()

	if !session.Connected() {
		t.Error("session should report connected")
	}
	if session.ID() == "" {
		t.Error("session should have an id")
	}
	if session.Cluster() != "main" {
		t.Errorf("cluster label : %s", session.Cluster())
	}

	sub, err := session.Subscribe("rpc.hello", 8)
	if err != nil {
		t.Fatalf("subscribe failed : %v", err)
	}
	session.Flush(time.Second)

	if err := session.Publish("rpc.hello", []byte("hi")); err != nil {
		t.Fatalf("publish failed : %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Subject != "rpc.hello" || string(msg.Data) != "hi" {
			t.Errorf("unexpected message : %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("unsubscribe failed : %v", err)
	}
}

func TestSessionRequestReply(t *testing.T) {
	metrics.ResetRegistry()
	s := natstest.RunServer(t, natstest.DefaultOptions())
	identity := natstest.Identity("alpha", false, natstest.Endpoint("main", s))

	responder, err := nats.Connect(identity, identity.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	defer responder.Close()

	sub, err := responder.Subscribe("rpc.echo", 8)
	if err != nil {
		t.Fatalf("subscribe failed : %v", err)
	}
	responder.Flush(time.Second)
	go func() {
		for msg := range sub.Channel() {
			if msg.ReplyTo != "" {
				responder.Publish(msg.ReplyTo.AsSubject(), msg.Data)
			}
		}
	}()

	requester, err := nats.Connect(identity, identity.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	defer requester.Close()

	reply, err := requester.Request("rpc.echo", []byte("ping"), 2*time.Second)
	if err != nil {
		t.Fatalf("request failed : %v", err)
	}
	if string(reply.Data) != "ping" {
		t.Errorf("unexpected reply : %s", reply.Data)
	}
}

func TestSessionRecordsViolations(t *testing.T) {
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

	start := time.Now()
	// the broker silently drops the message; the violation arrives async
	if err := session.Publish("rpc.hello", []byte("hi")); err != nil {
		t.Fatalf("client side send should complete : %v", err)
	}
	session.Flush(time.Second)

	waitFor(t, 2*time.Second, "violation recorded", func() bool {
		return len(session.ViolationsSince(start)) > 0
	})
	violations := session.ViolationsSince(start)
	if violations[0].Subject != "rpc.hello" {
		t.Errorf("violation should name the denied subject : %+v", violations[0])
	}
	if session.LastError() == nil {
		t.Error("the violation should be retained as the last error")
	}

	// a violation observed before the window is excluded
	if len(session.ViolationsSince(time.Now().Add(time.Hour))) != 0 {
		t.Error("future window should match nothing")
	}
}

func TestSessionConnectFailures(t *testing.T) {
	metrics.ResetRegistry()
	opts := natstest.WithUsers(natstest.DefaultOptions(),
		natstest.UserFor("alpha", nil, nil),
	)
	s := natstest.RunServer(t, opts)

	// unknown user
	mallory := natstest.Identity("mallory", false, natstest.Endpoint("main", s))
	_, err := nats.Connect(mallory, mallory.Endpoints[0], time.Second)
	var connErr *messaging.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("bad credentials should return *messaging.ConnectError : %v", err)
	}
	if connErr.Cluster != "main" {
		t.Errorf("connect error should name the cluster : %+v", connErr)
	}

	// unreachable endpoint
	endpoint := messaging.Endpoint{Cluster: "down", URL: "nats://127.0.0.1:1"}
	alpha := natstest.Identity("alpha", false, endpoint)
	_, err = nats.Connect(alpha, endpoint, 250*time.Millisecond)
	if !errors.As(err, &connErr) {
		t.Fatalf("unreachable endpoint should return *messaging.ConnectError : %v", err)
	}

	// invalid identity
	_, err = nats.Connect(messaging.Identity{}, endpoint, time.Second)
	if !errors.As(err, &connErr) {
		t.Fatalf("invalid identity should return *messaging.ConnectError : %v", err)
	}
}

func TestSessionClosedOperations(t *testing.T) {
	metrics.ResetRegistry()
	s := natstest.RunServer(t, natstest.DefaultOptions())
	identity := natstest.Identity("alpha", false, natstest.Endpoint("main", s))

	session, err := nats.Connect(identity, identity.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	session.Close()
	session.Close() // safe to close twice

	if !session.Closed() {
		t.Error("session should report closed")
	}
	if err := session.Publish("rpc.hello", nil); !errors.Is(err, messaging.ErrSessionClosed) {
		t.Errorf("publish on closed session : %v", err)
	}
	if _, err := session.Request("rpc.hello", nil, time.Second); !errors.Is(err, messaging.ErrSessionClosed) {
		t.Errorf("request on closed session : %v", err)
	}
	if _, err := session.Subscribe("rpc.hello", 8); !errors.Is(err, messaging.ErrSessionClosed) {
		t.Errorf("subscribe on closed session : %v", err)
	}
	if err := session.Flush(time.Second); !errors.Is(err, messaging.ErrSessionClosed) {
		t.Errorf("flush on closed session : %v", err)
	}
}

func TestSessionInfo(t *testing.T) {
	metrics.ResetRegistry()
	s := natstest.RunServer(t, natstest.DefaultOptions())
	identity := natstest.Identity("alpha", false, natstest.Endpoint("main", s))

	session, err := nats.Connect(identity, identity.Endpoints[0], time.Second)
	if err != nil {
		t.Fatalf("connect failed : %v", err)
	}
	defer session.Close()

	info := session.Info()
	if info.Identity != "alpha" || info.Cluster != "main" || !info.Connected {
		t.Errorf("unexpected session info : %+v", info)
	}
	if session.String() == "" {
		t.Error("String should render the info snapshot")
	}
}
