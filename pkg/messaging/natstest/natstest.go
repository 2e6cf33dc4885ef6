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

// Package natstest runs embedded NATS servers with per-user authorization
// for tests. Each server listens on a random port; Endpoint converts a
// running server into a messaging.Endpoint.
package natstest

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/opsgate/permprobe/pkg/messaging"
)

// User declares one broker identity and its subject permissions. Empty
// Publish/Subscribe lists mean unrestricted.
type User struct {
	Name      string
	Password  string
	Publish   []string
	Subscribe []string
}

// DefaultOptions returns server options suitable for tests: random client and
// monitoring ports on localhost, logging and signal handling off.
func DefaultOptions() *server.Options {
	return &server.Options{
		Host:     "127.0.0.1",
		Port:     server.RANDOM_PORT,
		HTTPHost: "127.0.0.1",
		HTTPPort: server.RANDOM_PORT,
		NoLog:    true,
		NoSigs:   true,
	}
}

// WithUsers configures per-user authorization on the options. An identity
// not listed cannot connect at all.
func WithUsers(opts *server.Options, users ...User) *server.Options {
	for _, u := range users {
		user := &server.User{
			Username:    u.Name,
			Password:    u.Password,
			Permissions: &server.Permissions{},
		}
		if len(u.Publish) > 0 {
			user.Permissions.Publish = &server.SubjectPermission{Allow: u.Publish}
		}
		if len(u.Subscribe) > 0 {
			user.Permissions.Subscribe = &server.SubjectPermission{Allow: u.Subscribe}
		}
		opts.Users = append(opts.Users, user)
	}
	return opts
}

// RunServer starts an embedded server and waits until it accepts connections
func RunServer(t *testing.T, opts *server.Options) *server.Server {
	t.Helper()
	s, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("server.NewServer failed : %v", err)
	}
	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("server did not become ready for connections")
	}
	t.Cleanup(s.Shutdown)
	return s
}

// Endpoint converts a running server into an endpoint with the given label
func Endpoint(cluster messaging.ClusterName, s *server.Server) messaging.Endpoint {
	endpoint := messaging.Endpoint{
		Cluster: cluster,
		URL:     s.ClientURL(),
	}
	if monitor := s.MonitorAddr(); monitor != nil {
		endpoint.MonitorURL = fmt.Sprintf("http://%s", monitor.String())
	}
	return endpoint
}

// Identity builds an identity that authenticates as the given user against
// the provided endpoints.
func Identity(name string, restricted bool, endpoints ...messaging.Endpoint) messaging.Identity {
	return messaging.Identity{
		Name: name,
		Credentials: messaging.Credentials{
			Username: name,
			Password: name + "-password",
		},
		Endpoints:  endpoints,
		Restricted: restricted,
	}
}

// UserFor declares the broker-side user matching an Identity built by Identity
func UserFor(name string, publish, subscribe []string) User {
	return User{
		Name:      name,
		Password:  name + "-password",
		Publish:   publish,
		Subscribe: subscribe,
	}
}
