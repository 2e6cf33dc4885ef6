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

package harness_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/permprobe/pkg/harness"
	"github.com/opsgate/permprobe/pkg/messaging/natstest"
)

func TestCheckBroker(t *testing.T) {
	s := natstest.RunServer(t, natstest.DefaultOptions())
	endpoint := natstest.Endpoint("main", s)
	require.NotEmpty(t, endpoint.MonitorURL)

	info, err := harness.CheckBroker(endpoint.MonitorURL, "", 2*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, info.ServerID)
	assert.NotEmpty(t, info.Version)

	// the embedded server is a 2.x release
	info, err = harness.CheckBroker(endpoint.MonitorURL, "2.0.0", 2*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, info.Version)
}

func TestCheckBrokerVersionGate(t *testing.T) {
	s := natstest.RunServer(t, natstest.DefaultOptions())
	endpoint := natstest.Endpoint("main", s)

	_, err := harness.CheckBroker(endpoint.MonitorURL, "999.0.0", 2*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not satisfy")

	_, err = harness.CheckBroker(endpoint.MonitorURL, "not-a-version", 2*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_broker_version")
}

func TestCheckBrokerUnreachable(t *testing.T) {
	_, err := harness.CheckBroker("http://127.0.0.1:1", "", 500*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
