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

package harness

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// BrokerInfo is the subset of the broker monitoring endpoint's /varz document
// the harness cares about.
type BrokerInfo struct {
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name"`
	Version    string `json:"version"`
}

// CheckBroker confirms the broker's monitoring endpoint is reachable and,
// when minVersion is non-blank, that the reported server version satisfies
// ">= minVersion". It is a run precondition, not part of any operation's
// functional contract.
func CheckBroker(monitorURL, minVersion string, timeout time.Duration) (*BrokerInfo, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(strings.TrimSuffix(monitorURL, "/") + "/varz")
	if err != nil {
		return nil, fmt.Errorf("broker monitoring endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broker monitoring endpoint returned %s", resp.Status)
	}

	info := &BrokerInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("broker monitoring document malformed: %w", err)
	}

	if minVersion != "" {
		constraint, err := semver.NewConstraint(">= " + minVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid min_broker_version %q: %w", minVersion, err)
		}
		version, err := semver.NewVersion(info.Version)
		if err != nil {
			return nil, fmt.Errorf("broker reported unparseable version %q: %w", info.Version, err)
		}
		if !constraint.Check(version) {
			return nil, fmt.Errorf("broker version %s does not satisfy >= %s", info.Version, minVersion)
		}
	}
	return info, nil
}
