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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgate/permprobe/pkg/harness"
	"github.com/opsgate/permprobe/pkg/messaging"
)

func TestArchiveRoundTrip(t *testing.T) {
	archive, err := harness.OpenArchive(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer archive.Close()

	report := &harness.Report{
		RunID:   "run-1",
		Started: time.Now().UTC(),
		Cases: []harness.CaseResult{{
			Scenario: "denied-primary",
			Identity: "beta",
			Expected: []string{"alpha-sub"},
			Actual:   []string{"alpha-sub"},
			Pass:     true,
			Outcomes: []messaging.Outcome{{
				Identity: "beta",
				Cluster:  "main",
				Subject:  "rpc.hello",
				Failure:  messaging.AuthorizationDenied,
				Err:      "permissions violation",
			}},
		}},
		MessageCounts: map[string]uint64{"alpha-sub": 1},
	}
	require.NoError(t, archive.SaveReport(report))

	loaded, err := archive.Report("run-1")
	require.NoError(t, err)
	assert.Equal(t, report.RunID, loaded.RunID)
	require.Len(t, loaded.Cases, 1)
	assert.Equal(t, report.Cases[0].Scenario, loaded.Cases[0].Scenario)
	assert.Equal(t, report.Cases[0].Outcomes[0].Failure, loaded.Cases[0].Outcomes[0].Failure)
	assert.Equal(t, uint64(1), loaded.MessageCounts["alpha-sub"])
	assert.True(t, loaded.Passed())
}

func TestArchiveRunIDs(t *testing.T) {
	archive, err := harness.OpenArchive(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer archive.Close()

	for _, id := range []string{"run-a", "run-b"} {
		require.NoError(t, archive.SaveReport(&harness.Report{RunID: id}))
	}
	ids, err := archive.RunIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-a", "run-b"}, ids)
}

func TestArchiveMissingReport(t *testing.T) {
	archive, err := harness.OpenArchive(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer archive.Close()

	_, err = archive.Report("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}
