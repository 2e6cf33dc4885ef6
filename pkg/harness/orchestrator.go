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

// Package harness orchestrates subscriber and publisher role instances as
// in-process tasks, aggregates their Outcome sequences, and reports a
// pass/fail comparison of the actual versus the expected receiver set for
// each scenario.
package harness

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/opsgate/permprobe/pkg/config"
	"github.com/opsgate/permprobe/pkg/logging"
	"github.com/opsgate/permprobe/pkg/messaging"
	"github.com/opsgate/permprobe/pkg/messaging/nats"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CaseResult is the evaluated result of one scenario
type CaseResult struct {
	Scenario string `json:"scenario"`
	Identity string `json:"identity"`
	// Expected is the sorted expected receiver set
	Expected []string `json:"expected"`
	// Actual is the sorted set of receivers whose acknowledgements arrived
	Actual []string `json:"actual"`
	Pass   bool     `json:"pass"`
	// Outcomes is the publisher's full attempt record for the scenario
	Outcomes []messaging.Outcome `json:"outcomes"`
	// Err is set when the scenario could not be evaluated at all
	Err string `json:"err,omitempty"`
}

// Report aggregates one orchestrated run
type Report struct {
	RunID   string    `json:"run_id"`
	Started time.Time `json:"started"`
	// Brokers is what the monitoring precondition learned, keyed by cluster
	Brokers map[string]*BrokerInfo `json:"brokers,omitempty"`
	Cases   []CaseResult           `json:"cases"`
	// MessageCounts is each subscriber role's final message count
	MessageCounts map[string]uint64 `json:"message_counts"`
}

// Passed returns true when every case passed
func (a *Report) Passed() bool {
	for _, c := range a.Cases {
		if !c.Pass {
			return false
		}
	}
	return true
}

// Orchestrator drives subscriber and publisher roles for every configured
// scenario. A failure to spawn or communicate with one role is reported in
// that case's result without aborting the remaining cases.
type Orchestrator struct {
	provider config.Provider

	// ConnectTimeout bounds each role's connection handshake
	ConnectTimeout time.Duration
	// ProbeTimeout bounds endpoint-fallback capability trials
	ProbeTimeout time.Duration
	// Archive, when set, persists the run report
	Archive *Archive
	// SkipBrokerCheck disables the monitoring endpoint precondition
	SkipBrokerCheck bool
}

// NewOrchestrator creates an orchestrator over validated configuration
func NewOrchestrator(provider config.Provider) *Orchestrator {
	return &Orchestrator{
		provider:       provider,
		ConnectTimeout: nats.DefaultConnectTimeout,
		ProbeTimeout:   nats.DefaultProbeTimeout,
	}
}

// Run spawns the subscriber roles, waits the startup grace period, runs every
// scenario sequentially, stops the subscribers, and returns the aggregated
// report. Only a precondition failure aborts the run; per-case failures are
// recorded and the run continues.
func (a *Orchestrator) Run() (*Report, error) {
	report := &Report{
		RunID:         uuid.NewString(),
		Started:       time.Now(),
		Brokers:       map[string]*BrokerInfo{},
		MessageCounts: map[string]uint64{},
	}

	if !a.SkipBrokerCheck {
		if err := a.checkBrokers(report); err != nil {
			return nil, err
		}
	}

	subscribers := a.startSubscribers()
	time.Sleep(a.provider.GracePeriod())

	for _, scenario := range a.provider.Scenarios() {
		report.Cases = append(report.Cases, a.runCase(scenario))
	}

	for name, subscriber := range subscribers {
		if err := subscriber.Stop(); err != nil {
			logger.Warn().Str("subscriber", name).Err(err).Msg("subscriber stop failed")
		}
		report.MessageCounts[name] = subscriber.MessageCount()
	}

	if a.Archive != nil {
		if err := a.Archive.SaveReport(report); err != nil {
			logger.Warn().Err(err).Msg("report archive failed")
		}
	}
	return report, nil
}

// checkBrokers confirms every distinct monitoring endpoint is reachable and
// version-compatible before any role runs.
func (a *Orchestrator) checkBrokers(report *Report) error {
	seen := map[string]bool{}
	for _, identity := range a.provider.Identities() {
		for _, endpoint := range identity.Endpoints {
			if endpoint.MonitorURL == "" || seen[endpoint.MonitorURL] {
				continue
			}
			seen[endpoint.MonitorURL] = true
			info, err := CheckBroker(endpoint.MonitorURL, a.provider.MinBrokerVersion(), a.ConnectTimeout)
			if err != nil {
				return fmt.Errorf("precondition failed for cluster %q: %w", endpoint.Cluster, err)
			}
			report.Brokers[endpoint.Cluster.String()] = info
			logger.Info().Str(logging.ENDPOINT, endpoint.Cluster.String()).
				Str("version", info.Version).Msg("broker reachable")
		}
	}
	return nil
}

// startSubscribers spawns every configured subscriber role. A role that fails
// to start is logged and skipped; the rest keep running.
func (a *Orchestrator) startSubscribers() map[string]*nats.Subscriber {
	subscribers := map[string]*nats.Subscriber{}
	for _, spec := range a.provider.Subscribers() {
		subscriber := nats.NewSubscriber(nats.SubscriberConfig{
			Name:           spec.Name,
			Identity:       spec.Identity,
			Patterns:       spec.Patterns,
			Queue:          spec.Queue,
			ConnectTimeout: a.ConnectTimeout,
			ProbeTimeout:   a.ProbeTimeout,
		})
		if err := subscriber.Start(); err != nil {
			logger.Warn().Str("subscriber", spec.Name).Err(err).Msg("subscriber start failed")
			continue
		}
		subscribers[spec.Name] = subscriber
	}
	return subscribers
}

// runCase runs one publisher scenario and evaluates the receiver set
func (a *Orchestrator) runCase(scenario config.Scenario) CaseResult {
	result := CaseResult{
		Scenario: scenario.Name,
		Identity: scenario.Identity.Name,
		Expected: sortedSet(scenario.ExpectedReceivers),
	}

	publisher, err := a.newPublisher(scenario)
	if err != nil {
		result.Err = err.Error()
		result.Pass = len(result.Expected) == 0
		var exhausted *messaging.ExhaustedError
		if errors.As(err, &exhausted) {
			result.Outcomes = exhausted.Attempts
		}
		return result
	}
	defer publisher.Close()

	message := scenario.Message
	if message == "" {
		message = scenario.Name
	}

	var acks []messaging.Ack
	if scenario.FallbackSubject != "" {
		acks, err = publisher.RequestAllWithFallback(scenario.PrimarySubject, scenario.FallbackSubject, []byte(message), scenario.Timeout)
	} else {
		acks, err = publisher.RequestAll(scenario.PrimarySubject, []byte(message), scenario.Timeout)
	}
	result.Outcomes = publisher.Outcomes()
	if err != nil {
		result.Err = err.Error()
	}

	receivers := map[string]bool{}
	for _, ack := range acks {
		receivers[ack.Identity] = true
	}
	result.Actual = sortedSet(keys(receivers))
	result.Pass = equalSets(result.Expected, result.Actual)
	return result
}

// newPublisher builds the scenario's publisher: endpoint-fallback when the
// identity has several candidate endpoints, a direct session otherwise.
func (a *Orchestrator) newPublisher(scenario config.Scenario) (*nats.Publisher, error) {
	identity := scenario.Identity
	if len(identity.Endpoints) > 1 {
		selector := &nats.Selector{ConnectTimeout: a.ConnectTimeout, ProbeTimeout: a.ProbeTimeout}
		return nats.NewPublisherWithFallback(selector, identity, scenario.PrimarySubject)
	}
	session, err := nats.Connect(identity, identity.Endpoints[0], a.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	return nats.NewPublisher(session), nil
}

// WriteTable prints the pass/fail comparison table for the report
func (a *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tIDENTITY\tEXPECTED\tACTUAL\tRESULT")
	for _, c := range a.Cases {
		status := "PASS"
		if !c.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.Scenario, c.Identity,
			strings.Join(c.Expected, ","), strings.Join(c.Actual, ","), status)
	}
	return tw.Flush()
}

func sortedSet(values []string) []string {
	set := map[string]bool{}
	for _, v := range values {
		set[v] = true
	}
	sorted := keys(set)
	sort.Strings(sorted)
	return sorted
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
