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

// permprobe exercises NATS per-user permission configurations.
//
//	permprobe sub <subscriber>             run one subscriber role until interrupted
//	permprobe pub <identity> [message]     publish one request, with subject fallback
//	permprobe run                          run every configured scenario and report
//	permprobe report <run-id>              print an archived run report
//
// All commands read role declarations from the YAML config file.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/opsgate/permprobe/pkg/config"
	"github.com/opsgate/permprobe/pkg/harness"
	"github.com/opsgate/permprobe/pkg/messaging"
	"github.com/opsgate/permprobe/pkg/messaging/nats"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	configPath  = flag.StringP("config", "c", "permprobe.yaml", "path to the YAML config file")
	archivePath = flag.String("archive", "", "bbolt database used to archive run reports")
	subject     = flag.StringP("subject", "s", "", "primary subject (pub only, overrides config)")
	fallback    = flag.StringP("fallback", "f", "", "fallback subject (pub only, overrides config)")
	timeout     = flag.DurationP("timeout", "t", nats.DefaultRequestTimeout, "request / collection timeout")
	interactive = flag.BoolP("interactive", "i", false, "read messages from stdin, one request per line (pub only)")
	skipCheck   = flag.Bool("skip-broker-check", false, "skip the broker monitoring precondition (run only)")
	verbose     = flag.BoolP("verbose", "v", false, "debug logging")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	provider, err := loadConfig(*configPath)
	if err != nil {
		log.Error().Err(err).Str("config", *configPath).Msg("config load failed")
		os.Exit(1)
	}

	switch args[0] {
	case "sub":
		err = runSubscriber(provider, args[1:])
	case "pub":
		err = runPublisher(provider, args[1:])
	case "run":
		err = runScenarios(provider)
	case "report":
		err = showReport(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Msg(args[0] + " failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: permprobe [flags] <command>

commands:
  sub <subscriber>          run one configured subscriber role until SIGINT/SIGTERM
  pub <identity> [message]  publish one request as the identity, honoring subject fallback
  run                       run every configured scenario and print the pass/fail table
  report <run-id>           print an archived run report as JSON

flags:
`)
	flag.PrintDefaults()
}

func loadConfig(path string) (config.Provider, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return config.NewProvider(cfg), nil
}

// runSubscriber runs one configured subscriber role until interrupted, then
// drains it so the final message count is logged before exit.
func runSubscriber(provider config.Provider, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: permprobe sub <subscriber>")
	}
	var spec *config.SubscriberSpec
	for _, s := range provider.Subscribers() {
		if s.Name == args[0] {
			spec = &s
			break
		}
	}
	if spec == nil {
		return fmt.Errorf("unknown subscriber %q", args[0])
	}

	subscriber := nats.NewSubscriber(nats.SubscriberConfig{
		Name:     spec.Name,
		Identity: spec.Identity,
		Patterns: spec.Patterns,
		Queue:    spec.Queue,
	})
	if err := subscriber.Start(); err != nil {
		return err
	}
	log.Info().Str("subscriber", spec.Name).Msg("listening, ctrl-c to drain and exit")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	if err := subscriber.Stop(); err != nil {
		return err
	}
	log.Info().Uint64("msgs", subscriber.MessageCount()).Msg("drained")
	return nil
}

// runPublisher publishes requests as the named identity, trying the fallback
// subject when the primary is denied or unserved.
func runPublisher(provider config.Provider, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: permprobe pub <identity> [message]")
	}
	identity, err := provider.Identity(args[0])
	if err != nil {
		return err
	}

	primary, fallbackSubject := publisherSubjects(provider, identity.Name)
	if primary == "" {
		return fmt.Errorf("no subject: pass --subject or declare a scenario for identity %q", identity.Name)
	}

	publisher, err := newPublisher(identity, primary)
	if err != nil {
		return err
	}
	defer publisher.Close()

	send := func(message string) error {
		var acks []messaging.Ack
		var err error
		if fallbackSubject != "" {
			acks, err = publisher.RequestAllWithFallback(primary, fallbackSubject, []byte(message), *timeout)
		} else {
			acks, err = publisher.RequestAll(primary, []byte(message), *timeout)
		}
		if err != nil {
			return err
		}
		for _, ack := range acks {
			fmt.Printf("ack from %s on %s (pattern %s)\n", ack.Identity, ack.Subject, ack.Pattern)
		}
		return nil
	}

	if *interactive {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := send(line); err != nil {
				log.Warn().Err(err).Msg("request failed")
			}
		}
		return scanner.Err()
	}

	message := "permprobe"
	if len(args) > 1 {
		message = strings.Join(args[1:], " ")
	}
	return send(message)
}

// publisherSubjects resolves the pub command's subjects: flags win, otherwise
// the first configured scenario for the identity supplies them.
func publisherSubjects(provider config.Provider, identityName string) (primary, fallbackSubject messaging.Subject) {
	primary = messaging.Subject(*subject)
	fallbackSubject = messaging.Subject(*fallback)
	if primary != "" {
		return primary, fallbackSubject
	}
	for _, scenario := range provider.Scenarios() {
		if scenario.Identity.Name == identityName {
			return scenario.PrimarySubject, scenario.FallbackSubject
		}
	}
	return primary, fallbackSubject
}

func newPublisher(identity messaging.Identity, primary messaging.Subject) (*nats.Publisher, error) {
	if len(identity.Endpoints) > 1 {
		selector := &nats.Selector{}
		return nats.NewPublisherWithFallback(selector, identity, primary)
	}
	session, err := nats.Connect(identity, identity.Endpoints[0], nats.DefaultConnectTimeout)
	if err != nil {
		return nil, err
	}
	return nats.NewPublisher(session), nil
}

// runScenarios runs the orchestrated test suite. Exit status 1 signals any
// failed case.
func runScenarios(provider config.Provider) error {
	orchestrator := harness.NewOrchestrator(provider)
	orchestrator.SkipBrokerCheck = *skipCheck
	if *archivePath != "" {
		archive, err := harness.OpenArchive(*archivePath)
		if err != nil {
			return err
		}
		defer archive.Close()
		orchestrator.Archive = archive
	}

	report, err := orchestrator.Run()
	if err != nil {
		return err
	}
	if err := report.WriteTable(os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\nrun %s: %d cases\n", report.RunID, len(report.Cases))
	if !report.Passed() {
		return fmt.Errorf("one or more cases failed")
	}
	return nil
}

func showReport(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: permprobe report <run-id>")
	}
	if *archivePath == "" {
		return fmt.Errorf("pass --archive to locate the report database")
	}
	archive, err := harness.OpenArchive(*archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	report, err := archive.Report(args[0])
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return report.WriteTable(os.Stdout)
}
