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
	"sync"
	"time"

	"github.com/opsgate/permprobe/pkg/logging"
	"github.com/opsgate/permprobe/pkg/messaging"
	"gopkg.in/tomb.v2"
)

// SubscriberState is the subscriber role's lifecycle state
type SubscriberState int

const (
	// SubscriberIdle is the initial state, before Start
	SubscriberIdle SubscriberState = iota
	// SubscriberConnecting is establishing the session
	SubscriberConnecting
	// SubscriberSubscribing is registering the subject patterns
	SubscriberSubscribing
	// SubscriberListening is receiving messages
	SubscriberListening
	// SubscriberDraining is unsubscribing and flushing after a shutdown signal
	SubscriberDraining
	// SubscriberClosed is terminal; no further operations are permitted
	SubscriberClosed
)

func (a SubscriberState) String() string {
	switch a {
	case SubscriberIdle:
		return "idle"
	case SubscriberConnecting:
		return "connecting"
	case SubscriberSubscribing:
		return "subscribing"
	case SubscriberListening:
		return "listening"
	case SubscriberDraining:
		return "draining"
	case SubscriberClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SubscriberConfig configures a subscriber role instance
type SubscriberConfig struct {
	// Name identifies the role instance in acknowledgements and reports.
	// Defaults to the identity name.
	Name string
	// Identity the subscriber authenticates as
	Identity messaging.Identity
	// Patterns are the subject patterns to register, one subscription each
	Patterns []messaging.Subject
	// Queue optionally joins all subscriptions to a queue group
	Queue messaging.Queue
	// ConnectTimeout bounds the connection handshake
	ConnectTimeout time.Duration
	// ProbeTimeout bounds the endpoint-fallback capability trials
	ProbeTimeout time.Duration
	// ChanBufSize is the delivery channel buffer. Defaults to 256.
	ChanBufSize int
}

// Subscriber is the subscriber role: it establishes standing subscriptions on
// a resolved endpoint, receives messages until told to stop, and replies to
// request-style messages with a structured acknowledgement.
//
// Lifecycle: Idle -> Connecting -> Subscribing -> Listening -> Draining -> Closed.
//
// Pattern registration has partial-failure semantics: a registration failure
// is recorded as a failed Outcome without aborting the other patterns.
// Acknowledgements for one subscription are sent in the order the requests
// were received.
type Subscriber struct {
	config   SubscriberConfig
	selector *Selector

	t tomb.Tomb

	mutex      sync.RWMutex
	state      SubscriberState
	listening  bool
	session    *Session
	subs       []*Subscription
	outcomes   []messaging.Outcome
	msgCount   uint64
	deliveries chan Delivery
	ready      chan struct{}
}

// NewSubscriber creates a subscriber role instance in the Idle state
func NewSubscriber(config SubscriberConfig) *Subscriber {
	if config.ChanBufSize <= 0 {
		config.ChanBufSize = 256
	}
	if config.Name == "" {
		config.Name = config.Identity.Name
	}
	return &Subscriber{
		config: config,
		// a subscriber's endpoint trials test subscribe authorization,
		// not publish authorization
		selector:   &Selector{ConnectTimeout: config.ConnectTimeout, ProbeTimeout: config.ProbeTimeout, Probe: ProbeSubscription},
		state:      SubscriberIdle,
		deliveries: make(chan Delivery, config.ChanBufSize),
		ready:      make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (a *Subscriber) State() SubscriberState {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.state
}

func (a *Subscriber) setState(state SubscriberState) {
	a.mutex.Lock()
	a.state = state
	a.mutex.Unlock()
	logger.Info().Str(logging.EVENT, EVENT_SUB_STATE).
		Str(logging.IDENTITY, a.config.Identity.Name).
		Str(logging.STATE, state.String()).Msg("")
}

// Ready is closed once the subscriber enters Listening
func (a *Subscriber) Ready() <-chan struct{} {
	return a.ready
}

// MessageCount returns the monotonic per-session count of handled messages
func (a *Subscriber) MessageCount() uint64 {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.msgCount
}

// Outcomes returns a copy of the recorded outcomes: endpoint selection
// attempts (when the identity has several candidate endpoints) followed by
// the per-pattern registration outcomes, in configuration order.
func (a *Subscriber) Outcomes() []messaging.Outcome {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	outcomes := make([]messaging.Outcome, len(a.outcomes))
	copy(outcomes, a.outcomes)
	return outcomes
}

// Session returns the resolved session, nil before Start
func (a *Subscriber) Session() *Session {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.session
}

// Start connects, registers the patterns, and begins listening. A connect
// failure (or endpoint exhaustion when the identity has several endpoints)
// is returned as is and the subscriber transitions straight to Closed.
// Registration failures for individual patterns do not fail Start; they are
// recorded in Outcomes. Start fails only when every pattern failed.
func (a *Subscriber) Start() error {
	identity := a.config.Identity
	if err := identity.Validate(); err != nil {
		a.setState(SubscriberClosed)
		return err
	}

	a.setState(SubscriberConnecting)
	session, err := a.connect(identity)
	if err != nil {
		a.setState(SubscriberClosed)
		return err
	}
	a.mutex.Lock()
	a.session = session
	a.mutex.Unlock()

	a.setState(SubscriberSubscribing)
	registered := 0
	for _, pattern := range a.config.Patterns {
		start := time.Now()
		sub, err := session.SubscribeInto(pattern, a.config.Queue, a.deliveries)
		outcome := messaging.Outcome{
			Identity: identity.Name,
			Cluster:  session.Cluster(),
			Subject:  pattern,
			Success:  err == nil,
			Elapsed:  time.Since(start),
		}
		if err != nil {
			outcome.Failure = Classify(err)
			outcome.Err = err.Error()
			logger.Warn().Str(logging.EVENT, EVENT_SUB_STATE).
				Str(logging.IDENTITY, identity.Name).
				Str(PATTERN, string(pattern)).
				Err(err).Msg("pattern registration failed")
		} else {
			registered++
			a.mutex.Lock()
			a.subs = append(a.subs, sub)
			a.mutex.Unlock()
		}
		a.mutex.Lock()
		a.outcomes = append(a.outcomes, outcome)
		a.mutex.Unlock()
	}
	if registered == 0 {
		session.Close()
		a.setState(SubscriberClosed)
		return messaging.ErrAllPatternsFailed
	}

	// make sure the broker has processed the subscriptions before reporting ready
	session.Flush(a.config.ConnectTimeout)

	// the listening flag and the tomb goroutine are set atomically so that a
	// concurrent Stop either sees the listen loop registered or shuts the
	// subscriber down itself
	a.mutex.Lock()
	select {
	case <-a.t.Dying():
		a.mutex.Unlock()
		a.drain()
		return messaging.ErrSubscriberStopped
	default:
	}
	a.state = SubscriberListening
	a.listening = true
	a.t.Go(a.listen)
	a.mutex.Unlock()

	logger.Info().Str(logging.EVENT, EVENT_SUB_STATE).
		Str(logging.IDENTITY, a.config.Identity.Name).
		Str(logging.STATE, SubscriberListening.String()).Msg("")
	close(a.ready)
	return nil
}

// connect runs the fallback selector when the identity has several candidate
// endpoints, registering a trial subscription on the first configured pattern
// at each candidate. The selection attempts seed the outcome record. With a
// single endpoint it connects directly.
func (a *Subscriber) connect(identity messaging.Identity) (*Session, error) {
	if len(identity.Endpoints) > 1 && len(a.config.Patterns) > 0 {
		session, _, attempts, err := a.selector.SelectEndpoint(identity, identity.Endpoints, a.config.Patterns[0], identity.ProbePolicy())
		a.mutex.Lock()
		a.outcomes = append(a.outcomes, attempts...)
		a.mutex.Unlock()
		return session, err
	}
	connect := a.selector.connectFunc()
	return connect(identity, identity.Endpoints[0], a.config.ConnectTimeout)
}

// listen is the main receive loop. It is intentionally unbounded: it blocks
// until a message arrives or the tomb is killed by Stop or a process signal.
func (a *Subscriber) listen() error {
	for {
		select {
		case <-a.t.Dying():
			a.drain()
			return nil
		case delivery := <-a.deliveries:
			// a message that raced the shutdown signal is not handled
			select {
			case <-a.t.Dying():
				a.drain()
				return nil
			default:
			}
			a.handle(delivery)
		}
	}
}

// handle processes one inbound message: bump the counter, then acknowledge
// synchronously when a reply address is present, before the next message.
func (a *Subscriber) handle(delivery Delivery) {
	a.mutex.Lock()
	a.msgCount++
	sequence := a.msgCount
	a.mutex.Unlock()

	if delivery.ReplyTo == "" {
		return
	}
	ack := messaging.Ack{
		Status:    messaging.AckStatusOK,
		Identity:  a.config.Name,
		Subject:   delivery.Message.Subject,
		Pattern:   delivery.Pattern,
		Sequence:  sequence,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(ack)
	if err != nil {
		logger.Error().Err(err).Msg("ack marshal failed")
		return
	}
	if err := a.session.Publish(delivery.ReplyTo.AsSubject(), data); err != nil {
		logger.Warn().Str(logging.IDENTITY, a.config.Identity.Name).
			Str(logging.SUBJECT, string(delivery.Message.Subject)).
			Err(err).Msg("ack publish failed")
	}
}

// drain unsubscribes everything best-effort, flushes, empties the delivery
// channel, and closes the session. In-flight handling has already completed
// by the time drain runs; messages still queued are discarded, not handled.
func (a *Subscriber) drain() {
	a.setState(SubscriberDraining)
	a.mutex.RLock()
	subs := a.subs
	session := a.session
	count := a.msgCount
	a.mutex.RUnlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warn().Str(PATTERN, string(sub.Pattern())).Err(err).Msg("unsubscribe failed")
		}
	}
	if session != nil {
		session.Flush(a.config.ConnectTimeout)
	}

	// a shutdown burst can leave dispatch goroutines blocked sending into
	// the delivery channel; keep receiving until the channel goes idle so
	// every one of them gets to finish
	for draining := true; draining; {
		select {
		case <-a.deliveries:
		case <-time.After(50 * time.Millisecond):
			draining = false
		}
	}

	if session != nil {
		session.Close()
	}
	a.setState(SubscriberClosed)
	logger.Info().Str(logging.EVENT, EVENT_SUB_STATE).
		Str(logging.IDENTITY, a.config.Identity.Name).
		Uint64(MSG_COUNT, count).Msg("final message count")
}

// Stop signals the subscriber to drain and blocks until it is Closed.
// Safe to call at any point in the lifecycle, including concurrently with a
// Start that fails: the tomb is only waited on once the listen loop is
// registered with it, otherwise Wait would never return.
func (a *Subscriber) Stop() error {
	a.t.Kill(nil)
	a.mutex.RLock()
	listening := a.listening
	a.mutex.RUnlock()
	if !listening {
		if a.State() != SubscriberClosed {
			a.setState(SubscriberClosed)
		}
		return nil
	}
	return a.t.Wait()
}
