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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"github.com/opsgate/permprobe/pkg/logging"
	"github.com/opsgate/permprobe/pkg/messaging"
	"gopkg.in/tomb.v2"
)

// ConnErr contains a conn error and when it happened
type ConnErr struct {
	Error     error
	Timestamp time.Time
}

// Violation records an async permission violation reported by the broker
type Violation struct {
	// Subject the violation names, extracted from the broker's error text.
	// Blank when the text carried no recognizable subject.
	Subject messaging.Subject
	// Err is the broker's error text
	Err string
	// Timestamp is when the violation was observed
	Timestamp time.Time
}

type connEventKind int

const (
	eventDisconnect connEventKind = iota
	eventReconnect
	eventAsyncErr
	eventClosed
)

type connEvent struct {
	kind connEventKind
	err  error
}

// Session is the live connection for one Identity to one Endpoint. It owns
// zero or more subscriptions and is exclusively owned by the role instance
// that created it. A background monitor task, supervised by the session's
// tomb, logs connection lifecycle events; it never mutates session state and
// never outlives the session.
type Session struct {
	mutex sync.RWMutex

	nc *nats.Conn

	id       string
	created  time.Time
	identity messaging.Identity
	endpoint messaging.Endpoint

	monitor tomb.Tomb
	events  chan connEvent

	disconnects        int
	lastDisconnectTime time.Time
	lastReconnectTime  time.Time

	lastErr    *ConnErr
	violations []Violation
}

// SessionInfo is a diagnostic snapshot of a session
type SessionInfo struct {
	ID          string          `json:"id"`
	Identity    string          `json:"identity"`
	Cluster     string          `json:"cluster"`
	Created     time.Time       `json:"created"`
	Connected   bool            `json:"connected"`
	Disconnects int             `json:"disconnects"`
	Violations  int             `json:"violations"`
	Stats       nats.Statistics `json:"stats"`
}

// Connect opens an authenticated connection for the identity to the endpoint.
// On failure it returns a *messaging.ConnectError. The failure is always
// fatal for this endpoint attempt - falling back to another endpoint is the
// caller's responsibility, never this function's.
func Connect(identity messaging.Identity, endpoint messaging.Endpoint, timeout time.Duration, options ...nats.Option) (*Session, error) {
	if err := identity.Validate(); err != nil {
		return nil, &messaging.ConnectError{Cluster: endpoint.Cluster, Reason: err}
	}
	if err := endpoint.Validate(); err != nil {
		return nil, &messaging.ConnectError{Cluster: endpoint.Cluster, Reason: err}
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	s := &Session{
		id:       nuid.Next(),
		created:  time.Now(),
		identity: identity,
		endpoint: endpoint,
		events:   make(chan connEvent, 64),
	}

	opts := []nats.Option{
		nats.Name(fmt.Sprintf("%s@%s", identity.Name, endpoint.Cluster)),
		nats.Timeout(timeout),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.notify(connEvent{kind: eventDisconnect, err: err})
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			s.notify(connEvent{kind: eventReconnect})
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			s.notify(connEvent{kind: eventClosed})
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			s.recordAsyncErr(err)
			s.notify(connEvent{kind: eventAsyncErr, err: err})
		}),
	}
	creds := identity.Credentials
	if creds.TLS() {
		opts = append(opts, nats.ClientCert(creds.CertFile, creds.KeyFile))
		if creds.CAFile != "" {
			opts = append(opts, nats.RootCAs(creds.CAFile))
		}
	} else if creds.Username != "" {
		opts = append(opts, nats.UserInfo(creds.Username, creds.Password))
	}
	opts = append(opts, options...)

	nc, err := nats.Connect(endpoint.URL, opts...)
	if err != nil {
		return nil, &messaging.ConnectError{Cluster: endpoint.Cluster, Reason: err}
	}
	s.nc = nc
	s.monitor.Go(s.monitorLoop)
	sessionCreatedCounter.WithLabelValues(endpoint.Cluster.String()).Inc()
	return s, nil
}

// notify hands an event to the monitor. Events are observability only, so a
// full buffer drops the event rather than blocking a client callback.
func (a *Session) notify(event connEvent) {
	select {
	case a.events <- event:
	default:
	}
}

// recordAsyncErr runs on the nats client's callback goroutine so that
// violations are visible to the prober as soon as the broker reports them.
func (a *Session) recordAsyncErr(err error) {
	if err == nil {
		return
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.lastErr = &ConnErr{Error: err, Timestamp: time.Now()}
	if isPermissionViolation(err) {
		a.violations = append(a.violations, Violation{
			Subject:   violationSubject(err.Error()),
			Err:       err.Error(),
			Timestamp: time.Now(),
		})
		violationCounter.WithLabelValues(a.endpoint.Cluster.String()).Inc()
	}
}

// monitorLoop logs connection lifecycle events. It is supervised by the
// session's tomb and dies when the session closes.
func (a *Session) monitorLoop() error {
	for {
		select {
		case <-a.monitor.Dying():
			return nil
		case event := <-a.events:
			a.logEvent(event)
		}
	}
}

func (a *Session) logEvent(event connEvent) {
	switch event.kind {
	case eventDisconnect:
		a.mutex.Lock()
		a.disconnects++
		a.lastDisconnectTime = time.Now()
		disconnects := a.disconnects
		a.mutex.Unlock()
		disconnectedCounter.WithLabelValues(a.endpoint.Cluster.String()).Inc()
		logger.Info().Str(logging.EVENT, EVENT_CONN_DISCONNECT).Str(SESSION_ID, a.id).
			Str(logging.IDENTITY, a.identity.Name).Int(DISCONNECTS, disconnects).Msg("")
	case eventReconnect:
		a.mutex.Lock()
		a.lastReconnectTime = time.Now()
		a.mutex.Unlock()
		reconnectedCounter.WithLabelValues(a.endpoint.Cluster.String()).Inc()
		logger.Info().Str(logging.EVENT, EVENT_CONN_RECONNECT).Str(SESSION_ID, a.id).
			Str(logging.IDENTITY, a.identity.Name).Msg("")
	case eventAsyncErr:
		name := EVENT_CONN_ERR
		if isPermissionViolation(event.err) {
			name = EVENT_PERM_VIOLATION
		}
		logger.Warn().Str(logging.EVENT, name).Str(SESSION_ID, a.id).
			Str(logging.IDENTITY, a.identity.Name).Err(event.err).Msg("")
	case eventClosed:
		logger.Info().Str(logging.EVENT, EVENT_CONN_CLOSED).Str(SESSION_ID, a.id).
			Str(logging.IDENTITY, a.identity.Name).Msg("")
	}
}

// ID is the unique id assigned to the session for tracking purposes
func (a *Session) ID() string {
	return a.id
}

// Identity is the identity that opened the session
func (a *Session) Identity() messaging.Identity {
	return a.identity
}

// Endpoint is the endpoint the session is connected to
func (a *Session) Endpoint() messaging.Endpoint {
	return a.endpoint
}

// Cluster is the endpoint's label
func (a *Session) Cluster() messaging.ClusterName {
	return a.endpoint.Cluster
}

// Connected tests if the session is currently connected
func (a *Session) Connected() bool {
	return a.nc.IsConnected()
}

// Closed tests if the session has been closed
func (a *Session) Closed() bool {
	return a.nc.IsClosed()
}

// LastError reports the last async error observed on the session
func (a *Session) LastError() *ConnErr {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.lastErr
}

// ViolationsSince returns every permission violation observed at or after t,
// in the order they were observed.
func (a *Session) ViolationsSince(t time.Time) []Violation {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	var matched []Violation
	for _, v := range a.violations {
		if !v.Timestamp.Before(t) {
			matched = append(matched, v)
		}
	}
	return matched
}

// Publish enqueues the message for delivery and returns once the client-side
// send completes. This does not guarantee broker-side delivery: the broker
// may silently drop an unauthorized one-way publish and the client has no
// signal for it.
func (a *Session) Publish(subject messaging.Subject, data []byte) error {
	if a.Closed() {
		return messaging.ErrSessionClosed
	}
	err := a.nc.Publish(string(subject), data)
	if err == nil {
		msgsPublishedCounter.WithLabelValues(a.endpoint.Cluster.String()).Inc()
	}
	return err
}

// PublishRequest publishes the message with an explicit reply subject
func (a *Session) PublishRequest(subject messaging.Subject, replyTo messaging.ReplyTo, data []byte) error {
	if a.Closed() {
		return messaging.ErrSessionClosed
	}
	err := a.nc.PublishRequest(string(subject), string(replyTo), data)
	if err == nil {
		msgsPublishedCounter.WithLabelValues(a.endpoint.Cluster.String()).Inc()
	}
	return err
}

// Request sends the request and waits for a response bounded by the timeout
func (a *Session) Request(subject messaging.Subject, data []byte, timeout time.Duration) (*messaging.Message, error) {
	if a.Closed() {
		return nil, messaging.ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	msg, err := a.nc.Request(string(subject), data, timeout)
	if err != nil {
		return nil, err
	}
	msgsPublishedCounter.WithLabelValues(a.endpoint.Cluster.String()).Inc()
	return toMessage(msg), nil
}

// RequestWithContext sends the request and waits for a response bounded by the context
func (a *Session) RequestWithContext(ctx context.Context, subject messaging.Subject, data []byte) (*messaging.Message, error) {
	if a.Closed() {
		return nil, messaging.ErrSessionClosed
	}
	msg, err := a.nc.RequestWithContext(ctx, string(subject), data)
	if err != nil {
		return nil, err
	}
	msgsPublishedCounter.WithLabelValues(a.endpoint.Cluster.String()).Inc()
	return toMessage(msg), nil
}

// Subscribe registers a subscription for the pattern. Received messages are
// delivered on the returned Subscription's channel in arrival order.
func (a *Session) Subscribe(pattern messaging.Subject, chanBufSize int) (*Subscription, error) {
	return a.subscribe(pattern, "", chanBufSize)
}

// QueueSubscribe registers a queue-group subscription for the pattern
func (a *Session) QueueSubscribe(pattern messaging.Subject, queue messaging.Queue, chanBufSize int) (*Subscription, error) {
	return a.subscribe(pattern, queue, chanBufSize)
}

func (a *Session) subscribe(pattern messaging.Subject, queue messaging.Queue, chanBufSize int) (*Subscription, error) {
	if a.Closed() {
		return nil, messaging.ErrSessionClosed
	}
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	if chanBufSize <= 0 {
		chanBufSize = 64
	}
	c := make(chan *messaging.Message, chanBufSize)
	counter := msgsReceivedCounter.WithLabelValues(a.endpoint.Cluster.String())
	handler := func(msg *nats.Msg) {
		counter.Inc()
		c <- toMessage(msg)
	}
	var sub *nats.Subscription
	var err error
	if queue != "" {
		sub, err = a.nc.QueueSubscribe(string(pattern), string(queue), handler)
	} else {
		sub, err = a.nc.Subscribe(string(pattern), handler)
	}
	if err != nil {
		return nil, err
	}
	return &Subscription{id: nuid.Next(), pattern: pattern, queue: queue, sub: sub, c: c}, nil
}

// Delivery pairs a received message with the subscription pattern that
// matched it. Used when several subscriptions feed one consumer channel.
type Delivery struct {
	*messaging.Message
	Pattern messaging.Subject
}

// SubscribeInto registers a subscription that delivers into the caller's
// channel. Sends block, which preserves per-subscription arrival order for a
// sequential consumer.
func (a *Session) SubscribeInto(pattern messaging.Subject, queue messaging.Queue, c chan<- Delivery) (*Subscription, error) {
	if a.Closed() {
		return nil, messaging.ErrSessionClosed
	}
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	counter := msgsReceivedCounter.WithLabelValues(a.endpoint.Cluster.String())
	handler := func(msg *nats.Msg) {
		counter.Inc()
		c <- Delivery{Message: toMessage(msg), Pattern: pattern}
	}
	var sub *nats.Subscription
	var err error
	if queue != "" {
		sub, err = a.nc.QueueSubscribe(string(pattern), string(queue), handler)
	} else {
		sub, err = a.nc.Subscribe(string(pattern), handler)
	}
	if err != nil {
		return nil, err
	}
	return &Subscription{id: nuid.Next(), pattern: pattern, queue: queue, sub: sub}, nil
}

// NewInbox returns a unique reply subject for this session's connection
func (a *Session) NewInbox() messaging.Subject {
	return messaging.Subject(a.nc.NewInbox())
}

// Flush flushes the connection, bounded by the timeout
func (a *Session) Flush(timeout time.Duration) error {
	if a.Closed() {
		return messaging.ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return a.nc.FlushTimeout(timeout)
}

// Info returns a diagnostic snapshot of the session
func (a *Session) Info() *SessionInfo {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return &SessionInfo{
		ID:          a.id,
		Identity:    a.identity.Name,
		Cluster:     a.endpoint.Cluster.String(),
		Created:     a.created,
		Connected:   a.nc.IsConnected(),
		Disconnects: a.disconnects,
		Violations:  len(a.violations),
		Stats:       a.nc.Stats(),
	}
}

func (a *Session) String() string {
	bytes, err := json.Marshal(a.Info())
	if err != nil {
		// should never happen
		logger.Warn().Err(err).Msg("json.Marshal() failed")
		return fmt.Sprintf("%v", *a.Info())
	}
	return string(bytes)
}

// Close kills the monitor task and releases the transport. Safe to call more
// than once.
func (a *Session) Close() {
	a.monitor.Kill(nil)
	a.monitor.Wait()
	if !a.nc.IsClosed() {
		a.nc.Close()
		sessionClosedCounter.WithLabelValues(a.endpoint.Cluster.String()).Inc()
	}
}
