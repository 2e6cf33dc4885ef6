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
	"github.com/nats-io/nats.go"
	"github.com/opsgate/permprobe/pkg/messaging"
)

// Subscription is one registered subject pattern on a session
type Subscription struct {
	id      string
	pattern messaging.Subject
	queue   messaging.Queue
	sub     *nats.Subscription
	c       chan *messaging.Message
}

// ID is the unique id assigned to the subscription for tracking purposes
func (a *Subscription) ID() string {
	return a.id
}

// Pattern is the subject pattern the subscription was registered with. This
// can differ from a received message's subject when the pattern has wildcards.
func (a *Subscription) Pattern() messaging.Subject {
	return a.pattern
}

// Queue is the queue group, blank for plain subscriptions
func (a *Subscription) Queue() messaging.Queue {
	return a.queue
}

// Channel is used to receive the messages subscribed to
func (a *Subscription) Channel() <-chan *messaging.Message {
	return a.c
}

// IsValid returns false once the subscription has been unsubscribed
func (a *Subscription) IsValid() bool {
	return a.sub.IsValid()
}

// Delivered returns the number of delivered messages for this subscription
func (a *Subscription) Delivered() (int64, error) {
	return a.sub.Delivered()
}

// Unsubscribe will remove interest in the pattern
func (a *Subscription) Unsubscribe() error {
	return a.sub.Unsubscribe()
}
