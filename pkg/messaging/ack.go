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

package messaging

import (
	"time"
)

// AckStatusOK is the status reported in acknowledgements for messages that
// were received and processed.
const AckStatusOK = "ok"

// Ack is the structured acknowledgement a subscriber publishes back to a
// request's reply subject. For one subscription, acks are emitted in the
// order the requests were received.
type Ack struct {
	// Status of the message handling, AckStatusOK on success
	Status string `json:"status"`
	// Identity of the subscriber that handled the message
	Identity string `json:"identity"`
	// Subject the message was received on
	Subject Subject `json:"subject"`
	// Pattern is the subscription pattern that matched the subject
	Pattern Subject `json:"pattern"`
	// Sequence is the subscriber's monotonic per-session message counter value
	Sequence uint64 `json:"sequence"`
	// Timestamp is when the message was handled
	Timestamp time.Time `json:"timestamp"`
}
