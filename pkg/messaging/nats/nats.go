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

// Package nats implements the fallback-routing client pattern on top of the
// NATS client: authenticated sessions, the capability prober, the fallback
// selector, and the publisher/subscriber roles.
package nats

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/opsgate/permprobe/pkg/messaging"
)

// Connect Options
var (
	// DefaultConnectTimeout is the default timeout used when creating a new NATS connection
	DefaultConnectTimeout = 5 * time.Second
	// DefaultProbeTimeout is the trial timeout used by the capability prober
	DefaultProbeTimeout = 100 * time.Millisecond
	// DefaultRequestTimeout bounds request/reply waits when the caller does not specify one
	DefaultRequestTimeout = 2 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Events
const (
	EVENT_CONN_CLOSED      = "conn_closed"
	EVENT_CONN_DISCONNECT  = "conn_disconnect"
	EVENT_CONN_RECONNECT   = "conn_reconnect"
	EVENT_CONN_ERR         = "conn_err"
	EVENT_PERM_VIOLATION   = "perm_violation"
	EVENT_PROBE            = "probe"
	EVENT_ENDPOINT_SELECT  = "endpoint_selected"
	EVENT_SUBJECT_FALLBACK = "subject_fallback"
	EVENT_SUB_STATE        = "subscriber_state"
)

// log event fields
const (
	SESSION_ID  = "session_id"
	DISCONNECTS = "disconnects"
	RECONNECTS  = "reconnects"
	ATTEMPT     = "attempt"
	PATTERN     = "pattern"
	MSG_COUNT   = "msg_count"
)

func toMessage(msg *nats.Msg) *messaging.Message {
	return &messaging.Message{
		Subject: messaging.Subject(msg.Subject),
		Data:    msg.Data,
		ReplyTo: messaging.ReplyTo(msg.Reply),
	}
}
