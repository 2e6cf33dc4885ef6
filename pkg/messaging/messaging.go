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
	"strings"
)

// Subject represents a hierarchical dot-delimited topic used for
// publish/subscribe addressing. A segment of "*" matches exactly one segment,
// and a trailing ">" matches one or more remaining segments.
type Subject string

// Validate checks that the subject is well formed: not blank, no whitespace,
// no empty segments, and ">" only as the final segment.
func (a Subject) Validate() error {
	s := string(a)
	if strings.TrimSpace(s) == "" {
		return ErrSubjectMustNotBeBlank
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return ErrSubjectInvalid
	}
	segments := strings.Split(s, ".")
	for i, segment := range segments {
		if segment == "" {
			return ErrSubjectInvalid
		}
		if segment == ">" && i != len(segments)-1 {
			return ErrSubjectInvalid
		}
	}
	return nil
}

// TrimSpace returns a new Subject with whitespace trimmed
func (a Subject) TrimSpace() Subject {
	return Subject(strings.TrimSpace(string(a)))
}

func (a Subject) AsReplyTo() ReplyTo {
	return ReplyTo(a)
}

// Covers reports whether this subject, interpreted as a subscription pattern,
// matches the given concrete subject. A concrete subject trivially covers
// itself. Wildcards on the concrete side are not interpreted.
func (a Subject) Covers(subject Subject) bool {
	if a.Validate() != nil || subject.Validate() != nil {
		return false
	}
	pattern := strings.Split(string(a), ".")
	concrete := strings.Split(string(subject), ".")
	for i, segment := range pattern {
		if segment == ">" {
			return len(concrete) > i
		}
		if i >= len(concrete) {
			return false
		}
		if segment != "*" && segment != concrete[i] {
			return false
		}
	}
	return len(pattern) == len(concrete)
}

// Queue represents the name of a messaging queue group
type Queue string

// ReplyTo is the subject to send replies to
type ReplyTo string

// Validate checks that the reply subject is not blank
func (a ReplyTo) Validate() error {
	if strings.TrimSpace(string(a)) == "" {
		return ErrReplyToMustNotBeBlank
	}
	return nil
}

// TrimSpace returns a new ReplyTo with whitespace trimmed
func (a ReplyTo) TrimSpace() ReplyTo {
	return ReplyTo(strings.TrimSpace(string(a)))
}

func (a ReplyTo) AsSubject() Subject {
	return Subject(a)
}

// Message represents the message envelope
type Message struct {
	// Subject is the subject that the message is published to or received from. This is required and must never be blank
	Subject Subject
	// ReplyTo supports the request-response model. This is optional, i.e., a blank value means no reply is expected.
	ReplyTo ReplyTo
	// Data is the message data
	Data []byte
}

// Response is used for request-response messaging
type Response struct {
	*Message
	Error error
}

// Success returns true if there was no error reported
func (a *Response) Success() bool {
	return a.Error == nil
}
