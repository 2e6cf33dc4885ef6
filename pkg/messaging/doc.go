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

// Package messaging defines the broker-agnostic vocabulary for the
// permission-fallback harness: subjects, identities, endpoints, and the
// Outcome records that every attempted operation produces.
//
// The broker itself (its authorization engine, its leaf replication, its wire
// protocol) is an external collaborator. The only decision logic that lives
// on the client side is the fallback routing pattern: attempt an operation
// against a preferred resource, classify the failure, and deterministically
// retry against a secondary resource. All types in this package exist to make
// that pattern observable and assertable.
package messaging
