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

// Package logging standardizes how loggers are created across the project.
// Each package declares an empty pkgobject struct and creates its logger via
// NewPackageLogger(pkgobject{}), which tags every event with the package path.
package logging

import (
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logger fields
const (
	PACKAGE  = "pkg"
	EVENT    = "event"
	ID       = "id"
	STATE    = "state"
	IDENTITY = "identity"
	ENDPOINT = "endpoint"
	SUBJECT  = "subject"
	VERDICT  = "verdict"
)

// NewPackageLogger returns a new logger with pkg={pkg}
// where {pkg} is o's package path
// o must be a struct - the pattern is to use an empty struct
func NewPackageLogger(o interface{}) zerolog.Logger {
	t := reflect.TypeOf(o)
	if t.Kind() != reflect.Struct {
		panic("NewPackageLogger can only be created for a struct")
	}
	return log.With().Str(PACKAGE, t.PkgPath()).Logger()
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
