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

package harness

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var runsBucket = []byte("runs")

// Archive persists orchestrated run reports so that repeated harness runs can
// be compared after the fact.
type Archive struct {
	db *bolt.DB
}

// OpenArchive opens (creating if needed) the archive database at path
func OpenArchive(path string) (*Archive, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Close releases the database
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveReport stores the report keyed by its run id
func (a *Archive) SaveReport(report *Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).Put([]byte(report.RunID), data)
	})
}

// Report loads a stored report by run id
func (a *Archive) Report(runID string) (*Report, error) {
	var report *Report
	err := a.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(runsBucket).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("no report for run %q", runID)
		}
		report = &Report{}
		return json.Unmarshal(data, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// RunIDs lists the stored run ids
func (a *Archive) RunIDs() ([]string, error) {
	var ids []string
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}
