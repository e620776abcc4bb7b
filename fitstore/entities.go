// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitstore

import (
	"database/sql"
	"time"
)

// Collection names used by tombstones and live-query subscriptions.
const (
	CollectionDays      = "days"
	CollectionExercises = "exercises"
	CollectionSets      = "sets"
	CollectionRests     = "rest_periods"
)

// Day is one calendar day of training for a user. LocalID is assigned by the
// client and never changes; ServerID is populated after the first successful
// sync round trip.
type Day struct {
	LocalID   string
	ServerID  sql.NullString
	UserID    string
	Date      string // ISO calendar date, e.g. "2025-06-01"
	IsRestDay bool
	Notes     string
	Timezone  string
	Synced    bool
}

// Exercise is a catalog exercise placed on a day. DayID references the
// parent Day by LocalID regardless of the day's sync state.
type Exercise struct {
	LocalID   string
	ServerID  sql.NullString
	DayID     string
	CatalogID string
	Position  int
	Comment   string
	Synced    bool
}

// Set is a single performed set. Volume is derived (reps * weight) and is
// recomputed on every write; it is never accepted from callers.
type Set struct {
	LocalID    string
	ServerID   sql.NullString
	ExerciseID string
	Position   int
	Reps       int
	Weight     float64
	IsWarmup   bool
	Volume     float64
	Synced     bool
}

// RestPeriod is a rest interval anchored to a position in an exercise's
// set/rest timeline.
type RestPeriod struct {
	LocalID         string
	ServerID        sql.NullString
	ExerciseID      string
	Position        int
	DurationSeconds int
	Synced          bool
}

// Tombstone records the deletion of a previously-synced row. Rows that never
// acquired a server identifier are deleted outright and leave no tombstone,
// so ServerID is always non-empty here.
type Tombstone struct {
	LocalID    string // local id of the deleted row
	ServerID   string // server id of the deleted row
	Collection string // one of the Collection* constants
	DeletedAt  time.Time
}
