// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitstore

import (
	"time"
)

// Per-collection column metadata, row codecs and validation rules. The store
// rejects malformed input at the boundary instead of clamping; the only
// derived field it owns is Set.Volume, recomputed on every write.

func newDayCollection(s *Store) *Collection[Day] {
	columns := []string{"local_id", "server_id", "user_id", "date", "is_rest_day", "notes", "timezone", "synced"}
	return newCollection(s, CollectionDays, columns,
		func(d *Day) string { return d.LocalID },
		func(d *Day) []any {
			return []any{d.LocalID, d.ServerID, d.UserID, d.Date, d.IsRestDay, d.Notes, d.Timezone, d.Synced}
		},
		func(r rowScanner) (Day, error) {
			var d Day
			err := r.Scan(&d.LocalID, &d.ServerID, &d.UserID, &d.Date, &d.IsRestDay, &d.Notes, &d.Timezone, &d.Synced)
			return d, err
		},
		func(d *Day) error {
			if d.LocalID == "" {
				return &ValidationError{CollectionDays, "local_id", "must not be empty"}
			}
			if d.UserID == "" {
				return &ValidationError{CollectionDays, "user_id", "must not be empty"}
			}
			if _, err := time.Parse("2006-01-02", d.Date); err != nil {
				return &ValidationError{CollectionDays, "date", "must be an ISO calendar date"}
			}
			return nil
		},
	)
}

func newExerciseCollection(s *Store) *Collection[Exercise] {
	columns := []string{"local_id", "server_id", "day_id", "catalog_id", "position", "comment", "synced"}
	return newCollection(s, CollectionExercises, columns,
		func(e *Exercise) string { return e.LocalID },
		func(e *Exercise) []any {
			return []any{e.LocalID, e.ServerID, e.DayID, e.CatalogID, e.Position, e.Comment, e.Synced}
		},
		func(r rowScanner) (Exercise, error) {
			var e Exercise
			err := r.Scan(&e.LocalID, &e.ServerID, &e.DayID, &e.CatalogID, &e.Position, &e.Comment, &e.Synced)
			return e, err
		},
		func(e *Exercise) error {
			if e.LocalID == "" {
				return &ValidationError{CollectionExercises, "local_id", "must not be empty"}
			}
			if e.DayID == "" {
				return &ValidationError{CollectionExercises, "day_id", "must not be empty"}
			}
			if e.CatalogID == "" {
				return &ValidationError{CollectionExercises, "catalog_id", "must not be empty"}
			}
			if e.Position < 0 {
				return &ValidationError{CollectionExercises, "position", "must not be negative"}
			}
			return nil
		},
	)
}

func newSetCollection(s *Store) *Collection[Set] {
	columns := []string{"local_id", "server_id", "exercise_id", "position", "reps", "weight", "is_warmup", "volume", "synced"}
	return newCollection(s, CollectionSets, columns,
		func(st *Set) string { return st.LocalID },
		func(st *Set) []any {
			return []any{st.LocalID, st.ServerID, st.ExerciseID, st.Position, st.Reps, st.Weight, st.IsWarmup, st.Volume, st.Synced}
		},
		func(r rowScanner) (Set, error) {
			var st Set
			err := r.Scan(&st.LocalID, &st.ServerID, &st.ExerciseID, &st.Position, &st.Reps, &st.Weight, &st.IsWarmup, &st.Volume, &st.Synced)
			return st, err
		},
		func(st *Set) error {
			if st.LocalID == "" {
				return &ValidationError{CollectionSets, "local_id", "must not be empty"}
			}
			if st.ExerciseID == "" {
				return &ValidationError{CollectionSets, "exercise_id", "must not be empty"}
			}
			if st.Position < 0 {
				return &ValidationError{CollectionSets, "position", "must not be negative"}
			}
			if st.Reps < 1 {
				return &ValidationError{CollectionSets, "reps", "must be at least 1"}
			}
			if st.Weight < 0 {
				return &ValidationError{CollectionSets, "weight", "must not be negative"}
			}
			// Volume is never accepted from the caller.
			st.Volume = float64(st.Reps) * st.Weight
			return nil
		},
	)
}

func newRestCollection(s *Store) *Collection[RestPeriod] {
	columns := []string{"local_id", "server_id", "exercise_id", "position", "duration_seconds", "synced"}
	return newCollection(s, CollectionRests, columns,
		func(rp *RestPeriod) string { return rp.LocalID },
		func(rp *RestPeriod) []any {
			return []any{rp.LocalID, rp.ServerID, rp.ExerciseID, rp.Position, rp.DurationSeconds, rp.Synced}
		},
		func(r rowScanner) (RestPeriod, error) {
			var rp RestPeriod
			err := r.Scan(&rp.LocalID, &rp.ServerID, &rp.ExerciseID, &rp.Position, &rp.DurationSeconds, &rp.Synced)
			return rp, err
		},
		func(rp *RestPeriod) error {
			if rp.LocalID == "" {
				return &ValidationError{CollectionRests, "local_id", "must not be empty"}
			}
			if rp.ExerciseID == "" {
				return &ValidationError{CollectionRests, "exercise_id", "must not be empty"}
			}
			if rp.Position < 0 {
				return &ValidationError{CollectionRests, "position", "must not be negative"}
			}
			if rp.DurationSeconds < 0 {
				return &ValidationError{CollectionRests, "duration_seconds", "must not be negative"}
			}
			return nil
		},
	)
}

func newTombstoneCollection(s *Store) *Collection[Tombstone] {
	columns := []string{"local_id", "server_id", "collection", "deleted_at"}
	return newCollection(s, "tombstones", columns,
		func(t *Tombstone) string { return t.LocalID },
		func(t *Tombstone) []any {
			return []any{t.LocalID, t.ServerID, t.Collection, t.DeletedAt.UTC().Format(time.RFC3339Nano)}
		},
		func(r rowScanner) (Tombstone, error) {
			var t Tombstone
			var deletedAt string
			if err := r.Scan(&t.LocalID, &t.ServerID, &t.Collection, &deletedAt); err != nil {
				return t, err
			}
			ts, err := time.Parse(time.RFC3339Nano, deletedAt)
			if err != nil {
				return t, err
			}
			t.DeletedAt = ts
			return t, nil
		},
		func(t *Tombstone) error {
			if t.LocalID == "" {
				return &ValidationError{"tombstones", "local_id", "must not be empty"}
			}
			if t.ServerID == "" {
				return &ValidationError{"tombstones", "server_id", "must not be empty"}
			}
			switch t.Collection {
			case CollectionDays, CollectionExercises, CollectionSets, CollectionRests:
			default:
				return &ValidationError{"tombstones", "collection", "unknown collection"}
			}
			if t.DeletedAt.IsZero() {
				t.DeletedAt = time.Now()
			}
			return nil
		},
	)
}
