// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInitSchema(t *testing.T) {
	store := newTestStore(t)

	expectedTables := []string{"days", "exercises", "sets", "rest_periods", "tombstones", "sync_state"}
	for _, table := range expectedTables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "table %s should exist", table)
	}
}

func TestDayCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	day := Day{
		LocalID: uuid.NewString(),
		UserID:  "user1",
		Date:    "2025-06-01",
		Notes:   "leg day",
	}
	require.NoError(t, store.Days.Insert(ctx, day))

	got, err := store.Days.Get(ctx, day.LocalID)
	require.NoError(t, err)
	require.Equal(t, "leg day", got.Notes)
	require.False(t, got.Synced)
	require.False(t, got.ServerID.Valid)

	err = store.Days.Update(ctx, day.LocalID, func(d *Day) {
		d.IsRestDay = true
		d.Synced = false
	})
	require.NoError(t, err)

	got, err = store.Days.Get(ctx, day.LocalID)
	require.NoError(t, err)
	require.True(t, got.IsRestDay)

	require.NoError(t, store.Days.Remove(ctx, day.LocalID))
	_, err = store.Days.Get(ctx, day.LocalID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalIDIsImmutable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	day := Day{LocalID: uuid.NewString(), UserID: "user1", Date: "2025-06-01"}
	require.NoError(t, store.Days.Insert(ctx, day))

	err := store.Days.Update(ctx, day.LocalID, func(d *Day) {
		d.LocalID = "something-else"
	})
	require.Error(t, err)

	// The row is untouched and still reachable under its original id.
	got, err := store.Days.Get(ctx, day.LocalID)
	require.NoError(t, err)
	require.Equal(t, day.LocalID, got.LocalID)
}

func TestSelectorEqualityAndIn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dayID := uuid.NewString()
	require.NoError(t, store.Days.Insert(ctx, Day{LocalID: dayID, UserID: "user1", Date: "2025-06-01"}))

	var exerciseIDs []string
	for i := 0; i < 3; i++ {
		e := Exercise{LocalID: uuid.NewString(), DayID: dayID, CatalogID: "squat", Position: i}
		exerciseIDs = append(exerciseIDs, e.LocalID)
		require.NoError(t, store.Exercises.Insert(ctx, e))
	}

	byDay, err := store.Exercises.Find(ctx, Selector{"day_id": dayID})
	require.NoError(t, err)
	require.Len(t, byDay, 3)

	subset, err := store.Exercises.Find(ctx, Selector{"local_id": In(exerciseIDs[0], exerciseIDs[2])})
	require.NoError(t, err)
	require.Len(t, subset, 2)

	none, err := store.Exercises.Find(ctx, Selector{"local_id": []string{}})
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = store.Exercises.Find(ctx, Selector{"bogus_column": 1})
	require.Error(t, err)
}

func TestFindOne(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Days.FindOne(ctx, Selector{"user_id": "user1", "date": "2025-06-01"})
	require.ErrorIs(t, err, ErrNotFound)

	day := Day{LocalID: uuid.NewString(), UserID: "user1", Date: "2025-06-01"}
	require.NoError(t, store.Days.Insert(ctx, day))

	got, err := store.Days.FindOne(ctx, Selector{"user_id": "user1", "date": "2025-06-01"})
	require.NoError(t, err)
	require.Equal(t, day.LocalID, got.LocalID)
}

func TestSetVolumeIsDerived(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	set := Set{
		LocalID:    uuid.NewString(),
		ExerciseID: uuid.NewString(),
		Reps:       10,
		Weight:     20,
		Volume:     999, // ignored: volume is never accepted from callers
	}
	require.NoError(t, store.Sets.Insert(ctx, set))

	got, err := store.Sets.Get(ctx, set.LocalID)
	require.NoError(t, err)
	require.Equal(t, 200.0, got.Volume)

	// Updating weight alone recomputes volume against the stored reps.
	err = store.Sets.Update(ctx, set.LocalID, func(s *Set) { s.Weight = 25 })
	require.NoError(t, err)

	got, err = store.Sets.Get(ctx, set.LocalID)
	require.NoError(t, err)
	require.Equal(t, 10, got.Reps)
	require.Equal(t, 250.0, got.Volume)
}

func TestValidationRejectsMalformedInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		run  func() error
	}{
		{"zero reps", func() error {
			return store.Sets.Insert(ctx, Set{LocalID: uuid.NewString(), ExerciseID: "e1", Reps: 0, Weight: 10})
		}},
		{"negative weight", func() error {
			return store.Sets.Insert(ctx, Set{LocalID: uuid.NewString(), ExerciseID: "e1", Reps: 5, Weight: -1})
		}},
		{"negative rest duration", func() error {
			return store.Rests.Insert(ctx, RestPeriod{LocalID: uuid.NewString(), ExerciseID: "e1", DurationSeconds: -30})
		}},
		{"bad date", func() error {
			return store.Days.Insert(ctx, Day{LocalID: uuid.NewString(), UserID: "u", Date: "June 1st"})
		}},
		{"negative position", func() error {
			return store.Exercises.Insert(ctx, Exercise{LocalID: uuid.NewString(), DayID: "d", CatalogID: "c", Position: -1})
		}},
		{"tombstone without server id", func() error {
			return store.Tombstones.Insert(ctx, Tombstone{LocalID: uuid.NewString(), Collection: CollectionSets})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestBulkUpsertAndBulkRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sets := []Set{
		{LocalID: "s1", ExerciseID: "e1", Position: 0, Reps: 5, Weight: 100},
		{LocalID: "s2", ExerciseID: "e1", Position: 1, Reps: 5, Weight: 100},
		{LocalID: "s3", ExerciseID: "e1", Position: 2, Reps: 5, Weight: 100},
	}
	require.NoError(t, store.Sets.BulkUpsert(ctx, sets))

	all, err := store.Sets.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// Upsert replaces by primary key instead of duplicating.
	sets[0].Weight = 110
	require.NoError(t, store.Sets.BulkUpsert(ctx, sets[:1]))
	got, err := store.Sets.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 110.0, got.Weight)
	require.Equal(t, 550.0, got.Volume)

	require.NoError(t, store.Sets.BulkRemove(ctx, []string{"s1", "s3"}))
	all, err = store.Sets.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "s2", all[0].LocalID)
}

func TestLiveQueryOverNotifies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var emissions [][]Set
	cancel, err := store.Sets.Subscribe(Selector{"exercise_id": "e1"}, func(rows []Set) {
		emissions = append(emissions, rows)
	})
	require.NoError(t, err)
	defer cancel()

	// Initial snapshot.
	require.Len(t, emissions, 1)
	require.Empty(t, emissions[0])

	// A matching write re-emits.
	require.NoError(t, store.Sets.Insert(ctx, Set{LocalID: "s1", ExerciseID: "e1", Reps: 5, Weight: 50}))
	require.Len(t, emissions, 2)
	require.Len(t, emissions[1], 1)

	// A non-matching write to the same collection also re-emits
	// (over-notification is part of the contract).
	require.NoError(t, store.Sets.Insert(ctx, Set{LocalID: "s2", ExerciseID: "e2", Reps: 5, Weight: 50}))
	require.Len(t, emissions, 3)
	require.Len(t, emissions[2], 1)

	// A write to another collection does not.
	require.NoError(t, store.Days.Insert(ctx, Day{LocalID: "d1", UserID: "u", Date: "2025-06-01"}))
	require.Len(t, emissions, 3)

	// After cancel, no further emissions.
	cancel()
	require.NoError(t, store.Sets.Insert(ctx, Set{LocalID: "s3", ExerciseID: "e1", Reps: 5, Weight: 50}))
	require.Len(t, emissions, 3)
}

func TestWritesVisibleToSubscribersImmediately(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var sawInserted bool
	cancel, err := store.Sets.Subscribe(nil, func(rows []Set) {
		for _, r := range rows {
			if r.LocalID == "s1" {
				sawInserted = true
			}
		}
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, store.Sets.Insert(ctx, Set{LocalID: "s1", ExerciseID: "e1", Reps: 1, Weight: 1}))
	require.True(t, sawInserted, "subscriber must observe the write that triggered it")
}

func TestTombstoneRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := Tombstone{
		LocalID:    "s1",
		ServerID:   "srv-9",
		Collection: CollectionSets,
		DeletedAt:  time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.Tombstones.Insert(ctx, ts))

	got, err := store.Tombstones.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "srv-9", got.ServerID)
	require.Equal(t, CollectionSets, got.Collection)
	require.True(t, got.DeletedAt.Equal(ts.DeletedAt))
}

func TestServerIDTransition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	day := Day{LocalID: uuid.NewString(), UserID: "u", Date: "2025-06-01"}
	require.NoError(t, store.Days.Insert(ctx, day))

	err := store.Days.Update(ctx, day.LocalID, func(d *Day) {
		d.ServerID = sql.NullString{String: "srv-1", Valid: true}
		d.Synced = true
	})
	require.NoError(t, err)

	got, err := store.Days.Get(ctx, day.LocalID)
	require.NoError(t, err)
	require.Equal(t, day.LocalID, got.LocalID, "local id never changes")
	require.True(t, got.ServerID.Valid)
	require.Equal(t, "srv-1", got.ServerID.String)
	require.True(t, got.Synced)
}
