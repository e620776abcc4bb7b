// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"fmt"
	"sort"

	"github.com/VikramSGIT/FitLog-sub000/fitstore"
)

// PendingState is everything one sync cycle needs from the local store:
// every unsynced row, every tombstone, and the local→server id maps used to
// resolve parent references for rows whose parents are already synced.
type PendingState struct {
	Days       []fitstore.Day
	Exercises  []fitstore.Exercise
	Sets       []fitstore.Set
	Rests      []fitstore.RestPeriod
	Tombstones []fitstore.Tombstone

	DayServerIDs      map[string]string // Day.LocalID -> server id
	ExerciseServerIDs map[string]string // Exercise.LocalID -> server id
}

// Gather reads the pending state for one cycle from the store.
func Gather(ctx context.Context, store *fitstore.Store) (*PendingState, error) {
	p := &PendingState{
		DayServerIDs:      make(map[string]string),
		ExerciseServerIDs: make(map[string]string),
	}
	var err error
	if p.Days, err = store.Days.Find(ctx, fitstore.Selector{"synced": false}); err != nil {
		return nil, fmt.Errorf("failed to gather days: %w", err)
	}
	if p.Exercises, err = store.Exercises.Find(ctx, fitstore.Selector{"synced": false}); err != nil {
		return nil, fmt.Errorf("failed to gather exercises: %w", err)
	}
	if p.Sets, err = store.Sets.Find(ctx, fitstore.Selector{"synced": false}); err != nil {
		return nil, fmt.Errorf("failed to gather sets: %w", err)
	}
	if p.Rests, err = store.Rests.Find(ctx, fitstore.Selector{"synced": false}); err != nil {
		return nil, fmt.Errorf("failed to gather rest periods: %w", err)
	}
	if p.Tombstones, err = store.Tombstones.Find(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to gather tombstones: %w", err)
	}

	allDays, err := store.Days.Find(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to index days: %w", err)
	}
	for _, d := range allDays {
		if d.ServerID.Valid {
			p.DayServerIDs[d.LocalID] = d.ServerID.String
		}
	}
	allExercises, err := store.Exercises.Find(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to index exercises: %w", err)
	}
	for _, e := range allExercises {
		if e.ServerID.Valid {
			p.ExerciseServerIDs[e.LocalID] = e.ServerID.String
		}
	}
	return p, nil
}

// Batch is one linearized sync payload plus the manifest the reconciler
// needs to mark exactly the included rows synced and retire exactly the
// included tombstones.
type Batch struct {
	Ops []Operation

	CreatedDays      []string // local ids with a create op in this batch
	CreatedExercises []string
	CreatedSets      []string
	CreatedRests     []string

	UpdatedDays      []string // local ids with an update op in this batch
	UpdatedExercises []string
	UpdatedSets      []string
	UpdatedRests     []string

	TombstoneIDs []string // tombstone local ids with a delete op in this batch
}

// Empty reports whether the batch carries no operations.
func (b *Batch) Empty() bool { return len(b.Ops) == 0 }

// BuildBatch linearizes pending state into the strict server-side apply
// order: deletions first (children before parents), then creations in
// dependency order (days, exercises, sets/rests), then updates. A new child
// referencing a parent created in the same batch uses a placeholder
// reference embedding the parent's local id.
func BuildBatch(p *PendingState) (*Batch, error) {
	b := &Batch{}

	// 1) Deletions. Tombstones exist only for rows that had a server id.
	deleteOrder := map[string]int{
		fitstore.CollectionSets:      0,
		fitstore.CollectionRests:     1,
		fitstore.CollectionExercises: 2,
		fitstore.CollectionDays:      3,
	}
	deleteOps := map[string]string{
		fitstore.CollectionSets:      OpDeleteSet,
		fitstore.CollectionRests:     OpDeleteRest,
		fitstore.CollectionExercises: OpDeleteExercise,
		fitstore.CollectionDays:      OpDeleteDay,
	}
	tombstones := make([]fitstore.Tombstone, len(p.Tombstones))
	copy(tombstones, p.Tombstones)
	sort.SliceStable(tombstones, func(i, j int) bool {
		oi, oj := deleteOrder[tombstones[i].Collection], deleteOrder[tombstones[j].Collection]
		if oi != oj {
			return oi < oj
		}
		return tombstones[i].DeletedAt.Before(tombstones[j].DeletedAt)
	})
	for _, t := range tombstones {
		opType, ok := deleteOps[t.Collection]
		if !ok {
			return nil, fmt.Errorf("fitsync: tombstone %s references unknown collection %q", t.LocalID, t.Collection)
		}
		b.Ops = append(b.Ops, Operation{Type: opType, ID: t.ServerID})
		b.TombstoneIDs = append(b.TombstoneIDs, t.LocalID)
	}

	// 2) Creations: days, then exercises, then sets and rests.
	days := make([]fitstore.Day, len(p.Days))
	copy(days, p.Days)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	for _, d := range days {
		if d.ServerID.Valid {
			continue // update, handled below
		}
		b.Ops = append(b.Ops, Operation{
			Type:    OpCreateDay,
			LocalID: d.LocalID,
			Payload: dayPayload(d),
		})
		b.CreatedDays = append(b.CreatedDays, d.LocalID)
	}

	exercises := make([]fitstore.Exercise, len(p.Exercises))
	copy(exercises, p.Exercises)
	sort.SliceStable(exercises, func(i, j int) bool {
		if exercises[i].DayID != exercises[j].DayID {
			return exercises[i].DayID < exercises[j].DayID
		}
		return exercises[i].Position < exercises[j].Position
	})
	for _, e := range exercises {
		if e.ServerID.Valid {
			continue
		}
		b.Ops = append(b.Ops, Operation{
			Type:    OpCreateExercise,
			LocalID: e.LocalID,
			Payload: exercisePayload(e, parentRef(p.DayServerIDs, e.DayID)),
		})
		b.CreatedExercises = append(b.CreatedExercises, e.LocalID)
	}

	sets := make([]fitstore.Set, len(p.Sets))
	copy(sets, p.Sets)
	sort.SliceStable(sets, func(i, j int) bool {
		if sets[i].ExerciseID != sets[j].ExerciseID {
			return sets[i].ExerciseID < sets[j].ExerciseID
		}
		return sets[i].Position < sets[j].Position
	})
	for _, st := range sets {
		if st.ServerID.Valid {
			continue
		}
		b.Ops = append(b.Ops, Operation{
			Type:    OpCreateSet,
			LocalID: st.LocalID,
			Payload: setPayload(st, parentRef(p.ExerciseServerIDs, st.ExerciseID)),
		})
		b.CreatedSets = append(b.CreatedSets, st.LocalID)
	}

	rests := make([]fitstore.RestPeriod, len(p.Rests))
	copy(rests, p.Rests)
	sort.SliceStable(rests, func(i, j int) bool {
		if rests[i].ExerciseID != rests[j].ExerciseID {
			return rests[i].ExerciseID < rests[j].ExerciseID
		}
		return rests[i].Position < rests[j].Position
	})
	for _, r := range rests {
		if r.ServerID.Valid {
			continue
		}
		b.Ops = append(b.Ops, Operation{
			Type:    OpCreateRest,
			LocalID: r.LocalID,
			Payload: restPayload(r, parentRef(p.ExerciseServerIDs, r.ExerciseID)),
		})
		b.CreatedRests = append(b.CreatedRests, r.LocalID)
	}

	// 3) Updates: rows that already carry a server id but changed locally.
	for _, d := range days {
		if !d.ServerID.Valid {
			continue
		}
		b.Ops = append(b.Ops, Operation{Type: OpUpdateDay, ID: d.ServerID.String, Payload: dayPayload(d)})
		b.UpdatedDays = append(b.UpdatedDays, d.LocalID)
	}
	for _, e := range exercises {
		if !e.ServerID.Valid {
			continue
		}
		b.Ops = append(b.Ops, Operation{
			Type:    OpUpdateExercise,
			ID:      e.ServerID.String,
			Payload: exercisePayload(e, parentRef(p.DayServerIDs, e.DayID)),
		})
		b.UpdatedExercises = append(b.UpdatedExercises, e.LocalID)
	}
	for _, st := range sets {
		if !st.ServerID.Valid {
			continue
		}
		b.Ops = append(b.Ops, Operation{
			Type:    OpUpdateSet,
			ID:      st.ServerID.String,
			Payload: setPayload(st, parentRef(p.ExerciseServerIDs, st.ExerciseID)),
		})
		b.UpdatedSets = append(b.UpdatedSets, st.LocalID)
	}
	for _, r := range rests {
		if !r.ServerID.Valid {
			continue
		}
		b.Ops = append(b.Ops, Operation{
			Type:    OpUpdateRest,
			ID:      r.ServerID.String,
			Payload: restPayload(r, parentRef(p.ExerciseServerIDs, r.ExerciseID)),
		})
		b.UpdatedRests = append(b.UpdatedRests, r.LocalID)
	}

	return b, nil
}

// parentRef resolves a parent reference to the parent's server id when it
// has one, or a same-batch placeholder otherwise.
func parentRef(serverIDs map[string]string, parentLocalID string) string {
	if id, ok := serverIDs[parentLocalID]; ok {
		return id
	}
	return LocalRef(parentLocalID)
}

func dayPayload(d fitstore.Day) DayPayload {
	return DayPayload{
		UserID:    d.UserID,
		Date:      d.Date,
		IsRestDay: d.IsRestDay,
		Notes:     d.Notes,
		Timezone:  d.Timezone,
	}
}

func exercisePayload(e fitstore.Exercise, dayRef string) ExercisePayload {
	return ExercisePayload{
		DayID:     dayRef,
		CatalogID: e.CatalogID,
		Position:  e.Position,
		Comment:   e.Comment,
	}
}

func setPayload(s fitstore.Set, exerciseRef string) SetPayload {
	return SetPayload{
		ExerciseID: exerciseRef,
		Position:   s.Position,
		Reps:       s.Reps,
		Weight:     s.Weight,
		IsWarmup:   s.IsWarmup,
	}
}

func restPayload(r fitstore.RestPeriod, exerciseRef string) RestPayload {
	return RestPayload{
		ExerciseID:      exerciseRef,
		Position:        r.Position,
		DurationSeconds: r.DurationSeconds,
	}
}
