// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

// Package logbook is the collaborator boundary between the presentation
// layer and the sync core. It exposes imperative mutation functions that
// write to the local store optimistically, reactive day views with
// normalized exercise timelines, and the save-state surface. It never
// imports UI code and UI code never reaches past it into the store.
package logbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/VikramSGIT/FitLog-sub000/fitstore"
	"github.com/VikramSGIT/FitLog-sub000/fitsync"
)

// Service wires the local store, the sync orchestrator and the server
// transport into one UI-facing API for a single signed-in user.
type Service struct {
	store     *fitstore.Store
	orch      *fitsync.Orchestrator
	transport *fitsync.Transport
	userID    string
	logger    *slog.Logger
}

func NewService(store *fitstore.Store, orch *fitsync.Orchestrator, transport *fitsync.Transport, userID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		orch:      orch,
		transport: transport,
		userID:    userID,
		logger:    logger,
	}
}

// Status returns the current save-state snapshot for UI display.
func (s *Service) Status() fitsync.Status { return s.orch.Status() }

// OnStatusChange subscribes to save-state transitions.
func (s *Service) OnStatusChange(fn func(fitsync.Status)) func() {
	return s.orch.OnStatusChange(fn)
}

// SaveNow runs a manual save immediately.
func (s *Service) SaveNow(ctx context.Context) error { return s.orch.SaveNow(ctx) }

// Flush drains unsaved edits synchronously. The presentation layer calls it
// on unmount/navigation so a pending debounce never drops edits.
func (s *Service) Flush(ctx context.Context) error { return s.orch.FlushAll(ctx) }

// scheduleSave queues the debounced auto-save after a local mutation.
func (s *Service) scheduleSave() { s.orch.RequestAutoSave() }

// EnsureDay returns the day row for a date, creating it if the date has no
// local or remote representation yet. Lookup order: local store, then the
// server's day-ensure endpoint (seeding the store when found), then a fresh
// unsynced local row.
func (s *Service) EnsureDay(ctx context.Context, date string) (fitstore.Day, error) {
	day, err := s.store.Days.FindOne(ctx, fitstore.Selector{"user_id": s.userID, "date": date})
	if err == nil {
		return day, nil
	}
	if !errors.Is(err, fitstore.ErrNotFound) {
		return fitstore.Day{}, err
	}

	if seeded, err := s.loadDayFromServer(ctx, date); err != nil {
		s.logger.Warn("server day lookup failed, creating local day", "date", date, "error", err)
	} else if seeded != nil {
		return *seeded, nil
	}

	day = fitstore.Day{
		LocalID: uuid.NewString(),
		UserID:  s.userID,
		Date:    date,
		Synced:  false,
	}
	if err := s.store.Days.Insert(ctx, day); err != nil {
		return fitstore.Day{}, err
	}
	s.scheduleSave()
	return day, nil
}

// SetRestDay toggles the rest-day flag for a date.
func (s *Service) SetRestDay(ctx context.Context, date string, isRestDay bool) error {
	day, err := s.EnsureDay(ctx, date)
	if err != nil {
		return err
	}
	err = s.store.Days.Update(ctx, day.LocalID, func(d *fitstore.Day) {
		d.IsRestDay = isRestDay
		d.Synced = false
	})
	if err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

// SetDayNotes replaces the notes for a date.
func (s *Service) SetDayNotes(ctx context.Context, date, notes string) error {
	day, err := s.EnsureDay(ctx, date)
	if err != nil {
		return err
	}
	err = s.store.Days.Update(ctx, day.LocalID, func(d *fitstore.Day) {
		d.Notes = notes
		d.Synced = false
	})
	if err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

// AddExercise appends a catalog exercise to a date, creating the day lazily.
func (s *Service) AddExercise(ctx context.Context, date, catalogID string) (fitstore.Exercise, error) {
	day, err := s.EnsureDay(ctx, date)
	if err != nil {
		return fitstore.Exercise{}, err
	}
	siblings, err := s.store.Exercises.Find(ctx, fitstore.Selector{"day_id": day.LocalID})
	if err != nil {
		return fitstore.Exercise{}, err
	}
	exercise := fitstore.Exercise{
		LocalID:   uuid.NewString(),
		DayID:     day.LocalID,
		CatalogID: catalogID,
		Position:  len(siblings),
		Synced:    false,
	}
	if err := s.store.Exercises.Insert(ctx, exercise); err != nil {
		return fitstore.Exercise{}, err
	}
	s.scheduleSave()
	return exercise, nil
}

// SetExerciseComment replaces the comment on an exercise.
func (s *Service) SetExerciseComment(ctx context.Context, exerciseID, comment string) error {
	err := s.store.Exercises.Update(ctx, exerciseID, func(e *fitstore.Exercise) {
		e.Comment = comment
		e.Synced = false
	})
	if err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

// MoveExercise moves an exercise to a new position on its day and renumbers
// the day's exercises densely.
func (s *Service) MoveExercise(ctx context.Context, exerciseID string, newPosition int) error {
	exercise, err := s.store.Exercises.Get(ctx, exerciseID)
	if err != nil {
		return err
	}
	siblings, err := s.store.Exercises.Find(ctx, fitstore.Selector{"day_id": exercise.DayID})
	if err != nil {
		return err
	}
	sort.SliceStable(siblings, func(i, j int) bool { return siblings[i].Position < siblings[j].Position })
	idx := -1
	for i, e := range siblings {
		if e.LocalID == exerciseID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fitstore.ErrNotFound
	}
	if newPosition < 0 {
		newPosition = 0
	}
	if newPosition >= len(siblings) {
		newPosition = len(siblings) - 1
	}
	moved := siblings[idx]
	siblings = append(siblings[:idx], siblings[idx+1:]...)
	siblings = append(siblings[:newPosition], append([]fitstore.Exercise{moved}, siblings[newPosition:]...)...)
	if err := s.renumberExercises(ctx, siblings); err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

// DeleteExercise removes an exercise and all its sets and rest periods.
// Rows that were already synced leave tombstones; purely-local rows vanish
// outright. Remaining exercises on the day are renumbered densely.
func (s *Service) DeleteExercise(ctx context.Context, exerciseID string) error {
	exercise, err := s.store.Exercises.Get(ctx, exerciseID)
	if err != nil {
		return err
	}

	sets, err := s.store.Sets.Find(ctx, fitstore.Selector{"exercise_id": exerciseID})
	if err != nil {
		return err
	}
	for _, st := range sets {
		if err := s.removeSet(ctx, st); err != nil {
			return err
		}
	}
	rests, err := s.store.Rests.Find(ctx, fitstore.Selector{"exercise_id": exerciseID})
	if err != nil {
		return err
	}
	for _, r := range rests {
		if err := s.removeRest(ctx, r); err != nil {
			return err
		}
	}

	if exercise.ServerID.Valid {
		err := s.store.Tombstones.Insert(ctx, fitstore.Tombstone{
			LocalID:    exercise.LocalID,
			ServerID:   exercise.ServerID.String,
			Collection: fitstore.CollectionExercises,
			DeletedAt:  time.Now(),
		})
		if err != nil {
			return err
		}
	}
	if err := s.store.Exercises.Remove(ctx, exerciseID); err != nil {
		return err
	}

	siblings, err := s.store.Exercises.Find(ctx, fitstore.Selector{"day_id": exercise.DayID})
	if err != nil {
		return err
	}
	sort.SliceStable(siblings, func(i, j int) bool { return siblings[i].Position < siblings[j].Position })
	if err := s.renumberExercises(ctx, siblings); err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

// AddSet appends a set to an exercise.
func (s *Service) AddSet(ctx context.Context, exerciseID string, reps int, weight float64, isWarmup bool) (fitstore.Set, error) {
	if _, err := s.store.Exercises.Get(ctx, exerciseID); err != nil {
		return fitstore.Set{}, fmt.Errorf("failed to load exercise for new set: %w", err)
	}
	siblings, err := s.store.Sets.Find(ctx, fitstore.Selector{"exercise_id": exerciseID})
	if err != nil {
		return fitstore.Set{}, err
	}
	set := fitstore.Set{
		LocalID:    uuid.NewString(),
		ExerciseID: exerciseID,
		Position:   len(siblings),
		Reps:       reps,
		Weight:     weight,
		IsWarmup:   isWarmup,
		Synced:     false,
	}
	if err := s.store.Sets.Insert(ctx, set); err != nil {
		return fitstore.Set{}, err
	}
	set.Volume = float64(reps) * weight
	s.scheduleSave()
	return set, nil
}

// UpdateSet rewrites a set's reps, weight and warmup flag. Volume is derived
// in the store from reps and weight.
func (s *Service) UpdateSet(ctx context.Context, setID string, reps int, weight float64, isWarmup bool) error {
	err := s.store.Sets.Update(ctx, setID, func(st *fitstore.Set) {
		st.Reps = reps
		st.Weight = weight
		st.IsWarmup = isWarmup
		st.Synced = false
	})
	if err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

// SetWeight changes only the weight of a set; reps carry over and volume
// recomputes.
func (s *Service) SetWeight(ctx context.Context, setID string, weight float64) error {
	err := s.store.Sets.Update(ctx, setID, func(st *fitstore.Set) {
		st.Weight = weight
		st.Synced = false
	})
	if err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

// MoveSet moves a set to a new position within its exercise and renumbers
// the exercise's sets densely.
func (s *Service) MoveSet(ctx context.Context, setID string, newPosition int) error {
	set, err := s.store.Sets.Get(ctx, setID)
	if err != nil {
		return err
	}
	siblings, err := s.store.Sets.Find(ctx, fitstore.Selector{"exercise_id": set.ExerciseID})
	if err != nil {
		return err
	}
	sort.SliceStable(siblings, func(i, j int) bool { return siblings[i].Position < siblings[j].Position })
	idx := -1
	for i, st := range siblings {
		if st.LocalID == setID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fitstore.ErrNotFound
	}
	if newPosition < 0 {
		newPosition = 0
	}
	if newPosition >= len(siblings) {
		newPosition = len(siblings) - 1
	}
	moved := siblings[idx]
	siblings = append(siblings[:idx], siblings[idx+1:]...)
	siblings = append(siblings[:newPosition], append([]fitstore.Set{moved}, siblings[newPosition:]...)...)
	for i, st := range siblings {
		if st.Position == i {
			continue
		}
		err := s.store.Sets.Update(ctx, st.LocalID, func(row *fitstore.Set) {
			row.Position = i
			row.Synced = false
		})
		if err != nil {
			return err
		}
	}
	s.scheduleSave()
	return nil
}

// DeleteSet removes a set and renumbers the exercise's sets densely.
func (s *Service) DeleteSet(ctx context.Context, setID string) error {
	set, err := s.store.Sets.Get(ctx, setID)
	if err != nil {
		return err
	}
	if err := s.removeSet(ctx, set); err != nil {
		return err
	}
	siblings, err := s.store.Sets.Find(ctx, fitstore.Selector{"exercise_id": set.ExerciseID})
	if err != nil {
		return err
	}
	sort.SliceStable(siblings, func(i, j int) bool { return siblings[i].Position < siblings[j].Position })
	for i, st := range siblings {
		if st.Position == i {
			continue
		}
		err := s.store.Sets.Update(ctx, st.LocalID, func(row *fitstore.Set) {
			row.Position = i
			row.Synced = false
		})
		if err != nil {
			return err
		}
	}
	s.scheduleSave()
	return nil
}

// AddRest records a rest period after the exercise's last set (or before the
// first set when the exercise has none yet).
func (s *Service) AddRest(ctx context.Context, exerciseID string, durationSeconds int) (fitstore.RestPeriod, error) {
	if _, err := s.store.Exercises.Get(ctx, exerciseID); err != nil {
		return fitstore.RestPeriod{}, fmt.Errorf("failed to load exercise for new rest: %w", err)
	}
	sets, err := s.store.Sets.Find(ctx, fitstore.Selector{"exercise_id": exerciseID})
	if err != nil {
		return fitstore.RestPeriod{}, err
	}
	position := 0
	for _, st := range sets {
		if st.Position > position {
			position = st.Position
		}
	}
	rest := fitstore.RestPeriod{
		LocalID:         uuid.NewString(),
		ExerciseID:      exerciseID,
		Position:        position,
		DurationSeconds: durationSeconds,
		Synced:          false,
	}
	if err := s.store.Rests.Insert(ctx, rest); err != nil {
		return fitstore.RestPeriod{}, err
	}
	s.scheduleSave()
	return rest, nil
}

// SetRestDuration changes the duration of a rest period.
func (s *Service) SetRestDuration(ctx context.Context, restID string, durationSeconds int) error {
	err := s.store.Rests.Update(ctx, restID, func(r *fitstore.RestPeriod) {
		r.DurationSeconds = durationSeconds
		r.Synced = false
	})
	if err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

// DeleteRest removes a rest period.
func (s *Service) DeleteRest(ctx context.Context, restID string) error {
	rest, err := s.store.Rests.Get(ctx, restID)
	if err != nil {
		return err
	}
	if err := s.removeRest(ctx, rest); err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

func (s *Service) removeSet(ctx context.Context, set fitstore.Set) error {
	if set.ServerID.Valid {
		err := s.store.Tombstones.Insert(ctx, fitstore.Tombstone{
			LocalID:    set.LocalID,
			ServerID:   set.ServerID.String,
			Collection: fitstore.CollectionSets,
			DeletedAt:  time.Now(),
		})
		if err != nil {
			return err
		}
	}
	return s.store.Sets.Remove(ctx, set.LocalID)
}

func (s *Service) removeRest(ctx context.Context, rest fitstore.RestPeriod) error {
	if rest.ServerID.Valid {
		err := s.store.Tombstones.Insert(ctx, fitstore.Tombstone{
			LocalID:    rest.LocalID,
			ServerID:   rest.ServerID.String,
			Collection: fitstore.CollectionRests,
			DeletedAt:  time.Now(),
		})
		if err != nil {
			return err
		}
	}
	return s.store.Rests.Remove(ctx, rest.LocalID)
}

func (s *Service) renumberExercises(ctx context.Context, ordered []fitstore.Exercise) error {
	for i, e := range ordered {
		if e.Position == i {
			continue
		}
		err := s.store.Exercises.Update(ctx, e.LocalID, func(row *fitstore.Exercise) {
			row.Position = i
			row.Synced = false
		})
		if err != nil {
			return err
		}
	}
	return nil
}
