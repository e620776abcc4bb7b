// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package logbook

import (
	"context"
	"errors"
	"sort"

	"github.com/VikramSGIT/FitLog-sub000/fitstore"
)

// DayView is the read model the presentation layer renders: the day row plus
// every exercise with its normalized set/rest timeline and derived volume.
type DayView struct {
	Found       bool
	Day         fitstore.Day
	Exercises   []ExerciseView
	TotalVolume float64 // working (non-warmup) volume across the day
}

// ExerciseView pairs an exercise with its merged timeline.
type ExerciseView struct {
	Exercise fitstore.Exercise
	Timeline []fitstore.TimelineEntry
	Volume   float64 // working (non-warmup) volume of the exercise
}

// DayView assembles the read model for a date. A date with no local day row
// yields Found=false and an otherwise empty view; it does not create rows.
func (s *Service) DayView(ctx context.Context, date string) (DayView, error) {
	day, err := s.store.Days.FindOne(ctx, fitstore.Selector{"user_id": s.userID, "date": date})
	if errors.Is(err, fitstore.ErrNotFound) {
		return DayView{}, nil
	}
	if err != nil {
		return DayView{}, err
	}

	exercises, err := s.store.Exercises.Find(ctx, fitstore.Selector{"day_id": day.LocalID})
	if err != nil {
		return DayView{}, err
	}
	sort.SliceStable(exercises, func(i, j int) bool { return exercises[i].Position < exercises[j].Position })

	view := DayView{Found: true, Day: day}
	for _, exercise := range exercises {
		sets, err := s.store.Sets.Find(ctx, fitstore.Selector{"exercise_id": exercise.LocalID})
		if err != nil {
			return DayView{}, err
		}
		rests, err := s.store.Rests.Find(ctx, fitstore.Selector{"exercise_id": exercise.LocalID})
		if err != nil {
			return DayView{}, err
		}
		ev := ExerciseView{
			Exercise: exercise,
			Timeline: fitstore.MergeTimeline(sets, rests),
		}
		for _, st := range sets {
			if !st.IsWarmup {
				ev.Volume += st.Volume
			}
		}
		view.TotalVolume += ev.Volume
		view.Exercises = append(view.Exercises, ev)
	}
	return view, nil
}

// WatchDay emits the current DayView immediately and again after every write
// to any collection that could affect it. Emissions are recomputed from the
// store, so the timeline and derived volumes are always consistent with the
// rows just written.
func (s *Service) WatchDay(date string, fn func(DayView)) (func(), error) {
	emit := func() {
		view, err := s.DayView(context.Background(), date)
		if err != nil {
			s.logger.Error("day view refresh failed", "date", date, "error", err)
			return
		}
		fn(view)
	}

	var cancels []func()
	cancelAll := func() {
		for _, c := range cancels {
			c()
		}
	}
	// One subscription per collection; each fires on every write to that
	// collection (over-notification is part of the live-query contract).
	cancelDays, err := s.store.Days.Subscribe(fitstore.Selector{"user_id": s.userID, "date": date}, func([]fitstore.Day) { emit() })
	if err != nil {
		return nil, err
	}
	cancels = append(cancels, cancelDays)
	cancelExercises, err := s.store.Exercises.Subscribe(nil, func([]fitstore.Exercise) { emit() })
	if err != nil {
		cancelAll()
		return nil, err
	}
	cancels = append(cancels, cancelExercises)
	cancelSets, err := s.store.Sets.Subscribe(nil, func([]fitstore.Set) { emit() })
	if err != nil {
		cancelAll()
		return nil, err
	}
	cancels = append(cancels, cancelSets)
	cancelRests, err := s.store.Rests.Subscribe(nil, func([]fitstore.RestPeriod) { emit() })
	if err != nil {
		cancelAll()
		return nil, err
	}
	cancels = append(cancels, cancelRests)
	return cancelAll, nil
}
