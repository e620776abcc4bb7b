// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package logbook

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/VikramSGIT/FitLog-sub000/fitstore"
)

// loadDayFromServer seeds the local store from the day-ensure endpoint on
// first visit to a date with no local row. Seeded rows are born synced with
// their server identifiers filled in, so the next batch carries nothing for
// them. Returns nil when the server has no day for the date or no transport
// is configured (pure-offline session).
func (s *Service) loadDayFromServer(ctx context.Context, date string) (*fitstore.Day, error) {
	if s.transport == nil {
		return nil, nil
	}
	remote, err := s.transport.FetchDay(ctx, date, true)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		return nil, nil
	}

	day := fitstore.Day{
		LocalID:   uuid.NewString(),
		ServerID:  sql.NullString{String: remote.ID, Valid: true},
		UserID:    s.userID,
		Date:      remote.Date,
		IsRestDay: remote.IsRestDay,
		Notes:     remote.Notes,
		Timezone:  remote.Timezone,
		Synced:    true,
	}

	var exercises []fitstore.Exercise
	var sets []fitstore.Set
	var rests []fitstore.RestPeriod
	for _, re := range remote.Exercises {
		exercise := fitstore.Exercise{
			LocalID:   uuid.NewString(),
			ServerID:  sql.NullString{String: re.ID, Valid: true},
			DayID:     day.LocalID,
			CatalogID: re.CatalogID,
			Position:  re.Position,
			Comment:   re.Comment,
			Synced:    true,
		}
		exercises = append(exercises, exercise)
		for _, rs := range re.Sets {
			sets = append(sets, fitstore.Set{
				LocalID:    uuid.NewString(),
				ServerID:   sql.NullString{String: rs.ID, Valid: true},
				ExerciseID: exercise.LocalID,
				Position:   rs.Position,
				Reps:       rs.Reps,
				Weight:     rs.Weight,
				IsWarmup:   rs.IsWarmup,
				Synced:     true,
			})
		}
		for _, rr := range re.Rests {
			rests = append(rests, fitstore.RestPeriod{
				LocalID:         uuid.NewString(),
				ServerID:        sql.NullString{String: rr.ID, Valid: true},
				ExerciseID:      exercise.LocalID,
				Position:        rr.Position,
				DurationSeconds: rr.DurationSeconds,
				Synced:          true,
			})
		}
	}

	if err := s.store.Days.Insert(ctx, day); err != nil {
		return nil, err
	}
	if err := s.store.Exercises.BulkUpsert(ctx, exercises); err != nil {
		return nil, err
	}
	if err := s.store.Sets.BulkUpsert(ctx, sets); err != nil {
		return nil, err
	}
	if err := s.store.Rests.BulkUpsert(ctx, rests); err != nil {
		return nil, err
	}
	s.logger.Debug("seeded day from server",
		"date", date,
		"exercises", len(exercises),
		"sets", len(sets),
		"rests", len(rests))
	return &day, nil
}
