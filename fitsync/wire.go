// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

// Package fitsync drives background reconciliation of the local workout log
// with the server: it linearizes pending local state into one ordered batch
// of typed operations, sends it with optimistic-concurrency metadata, and
// applies the server's identifier mappings back onto local rows.
package fitsync

import (
	"fmt"
	"time"
)

// ProtocolVersion tags every batch request so the server can reject clients
// it no longer understands.
const ProtocolVersion = 1

// Operation types, in the order the server applies them within a batch.
const (
	OpDeleteSet      = "deleteSet"
	OpDeleteRest     = "deleteRest"
	OpDeleteExercise = "deleteExercise"
	OpDeleteDay      = "deleteDay"
	OpCreateDay      = "createDay"
	OpCreateExercise = "createExercise"
	OpCreateSet      = "createSet"
	OpCreateRest     = "createRest"
	OpUpdateDay      = "updateDay"
	OpUpdateExercise = "updateExercise"
	OpUpdateSet      = "updateSet"
	OpUpdateRest     = "updateRest"
)

// localRefPrefix marks an in-batch placeholder reference to a row created
// earlier in the same batch; the server resolves it against the identifiers
// it just assigned.
const localRefPrefix = "local:"

// LocalRef builds a placeholder reference embedding a client-local id.
func LocalRef(localID string) string { return localRefPrefix + localID }

// Operation is one typed mutation in a batch. Creates carry LocalID and a
// payload; updates carry ID (server id) and a payload; deletes carry ID only.
type Operation struct {
	Type    string `json:"type"`
	LocalID string `json:"localId,omitempty"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Entity payloads. Parent references (DayID, ExerciseID) hold either a real
// server id or a placeholder from LocalRef.
type DayPayload struct {
	UserID    string `json:"userId"`
	Date      string `json:"date"`
	IsRestDay bool   `json:"isRestDay"`
	Notes     string `json:"notes,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

type ExercisePayload struct {
	DayID     string `json:"dayId"`
	CatalogID string `json:"catalogId"`
	Position  int    `json:"position"`
	Comment   string `json:"comment,omitempty"`
}

type SetPayload struct {
	ExerciseID string  `json:"exerciseId"`
	Position   int     `json:"position"`
	Reps       int     `json:"reps"`
	Weight     float64 `json:"weight"`
	IsWarmup   bool    `json:"isWarmup"`
}

type RestPayload struct {
	ExerciseID      string `json:"exerciseId"`
	Position        int    `json:"position"`
	DurationSeconds int    `json:"durationSeconds"`
}

// BatchRequest is the body of one sync attempt. IdempotencyKey is fresh per
// attempt; Epoch is the client's cached server epoch.
type BatchRequest struct {
	Version        int         `json:"version"`
	IdempotencyKey string      `json:"idempotencyKey"`
	Epoch          int64       `json:"epoch"`
	Ops            []Operation `json:"ops"`
}

// IDPair maps one client-local id to the server id assigned in this batch.
type IDPair struct {
	LocalID string `json:"localId"`
	ID      string `json:"id"`
}

// IDMapping groups assigned ids per created entity type.
type IDMapping struct {
	Days      []IDPair `json:"days,omitempty"`
	Exercises []IDPair `json:"exercises,omitempty"`
	Sets      []IDPair `json:"sets,omitempty"`
	Rests     []IDPair `json:"rests,omitempty"`
}

// BatchResponse is the server's answer to an accepted batch.
type BatchResponse struct {
	Applied     bool      `json:"applied"`
	Mapping     IDMapping `json:"mapping"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ServerEpoch int64     `json:"serverEpoch"`
}

// ErrorResponse is the server's answer to a rejected batch. Code
// ErrCodeStaleEpoch means the client's epoch is behind; ServerEpoch then
// carries the current value, which the client adopts even on failure.
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message,omitempty"`
	ServerEpoch int64  `json:"serverEpoch,omitempty"`
}

const ErrCodeStaleEpoch = "stale_epoch"

// StaleEpochError reports that the server rejected a batch because the
// client's cached epoch is behind the server's.
type StaleEpochError struct {
	ClientEpoch int64
	ServerEpoch int64
}

func (e *StaleEpochError) Error() string {
	return fmt.Sprintf("fitsync: stale epoch (client %d, server %d)", e.ClientEpoch, e.ServerEpoch)
}

// EpochResponse is the body of the epoch endpoint, consulted once at session
// start when no epoch is cached locally.
type EpochResponse struct {
	ServerEpoch int64 `json:"serverEpoch"`
}

// Server-side day snapshot returned by the day-ensure endpoint, used to seed
// the local store on first visit to a date.
type ServerDay struct {
	ID        string           `json:"id"`
	Date      string           `json:"date"`
	IsRestDay bool             `json:"isRestDay"`
	Notes     string           `json:"notes,omitempty"`
	Timezone  string           `json:"timezone,omitempty"`
	Exercises []ServerExercise `json:"exercises,omitempty"`
}

type ServerExercise struct {
	ID        string       `json:"id"`
	CatalogID string       `json:"catalogId"`
	Position  int          `json:"position"`
	Comment   string       `json:"comment,omitempty"`
	Sets      []ServerSet  `json:"sets,omitempty"`
	Rests     []ServerRest `json:"rests,omitempty"`
}

type ServerSet struct {
	ID       string  `json:"id"`
	Position int     `json:"position"`
	Reps     int     `json:"reps"`
	Weight   float64 `json:"weight"`
	IsWarmup bool    `json:"isWarmup"`
}

type ServerRest struct {
	ID              string `json:"id"`
	Position        int    `json:"position"`
	DurationSeconds int    `json:"durationSeconds"`
}

// DayEnsureResponse wraps the day-ensure endpoint result. Found is false
// when the server has no day for the requested date.
type DayEnsureResponse struct {
	Found bool       `json:"found"`
	Day   *ServerDay `json:"day,omitempty"`
}
