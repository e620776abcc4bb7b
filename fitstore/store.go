// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

// Package fitstore implements the on-device store for the workout log:
// indexed persistent collections for days, exercises, sets, rest periods and
// tombstones, with synchronous CRUD, subscribable live queries and a
// persisted sync epoch. All writes funnel through one mutex so that two
// mutation calls racing within the same tick cannot interleave inside a
// storage transaction.
package fitstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row lookup by id or selector matches nothing.
var ErrNotFound = errors.New("fitstore: row not found")

// ValidationError reports a malformed entity rejected at the store boundary.
type ValidationError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("fitstore: invalid %s.%s: %s", e.Collection, e.Field, e.Reason)
}

// Store owns the SQLite database and the per-collection live-query
// subscriptions. Use Open or NewStore to create one.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// writeMu serializes all writes to avoid lost updates when two mutation
	// calls race within the same tick.
	writeMu sync.Mutex

	// epochMu guards the persisted epoch scalar so a retry never reads a
	// half-updated value.
	epochMu sync.Mutex

	subMu   sync.Mutex
	nextSub int
	subs    map[string]map[int]func() // collection -> subscriber id -> notify

	Days       *Collection[Day]
	Exercises  *Collection[Exercise]
	Sets       *Collection[Set]
	Rests      *Collection[RestPeriod]
	Tombstones *Collection[Tombstone]
}

// Open opens (or creates) the database at path and initializes the schema.
// Use ":memory:" for an in-memory store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing database handle and initializes the schema.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// One connection keeps every statement on the same SQLite handle, so
	// in-memory databases keep their schema and reads never observe a
	// transaction boundary mid-write.
	db.SetMaxOpenConns(1)
	s := &Store{
		db:     db,
		logger: logger,
		subs:   make(map[string]map[int]func()),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	s.Days = newDayCollection(s)
	s.Exercises = newExerciseCollection(s)
	s.Sets = newSetCollection(s)
	s.Rests = newRestCollection(s)
	s.Tombstones = newTombstoneCollection(s)
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS days (
			local_id    TEXT PRIMARY KEY,
			server_id   TEXT,
			user_id     TEXT NOT NULL,
			date        TEXT NOT NULL,
			is_rest_day INTEGER NOT NULL DEFAULT 0,
			notes       TEXT NOT NULL DEFAULT '',
			timezone    TEXT NOT NULL DEFAULT '',
			synced      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_days_user_date ON days(user_id, date)`,

		`CREATE TABLE IF NOT EXISTS exercises (
			local_id   TEXT PRIMARY KEY,
			server_id  TEXT,
			day_id     TEXT NOT NULL,
			catalog_id TEXT NOT NULL,
			position   INTEGER NOT NULL,
			comment    TEXT NOT NULL DEFAULT '',
			synced     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exercises_day ON exercises(day_id)`,

		`CREATE TABLE IF NOT EXISTS sets (
			local_id    TEXT PRIMARY KEY,
			server_id   TEXT,
			exercise_id TEXT NOT NULL,
			position    INTEGER NOT NULL,
			reps        INTEGER NOT NULL,
			weight      REAL NOT NULL,
			is_warmup   INTEGER NOT NULL DEFAULT 0,
			volume      REAL NOT NULL,
			synced      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sets_exercise ON sets(exercise_id)`,

		`CREATE TABLE IF NOT EXISTS rest_periods (
			local_id         TEXT PRIMARY KEY,
			server_id        TEXT,
			exercise_id      TEXT NOT NULL,
			position         INTEGER NOT NULL,
			duration_seconds INTEGER NOT NULL,
			synced           INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rests_exercise ON rest_periods(exercise_id)`,

		`CREATE TABLE IF NOT EXISTS tombstones (
			local_id   TEXT PRIMARY KEY,
			server_id  TEXT NOT NULL,
			collection TEXT NOT NULL,
			deleted_at TEXT NOT NULL
		)`,

		// Persisted sync state, a single scalar row (epoch counter).
		`CREATE TABLE IF NOT EXISTS sync_state (
			id    INTEGER PRIMARY KEY CHECK (id = 1),
			epoch INTEGER NOT NULL
		)`,
	}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// subscribe registers a notify callback for a collection and returns a
// cancel function. Callbacks run after the triggering write has committed.
func (s *Store) subscribe(collection string, notify func()) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	id := s.nextSub
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[int]func())
	}
	s.subs[collection][id] = notify
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs[collection], id)
	}
}

// notify wakes every subscriber of a collection. Subscribers are notified on
// every write to the collection whether or not their selector matches the
// changed row; over-notification is acceptable, under-notification is not.
func (s *Store) notify(collection string) {
	s.subMu.Lock()
	callbacks := make([]func(), 0, len(s.subs[collection]))
	for _, fn := range s.subs[collection] {
		callbacks = append(callbacks, fn)
	}
	s.subMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}
