// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/VikramSGIT/FitLog-sub000/fitstore"
)

// Reconciler writes a successful batch response back into the local store:
// server-assigned identifiers for created rows, synced flags for updated
// rows, tombstone retirement for confirmed deletions, and the new epoch.
// The server is authoritative for identity only; every other field keeps the
// value the client just wrote.
type Reconciler struct {
	store  *fitstore.Store
	logger *slog.Logger
}

func NewReconciler(store *fitstore.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Apply reconciles one accepted batch. The whole response is validated
// before the first local write so a malformed or partial response fails the
// batch without touching any row. Local writes then proceed row by row: if
// storage fails midway, rows already reconciled keep their server identity
// and synced flag, the batch returns an error, and the remainder stays
// pending for the next cycle.
func (r *Reconciler) Apply(ctx context.Context, batch *Batch, resp *BatchResponse) error {
	if !resp.Applied {
		return fmt.Errorf("fitsync: server response not applied")
	}
	if resp.ServerEpoch <= 0 {
		return fmt.Errorf("fitsync: server response carries no epoch")
	}
	if err := validateMapping(batch, resp); err != nil {
		return err
	}

	if err := applyPairs(ctx, r.store.Days, resp.Mapping.Days); err != nil {
		return err
	}
	if err := applyPairs(ctx, r.store.Exercises, resp.Mapping.Exercises); err != nil {
		return err
	}
	if err := applyPairs(ctx, r.store.Sets, resp.Mapping.Sets); err != nil {
		return err
	}
	if err := applyPairs(ctx, r.store.Rests, resp.Mapping.Rests); err != nil {
		return err
	}

	if err := markSynced(ctx, r.store.Days, batch.UpdatedDays); err != nil {
		return err
	}
	if err := markSynced(ctx, r.store.Exercises, batch.UpdatedExercises); err != nil {
		return err
	}
	if err := markSynced(ctx, r.store.Sets, batch.UpdatedSets); err != nil {
		return err
	}
	if err := markSynced(ctx, r.store.Rests, batch.UpdatedRests); err != nil {
		return err
	}

	if err := r.store.Tombstones.BulkRemove(ctx, batch.TombstoneIDs); err != nil {
		return fmt.Errorf("failed to retire tombstones: %w", err)
	}

	if err := r.store.SetEpoch(ctx, resp.ServerEpoch); err != nil {
		return err
	}
	r.logger.Debug("batch reconciled",
		"ops", len(batch.Ops),
		"tombstones_retired", len(batch.TombstoneIDs),
		"epoch", resp.ServerEpoch)
	return nil
}

// AdoptEpoch handles a stale-epoch rejection: the locally cached epoch
// advances to the server's value and nothing else changes, leaving every
// pending row intact for the next attempt.
func (r *Reconciler) AdoptEpoch(ctx context.Context, serverEpoch int64) error {
	if err := r.store.SetEpoch(ctx, serverEpoch); err != nil {
		return err
	}
	r.logger.Debug("adopted server epoch after stale-epoch rejection", "epoch", serverEpoch)
	return nil
}

// validateMapping rejects responses that map ids the batch never created.
// Missing pairs are tolerated: the affected rows simply stay unsynced and
// ride the next batch.
func validateMapping(batch *Batch, resp *BatchResponse) error {
	check := func(kind string, created []string, pairs []IDPair) error {
		known := make(map[string]bool, len(created))
		for _, id := range created {
			known[id] = true
		}
		for _, pair := range pairs {
			if pair.ID == "" {
				return fmt.Errorf("fitsync: mapping for %s %s carries an empty server id", kind, pair.LocalID)
			}
			if !known[pair.LocalID] {
				return fmt.Errorf("fitsync: mapping references %s %s not created in this batch", kind, pair.LocalID)
			}
		}
		return nil
	}
	if err := check("day", batch.CreatedDays, resp.Mapping.Days); err != nil {
		return err
	}
	if err := check("exercise", batch.CreatedExercises, resp.Mapping.Exercises); err != nil {
		return err
	}
	if err := check("set", batch.CreatedSets, resp.Mapping.Sets); err != nil {
		return err
	}
	return check("rest", batch.CreatedRests, resp.Mapping.Rests)
}

// serverIdentified is the slice of row behavior the reconciler mutates.
type serverIdentified interface {
	fitstore.Day | fitstore.Exercise | fitstore.Set | fitstore.RestPeriod
}

func applyPairs[T serverIdentified](ctx context.Context, c *fitstore.Collection[T], pairs []IDPair) error {
	for _, pair := range pairs {
		err := c.Update(ctx, pair.LocalID, func(row *T) {
			setIdentity(row, pair.ID)
		})
		if err != nil {
			return fmt.Errorf("failed to reconcile %s %s: %w", c.Name(), pair.LocalID, err)
		}
	}
	return nil
}

func markSynced[T serverIdentified](ctx context.Context, c *fitstore.Collection[T], localIDs []string) error {
	for _, id := range localIDs {
		err := c.Update(ctx, id, func(row *T) {
			setSynced(row)
		})
		if err != nil {
			return fmt.Errorf("failed to mark %s %s synced: %w", c.Name(), id, err)
		}
	}
	return nil
}

func setIdentity[T serverIdentified](row *T, serverID string) {
	id := sql.NullString{String: serverID, Valid: true}
	switch r := any(row).(type) {
	case *fitstore.Day:
		r.ServerID, r.Synced = id, true
	case *fitstore.Exercise:
		r.ServerID, r.Synced = id, true
	case *fitstore.Set:
		r.ServerID, r.Synced = id, true
	case *fitstore.RestPeriod:
		r.ServerID, r.Synced = id, true
	}
}

func setSynced[T serverIdentified](row *T) {
	switch r := any(row).(type) {
	case *fitstore.Day:
		r.Synced = true
	case *fitstore.Exercise:
		r.Synced = true
	case *fitstore.Set:
		r.Synced = true
	case *fitstore.RestPeriod:
		r.Synced = true
	}
}
