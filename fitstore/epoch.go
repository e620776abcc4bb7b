// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Epoch returns the cached server epoch. ok is false when no epoch has been
// stored yet (fresh install), in which case the caller should consult the
// server's epoch endpoint before the first batch.
func (s *Store) Epoch(ctx context.Context) (epoch int64, ok bool, err error) {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	err = s.db.QueryRowContext(ctx, `SELECT epoch FROM sync_state WHERE id = 1`).Scan(&epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load epoch: %w", err)
	}
	return epoch, true, nil
}

// SetEpoch persists the server epoch. It is written after every sync
// attempt, including failed ones that carried a newer server epoch.
func (s *Store) SetEpoch(ctx context.Context, epoch int64) error {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, epoch) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET epoch = excluded.epoch
	`, epoch)
	if err != nil {
		return fmt.Errorf("failed to store epoch: %w", err)
	}
	return nil
}
