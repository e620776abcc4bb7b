// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// Collection provides CRUD, bulk and live-query access to one table. All
// write methods are serialized through the store's write mutex and notify
// every live-query subscriber of the collection after the write commits.
type Collection[T any] struct {
	store   *Store
	name    string
	columns []string        // column order used for insert/update/scan
	colSet  map[string]bool // selector whitelist
	id      func(*T) string
	args    func(*T) []any // values in columns order
	scan    func(rowScanner) (T, error)
	// normalize validates the row and recomputes derived fields. Runs on
	// every insert, upsert and update before the row hits storage.
	normalize func(*T) error
}

func newCollection[T any](
	store *Store,
	name string,
	columns []string,
	id func(*T) string,
	args func(*T) []any,
	scan func(rowScanner) (T, error),
	normalize func(*T) error,
) *Collection[T] {
	colSet := make(map[string]bool, len(columns))
	for _, c := range columns {
		colSet[c] = true
	}
	return &Collection[T]{
		store:     store,
		name:      name,
		columns:   columns,
		colSet:    colSet,
		id:        id,
		args:      args,
		scan:      scan,
		normalize: normalize,
	}
}

// Name returns the collection (table) name.
func (c *Collection[T]) Name() string { return c.name }

// Insert adds a new row. The row is validated and derived fields are
// recomputed before the write; malformed rows are rejected, never clamped.
func (c *Collection[T]) Insert(ctx context.Context, row T) error {
	if err := c.normalize(&row); err != nil {
		return err
	}
	c.store.writeMu.Lock()
	err := c.exec(ctx, c.insertSQL("INSERT"), c.args(&row)...)
	c.store.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", c.name, err)
	}
	c.store.notify(c.name)
	return nil
}

// Update loads the row by local id, applies mutate to a copy and writes the
// result back. The local identifier is immutable; mutations to it are
// discarded. Returns ErrNotFound if no row has that id.
func (c *Collection[T]) Update(ctx context.Context, localID string, mutate func(*T)) error {
	c.store.writeMu.Lock()
	err := c.updateLocked(ctx, localID, mutate)
	c.store.writeMu.Unlock()
	if err != nil {
		return err
	}
	c.store.notify(c.name)
	return nil
}

func (c *Collection[T]) updateLocked(ctx context.Context, localID string, mutate func(*T)) error {
	row, err := c.get(ctx, localID)
	if err != nil {
		return err
	}
	mutate(&row)
	if got := c.id(&row); got != localID {
		return fmt.Errorf("fitstore: local id is immutable (%s -> %s)", localID, got)
	}
	if err := c.normalize(&row); err != nil {
		return err
	}
	assigns := make([]string, 0, len(c.columns)-1)
	for _, col := range c.columns[1:] {
		assigns = append(assigns, col+" = ?")
	}
	query := "UPDATE " + c.name + " SET " + strings.Join(assigns, ", ") + " WHERE local_id = ?"
	args := append(c.args(&row)[1:], localID)
	if err := c.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s.%s: %w", c.name, localID, err)
	}
	return nil
}

// Remove deletes a row by local id. Removing an absent row is not an error;
// deletion is idempotent from the caller's perspective.
func (c *Collection[T]) Remove(ctx context.Context, localID string) error {
	c.store.writeMu.Lock()
	err := c.exec(ctx, "DELETE FROM "+c.name+" WHERE local_id = ?", localID)
	c.store.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", c.name, err)
	}
	c.store.notify(c.name)
	return nil
}

// BulkUpsert inserts or replaces a batch of rows in one transaction.
func (c *Collection[T]) BulkUpsert(ctx context.Context, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if err := c.normalize(&rows[i]); err != nil {
			return err
		}
	}
	c.store.writeMu.Lock()
	err := c.inTx(ctx, func(exec func(query string, args ...any) error) error {
		query := c.insertSQL("INSERT OR REPLACE")
		for i := range rows {
			if err := exec(query, c.args(&rows[i])...); err != nil {
				return err
			}
		}
		return nil
	})
	c.store.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to bulk upsert into %s: %w", c.name, err)
	}
	c.store.notify(c.name)
	return nil
}

// BulkRemove deletes a batch of rows by local id in one transaction.
func (c *Collection[T]) BulkRemove(ctx context.Context, localIDs []string) error {
	if len(localIDs) == 0 {
		return nil
	}
	c.store.writeMu.Lock()
	err := c.inTx(ctx, func(exec func(query string, args ...any) error) error {
		for _, id := range localIDs {
			if err := exec("DELETE FROM "+c.name+" WHERE local_id = ?", id); err != nil {
				return err
			}
		}
		return nil
	})
	c.store.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to bulk remove from %s: %w", c.name, err)
	}
	c.store.notify(c.name)
	return nil
}

// Get loads one row by local id.
func (c *Collection[T]) Get(ctx context.Context, localID string) (T, error) {
	return c.get(ctx, localID)
}

func (c *Collection[T]) get(ctx context.Context, localID string) (T, error) {
	var zero T
	query := "SELECT " + strings.Join(c.columns, ", ") + " FROM " + c.name + " WHERE local_id = ?"
	row := c.store.db.QueryRowContext(ctx, query, localID)
	got, err := c.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("failed to load %s.%s: %w", c.name, localID, err)
	}
	return got, nil
}

// Find returns all rows matching the selector, in insertion order. An empty
// selector returns the whole collection.
func (c *Collection[T]) Find(ctx context.Context, sel Selector) ([]T, error) {
	where, args, err := compileSelector(c.name, c.colSet, sel)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + strings.Join(c.columns, ", ") + " FROM " + c.name + where + " ORDER BY rowid"
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		row, err := c.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", c.name, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", c.name, err)
	}
	return out, nil
}

// FindOne returns the first row matching the selector, or ErrNotFound.
func (c *Collection[T]) FindOne(ctx context.Context, sel Selector) (T, error) {
	var zero T
	rows, err := c.Find(ctx, sel)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// Subscribe registers a live query: fn receives the current result set
// immediately and again after every write to this collection, whether or not
// the written row matches the selector. The returned cancel function stops
// the subscription.
func (c *Collection[T]) Subscribe(sel Selector, fn func([]T)) (func(), error) {
	if _, _, err := compileSelector(c.name, c.colSet, sel); err != nil {
		return nil, err
	}
	emit := func() {
		rows, err := c.Find(context.Background(), sel)
		if err != nil {
			c.store.logger.Error("live query refresh failed", "collection", c.name, "error", err)
			return
		}
		fn(rows)
	}
	cancel := c.store.subscribe(c.name, emit)
	emit()
	return cancel, nil
}

func (c *Collection[T]) insertSQL(verb string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(c.columns)), ",")
	return verb + " INTO " + c.name + " (" + strings.Join(c.columns, ", ") + ") VALUES (" + placeholders + ")"
}

func (c *Collection[T]) exec(ctx context.Context, query string, args ...any) error {
	_, err := c.store.db.ExecContext(ctx, query, args...)
	return err
}

func (c *Collection[T]) inTx(ctx context.Context, fn func(exec func(query string, args ...any) error) error) error {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	exec := func(query string, args ...any) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}
	if err := fn(exec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
