// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VikramSGIT/FitLog-sub000/fitstore"
)

// ErrNoTransport reports a sync attempt on a client configured without a
// server endpoint (pure-offline session). Edits stay queued locally.
var ErrNoTransport = errors.New("fitsync: no transport configured")

// SaveState is the user-visible phase of the sync cycle.
type SaveState string

const (
	StateIdle   SaveState = "idle"
	StateSaving SaveState = "saving"
	StateSaved  SaveState = "saved"
	StateError  SaveState = "error"
)

// SaveMode distinguishes debounced auto-saves from user-triggered saves.
// The two modes share identical queue semantics; the mode only feeds UI
// feedback.
type SaveMode string

const (
	SaveAuto   SaveMode = "auto"
	SaveManual SaveMode = "manual"
)

// Status is a snapshot of the orchestrator state for the UI.
type Status struct {
	State       SaveState
	Mode        SaveMode
	LastSavedAt time.Time
	LastError   string
}

// Config holds orchestrator timing knobs.
type Config struct {
	Debounce  time.Duration // quiet period before an auto-save fires
	IdleAfter time.Duration // how long saved/error is shown before idle
}

// DefaultConfig returns timing defaults suitable for interactive editing.
func DefaultConfig() *Config {
	return &Config{
		Debounce:  2 * time.Second,
		IdleAfter: 3 * time.Second,
	}
}

// Orchestrator drives the end-to-end sync cycle: gather pending state, build
// one ordered batch, send it, reconcile the response and advance the epoch.
// At most one cycle is in flight at a time; a save requested while one is
// running joins it instead of starting a second network call.
type Orchestrator struct {
	store      *fitstore.Store
	transport  *Transport
	reconciler *Reconciler
	logger     *slog.Logger
	cfg        *Config

	debounce *debouncer

	mu           sync.Mutex
	status       Status
	inflight     bool
	pendingAuto  bool
	waiters      []chan error
	listeners    map[int]func(Status)
	nextListener int
	idleTimer    *time.Timer

	// notifyMu guards the FIFO listener-notification queue. Transitions are
	// delivered in order from one drain goroutine so a listener never
	// observes saved before saving.
	notifyMu    sync.Mutex
	notifyQueue []notification
	notifying   bool
}

type notification struct {
	status Status
	fns    []func(Status)
}

func NewOrchestrator(store *fitstore.Store, transport *Transport, cfg *Config, logger *slog.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:      store,
		transport:  transport,
		reconciler: NewReconciler(store, logger),
		logger:     logger,
		cfg:        cfg,
		status:     Status{State: StateIdle},
		listeners:  make(map[int]func(Status)),
	}
	o.debounce = newDebouncer(cfg.Debounce, o.autoFire)
	return o
}

// Status returns the current save-state snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// OnStatusChange registers a listener for save-state transitions and returns
// a cancel function. The listener also receives the current status.
func (o *Orchestrator) OnStatusChange(fn func(Status)) func() {
	o.mu.Lock()
	o.nextListener++
	id := o.nextListener
	o.listeners[id] = fn
	current := o.status
	o.mu.Unlock()
	fn(current)
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// RequestAutoSave schedules a debounced auto-save. Bursts of edits collapse
// into one cycle; an edit arriving while a cycle is in flight schedules the
// next one instead of racing it.
func (o *Orchestrator) RequestAutoSave() {
	o.debounce.Trigger()
}

// SaveNow runs a manual save immediately, joining the in-flight cycle if one
// is running.
func (o *Orchestrator) SaveNow(ctx context.Context) error {
	o.debounce.Stop()
	return o.Save(ctx, SaveManual)
}

// FlushAll cancels any pending debounce and synchronously drains unsaved
// edits. Callers invoke it on unmount/navigation so no edit is silently
// dropped; an empty queue is not an error.
func (o *Orchestrator) FlushAll(ctx context.Context) error {
	o.debounce.Stop()
	return o.Save(ctx, SaveAuto)
}

// EnsureEpoch makes sure an epoch baseline is cached, consulting the epoch
// endpoint once at session start when the local cache is empty.
func (o *Orchestrator) EnsureEpoch(ctx context.Context) (int64, error) {
	epoch, ok, err := o.store.Epoch(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return epoch, nil
	}
	if o.transport == nil {
		return 0, ErrNoTransport
	}
	epoch, err = o.transport.FetchEpoch(ctx)
	if err != nil {
		return 0, err
	}
	if err := o.store.SetEpoch(ctx, epoch); err != nil {
		return 0, err
	}
	o.logger.Debug("bootstrapped epoch from server", "epoch", epoch)
	return epoch, nil
}

// Save runs one sync cycle, or joins the in-flight one. Exactly one network
// batch is in flight at any instant; every caller observes the outcome of
// the cycle that covered its edits.
func (o *Orchestrator) Save(ctx context.Context, mode SaveMode) error {
	o.mu.Lock()
	if o.inflight {
		ch := make(chan error, 1)
		o.waiters = append(o.waiters, ch)
		o.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	o.inflight = true
	o.setStatusLocked(StateSaving, mode, nil)
	o.mu.Unlock()

	err := o.runCycle(ctx, mode)

	o.mu.Lock()
	o.inflight = false
	waiters := o.waiters
	o.waiters = nil
	retrigger := o.pendingAuto
	o.pendingAuto = false
	o.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
	if retrigger {
		o.debounce.Trigger()
	}
	return err
}

func (o *Orchestrator) autoFire() {
	o.mu.Lock()
	if o.inflight {
		// Coalesce: the running cycle may miss edits made after its gather,
		// so schedule the next one rather than racing it.
		o.pendingAuto = true
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	if err := o.Save(context.Background(), SaveAuto); err != nil {
		o.logger.Warn("auto-save failed", "error", err)
	}
}

func (o *Orchestrator) runCycle(ctx context.Context, mode SaveMode) error {
	pending, err := Gather(ctx, o.store)
	if err != nil {
		return o.fail(mode, err)
	}
	batch, err := BuildBatch(pending)
	if err != nil {
		return o.fail(mode, err)
	}
	if batch.Empty() {
		// Nothing to push: no network call, and no false "saved" signal.
		o.transition(StateIdle, mode, nil, false)
		return nil
	}
	if o.transport == nil {
		// Pure-offline session with pending edits: report error, keep
		// everything queued for when a server is configured.
		return o.fail(mode, ErrNoTransport)
	}

	epoch, err := o.EnsureEpoch(ctx)
	if err != nil {
		return o.fail(mode, err)
	}

	req := &BatchRequest{
		Version:        ProtocolVersion,
		IdempotencyKey: uuid.NewString(),
		Epoch:          epoch,
		Ops:            batch.Ops,
	}
	o.logger.Debug("sending batch", "ops", len(req.Ops), "epoch", epoch, "mode", mode)

	resp, err := o.transport.SendBatch(ctx, req)
	if err != nil {
		var stale *StaleEpochError
		if errors.As(err, &stale) {
			// Adopt the server epoch so the retry carries a correct baseline;
			// every pending row stays queued for the next trigger.
			if adoptErr := o.reconciler.AdoptEpoch(ctx, stale.ServerEpoch); adoptErr != nil {
				return o.fail(mode, adoptErr)
			}
		}
		return o.fail(mode, err)
	}

	if err := o.reconciler.Apply(ctx, batch, resp); err != nil {
		return o.fail(mode, err)
	}

	o.transition(StateSaved, mode, nil, true)
	return nil
}

func (o *Orchestrator) fail(mode SaveMode, err error) error {
	o.logger.Warn("sync cycle failed", "mode", mode, "error", err)
	o.transition(StateError, mode, err, true)
	return err
}

// transition updates the status, notifies listeners outside the lock, and
// arms the timeout that returns saved/error back to idle.
func (o *Orchestrator) transition(state SaveState, mode SaveMode, err error, scheduleIdle bool) {
	o.mu.Lock()
	o.setStatusLocked(state, mode, err)
	if scheduleIdle {
		if o.idleTimer != nil {
			o.idleTimer.Stop()
		}
		o.idleTimer = time.AfterFunc(o.cfg.IdleAfter, o.resetToIdle)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) resetToIdle() {
	o.mu.Lock()
	if !o.inflight && (o.status.State == StateSaved || o.status.State == StateError) {
		o.setStatusLocked(StateIdle, o.status.Mode, nil)
	}
	o.mu.Unlock()
}

// setStatusLocked mutates the status and queues the snapshot for listener
// delivery. Delivery happens off the orchestrator lock so a listener can
// call back into the orchestrator.
func (o *Orchestrator) setStatusLocked(state SaveState, mode SaveMode, err error) {
	o.status.State = state
	o.status.Mode = mode
	switch {
	case err != nil:
		o.status.LastError = err.Error()
	case state == StateSaved:
		o.status.LastSavedAt = time.Now()
		o.status.LastError = ""
	}
	if len(o.listeners) == 0 {
		return
	}
	snapshot := o.status
	fns := make([]func(Status), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.notifyMu.Lock()
	o.notifyQueue = append(o.notifyQueue, notification{status: snapshot, fns: fns})
	if !o.notifying {
		o.notifying = true
		go o.drainNotifications()
	}
	o.notifyMu.Unlock()
}

func (o *Orchestrator) drainNotifications() {
	for {
		o.notifyMu.Lock()
		if len(o.notifyQueue) == 0 {
			o.notifying = false
			o.notifyMu.Unlock()
			return
		}
		next := o.notifyQueue[0]
		o.notifyQueue = o.notifyQueue[1:]
		o.notifyMu.Unlock()
		for _, fn := range next.fns {
			fn(next.status)
		}
	}
}
