// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VikramSGIT/FitLog-sub000/fitstore"
)

// fakeSyncServer is an in-memory stand-in for the batch sync backend: it
// assigns srv-N identifiers to created entities, bumps its epoch per
// accepted batch and rejects batches carrying an older epoch.
type fakeSyncServer struct {
	mu         sync.Mutex
	epoch      int64
	nextID     int
	requests   []BatchRequest
	epochCalls int
	delay      time.Duration
	failNext   bool

	srv *httptest.Server
}

func newFakeSyncServer(t *testing.T, epoch int64) *fakeSyncServer {
	t.Helper()
	f := &fakeSyncServer{epoch: epoch}
	mux := http.NewServeMux()
	mux.HandleFunc("/sync/epoch", f.handleEpoch)
	mux.HandleFunc("/sync/batch", f.handleBatch)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSyncServer) URL() string { return f.srv.URL }

func (f *fakeSyncServer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSyncServer) handleEpoch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.epochCalls++
	epoch := f.epoch
	f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(EpochResponse{ServerEpoch: epoch})
}

func (f *fakeSyncServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	delay := f.delay
	fail := f.failNext
	f.failNext = false
	stale := req.Epoch < f.epoch
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		http.Error(w, "induced failure", http.StatusInternalServerError)
		return
	}
	if stale {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		f.mu.Lock()
		epoch := f.epoch
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrCodeStaleEpoch, ServerEpoch: epoch})
		return
	}

	f.mu.Lock()
	mapping := IDMapping{}
	for _, op := range req.Ops {
		f.nextID++
		id := fmt.Sprintf("srv-%d", f.nextID)
		pair := IDPair{LocalID: op.LocalID, ID: id}
		switch op.Type {
		case OpCreateDay:
			mapping.Days = append(mapping.Days, pair)
		case OpCreateExercise:
			mapping.Exercises = append(mapping.Exercises, pair)
		case OpCreateSet:
			mapping.Sets = append(mapping.Sets, pair)
		case OpCreateRest:
			mapping.Rests = append(mapping.Rests, pair)
		}
	}
	f.epoch++
	epoch := f.epoch
	f.mu.Unlock()

	_ = json.NewEncoder(w).Encode(BatchResponse{
		Applied:     true,
		Mapping:     mapping,
		UpdatedAt:   time.Now(),
		ServerEpoch: epoch,
	})
}

func newTestOrchestrator(t *testing.T, store *fitstore.Store, baseURL string) *Orchestrator {
	t.Helper()
	token := func(ctx context.Context) (string, error) { return "test-token", nil }
	transport := NewTransport(baseURL, token, nil)
	cfg := &Config{Debounce: 25 * time.Millisecond, IdleAfter: 50 * time.Millisecond}
	return NewOrchestrator(store, transport, cfg, nil)
}

func seedOfflineDay(t *testing.T, store *fitstore.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Days.Insert(ctx, fitstore.Day{LocalID: "d1", UserID: "u", Date: "2025-06-01"}))
	require.NoError(t, store.Exercises.Insert(ctx, fitstore.Exercise{LocalID: "e1", DayID: "d1", CatalogID: "squat"}))
	require.NoError(t, store.Sets.Insert(ctx, fitstore.Set{LocalID: "s1", ExerciseID: "e1", Reps: 10, Weight: 20}))
}

func TestEmptyQueueReachesIdleNotSaved(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 1)
	orch := newTestOrchestrator(t, store, server.URL())

	require.NoError(t, orch.Save(context.Background(), SaveManual))
	require.Equal(t, StateIdle, orch.Status().State)
	require.Zero(t, server.requestCount(), "no network call for an empty op list")
	require.True(t, orch.Status().LastSavedAt.IsZero(), "no false saved signal")
}

func TestOfflineEditsSyncEndToEnd(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 1)
	orch := newTestOrchestrator(t, store, server.URL())
	ctx := context.Background()
	seedOfflineDay(t, store)

	require.NoError(t, orch.Save(ctx, SaveManual))
	require.Equal(t, StateSaved, orch.Status().State)
	require.Equal(t, 1, server.requestCount())

	for _, check := range []struct {
		name string
		get  func() (bool, bool)
	}{
		{"day", func() (bool, bool) { d, err := store.Days.Get(ctx, "d1"); require.NoError(t, err); return d.Synced, d.ServerID.Valid }},
		{"exercise", func() (bool, bool) { e, err := store.Exercises.Get(ctx, "e1"); require.NoError(t, err); return e.Synced, e.ServerID.Valid }},
		{"set", func() (bool, bool) { s, err := store.Sets.Get(ctx, "s1"); require.NoError(t, err); return s.Synced, s.ServerID.Valid }},
	} {
		synced, hasServerID := check.get()
		require.True(t, synced, "%s should be synced", check.name)
		require.True(t, hasServerID, "%s should carry a server id", check.name)
	}

	// Epoch bootstrap consulted the epoch endpoint once, then the batch
	// response advanced the cached value.
	epoch, ok, err := store.Epoch(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, epoch)

	// Ops arrived in dependency order under a fresh idempotency key.
	req := server.requests[0]
	require.Equal(t, []string{OpCreateDay, OpCreateExercise, OpCreateSet}, opTypes(req.Ops))
	require.NotEmpty(t, req.IdempotencyKey)
	require.Equal(t, ProtocolVersion, req.Version)

	// A second save has nothing to push.
	require.NoError(t, orch.Save(ctx, SaveManual))
	require.Equal(t, 1, server.requestCount())
}

func TestStaleEpochAdoptsAndRetriesUnchanged(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 7)
	orch := newTestOrchestrator(t, store, server.URL())
	ctx := context.Background()
	seedOfflineDay(t, store)

	// A stale cached epoch provokes a conflict.
	require.NoError(t, store.SetEpoch(ctx, 5))
	err := orch.Save(ctx, SaveManual)
	var stale *StaleEpochError
	require.ErrorAs(t, err, &stale)
	require.Equal(t, StateError, orch.Status().State)

	// The server epoch was adopted; nothing was marked synced.
	epoch, ok, err := store.Epoch(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 7, epoch)
	day, err := store.Days.Get(ctx, "d1")
	require.NoError(t, err)
	require.False(t, day.Synced)

	// The retry carries the same ops and now succeeds.
	require.NoError(t, orch.Save(ctx, SaveManual))
	require.Equal(t, 2, server.requestCount())
	require.Equal(t, opTypes(server.requests[0].Ops), opTypes(server.requests[1].Ops))
	require.NotEqual(t, server.requests[0].IdempotencyKey, server.requests[1].IdempotencyKey,
		"idempotency key is fresh per attempt")
	day, err = store.Days.Get(ctx, "d1")
	require.NoError(t, err)
	require.True(t, day.Synced)
}

func TestNetworkFailureLeavesEditsPending(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 1)
	orch := newTestOrchestrator(t, store, server.URL())
	ctx := context.Background()
	seedOfflineDay(t, store)

	server.failNext = true
	require.Error(t, orch.Save(ctx, SaveManual))
	require.Equal(t, StateError, orch.Status().State)
	require.NotEmpty(t, orch.Status().LastError)

	day, err := store.Days.Get(ctx, "d1")
	require.NoError(t, err)
	require.False(t, day.Synced, "failed sync leaves all edits intact")

	require.NoError(t, orch.Save(ctx, SaveManual))
	day, err = store.Days.Get(ctx, "d1")
	require.NoError(t, err)
	require.True(t, day.Synced)
}

func TestConcurrentSavesShareOneFlight(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 1)
	server.delay = 100 * time.Millisecond
	orch := newTestOrchestrator(t, store, server.URL())
	seedOfflineDay(t, store)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Stagger slightly so the second call lands mid-flight.
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			errs[i] = orch.Save(context.Background(), SaveManual)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 1, server.requestCount(), "exactly one batch in flight")
}

func TestDebouncedAutoSaveFires(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 1)
	orch := newTestOrchestrator(t, store, server.URL())
	seedOfflineDay(t, store)

	// A burst of triggers collapses into one cycle.
	orch.RequestAutoSave()
	orch.RequestAutoSave()
	orch.RequestAutoSave()

	require.Eventually(t, func() bool {
		return server.requestCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		day, err := store.Days.Get(context.Background(), "d1")
		return err == nil && day.Synced
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFlushAllDrainsPendingDebounce(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 1)
	orch := newTestOrchestrator(t, store, server.URL())
	ctx := context.Background()
	seedOfflineDay(t, store)

	// Unmount-style flush: no waiting out the debounce interval.
	orch.RequestAutoSave()
	require.NoError(t, orch.FlushAll(ctx))
	require.Equal(t, 1, server.requestCount())

	day, err := store.Days.Get(ctx, "d1")
	require.NoError(t, err)
	require.True(t, day.Synced)
}

func TestSavedStateReturnsToIdle(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 1)
	orch := newTestOrchestrator(t, store, server.URL())
	seedOfflineDay(t, store)

	require.NoError(t, orch.Save(context.Background(), SaveManual))
	require.Equal(t, StateSaved, orch.Status().State)

	require.Eventually(t, func() bool {
		return orch.Status().State == StateIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOnStatusChangeObservesTransitions(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 1)
	orch := newTestOrchestrator(t, store, server.URL())
	seedOfflineDay(t, store)

	var mu sync.Mutex
	var states []SaveState
	cancel := orch.OnStatusChange(func(st Status) {
		mu.Lock()
		states = append(states, st.State)
		mu.Unlock()
	})
	defer cancel()

	require.NoError(t, orch.Save(context.Background(), SaveManual))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		var sawSaving, sawSaved bool
		for _, s := range states {
			if s == StateSaving {
				sawSaving = true
			}
			if s == StateSaved {
				sawSaved = true
			}
		}
		return sawSaving && sawSaved
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFlushWithoutTransportKeepsEditsPending(t *testing.T) {
	store := newTestStore(t)
	orch := NewOrchestrator(store, nil, &Config{Debounce: time.Hour, IdleAfter: time.Hour}, nil)
	ctx := context.Background()
	seedOfflineDay(t, store)

	// A transportless session with pending edits must surface an error, not
	// crash, and every edit stays queued.
	err := orch.FlushAll(ctx)
	require.ErrorIs(t, err, ErrNoTransport)
	require.Equal(t, StateError, orch.Status().State)
	require.NotEmpty(t, orch.Status().LastError)

	day, err := store.Days.Get(ctx, "d1")
	require.NoError(t, err)
	require.False(t, day.Synced)

	_, err = orch.EnsureEpoch(ctx)
	require.ErrorIs(t, err, ErrNoTransport)
}

func TestEmptyQueueWithoutTransportIdles(t *testing.T) {
	store := newTestStore(t)
	orch := NewOrchestrator(store, nil, &Config{Debounce: time.Hour, IdleAfter: time.Hour}, nil)

	// Nothing pending: no server needed, no error.
	require.NoError(t, orch.Save(context.Background(), SaveManual))
	require.Equal(t, StateIdle, orch.Status().State)
}

func TestStatusTransitionsDeliverInOrder(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 1)
	orch := newTestOrchestrator(t, store, server.URL())
	seedOfflineDay(t, store)

	var mu sync.Mutex
	var states []SaveState
	cancel := orch.OnStatusChange(func(st Status) {
		mu.Lock()
		states = append(states, st.State)
		mu.Unlock()
	})
	defer cancel()

	require.NoError(t, orch.Save(context.Background(), SaveManual))

	indexOf := func(want SaveState) int {
		for i, s := range states {
			if s == want {
				return i
			}
		}
		return -1
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return indexOf(StateSaved) >= 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	saving, saved := indexOf(StateSaving), indexOf(StateSaved)
	require.GreaterOrEqual(t, saving, 0)
	require.Greater(t, saved, saving, "saving is delivered before saved")
}

func TestEnsureEpochBootstrapsOnce(t *testing.T) {
	store := newTestStore(t)
	server := newFakeSyncServer(t, 9)
	orch := newTestOrchestrator(t, store, server.URL())
	ctx := context.Background()

	epoch, err := orch.EnsureEpoch(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 9, epoch)

	// Second call answers from the cache.
	epoch, err = orch.EnsureEpoch(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 9, epoch)
	server.mu.Lock()
	calls := server.epochCalls
	server.mu.Unlock()
	require.Equal(t, 1, calls)
}
