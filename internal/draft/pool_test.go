// ABOUTME: Tests for the per-key draft store pool
// ABOUTME: Covers hydration, debounced puts, LRU and idle eviction, discard and close

package draft

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/draftkeep/internal/store"
)

func newTestPool(t *testing.T, backend store.Store, cfg PoolConfig) (*Pool, *manualClock) {
	t.Helper()
	clock := newManualClock()
	cfg.Backend = backend
	cfg.Clock = clock
	if cfg.Delay == 0 {
		cfg.Delay = testDelay
	}
	// Sweeps are driven by the tests through evictIdle.
	cfg.CleanupInterval = time.Hour
	p := NewPool(cfg)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, clock
}

func TestPool_GetAbsentIsNull(t *testing.T) {
	backend := store.NewMemoryStore()
	p, _ := newTestPool(t, backend, PoolConfig{})

	v, pending, err := p.Get("draft:report:1")
	require.NoError(t, err)

	assert.Equal(t, "null", string(v))
	assert.False(t, pending)
	assert.Equal(t, 1, p.Len())
	assert.Empty(t, backend.Writes())
}

func TestPool_GetHydratesFromBackend(t *testing.T) {
	backend := store.NewMemoryStore()
	backend.Put("draft:report:1", `{"liters":40}`)
	p, _ := newTestPool(t, backend, PoolConfig{})

	v, _, err := p.Get("draft:report:1")
	require.NoError(t, err)

	assert.JSONEq(t, `{"liters":40}`, string(v))
}

func TestPool_PutIsDebounced(t *testing.T) {
	backend := store.NewMemoryStore()
	p, clock := newTestPool(t, backend, PoolConfig{})

	require.NoError(t, p.Put("draft:report:1", json.RawMessage(`{"liters":1}`)))
	require.NoError(t, p.Put("draft:report:1", json.RawMessage(`{"liters":2}`)))

	v, pending, err := p.Get("draft:report:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"liters":2}`, string(v))
	assert.True(t, pending)
	assert.Empty(t, backend.Writes())

	clock.Advance(testDelay)

	assert.Equal(t, []string{`{"liters":2}`}, backend.WritesFor("draft:report:1"))
}

func TestPool_PutCopiesValue(t *testing.T) {
	backend := store.NewMemoryStore()
	p, _ := newTestPool(t, backend, PoolConfig{})

	buf := []byte(`{"a":1}`)
	require.NoError(t, p.Put("k", buf))
	copy(buf, `{"a":9}`)

	v, _, err := p.Get("k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(v))
}

func TestPool_PutRejectsInvalidJSON(t *testing.T) {
	p, _ := newTestPool(t, store.NewMemoryStore(), PoolConfig{})

	err := p.Put("k", json.RawMessage(`{"a":`))

	require.Error(t, err)
	assert.Equal(t, 0, p.Len())
}

func TestPool_EmptyKey(t *testing.T) {
	p, _ := newTestPool(t, store.NewMemoryStore(), PoolConfig{})
	ctx := context.Background()

	_, _, err := p.Get("")
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.ErrorIs(t, p.Put("", json.RawMessage(`1`)), ErrEmptyKey)
	assert.ErrorIs(t, p.Flush(ctx, ""), ErrEmptyKey)
	assert.ErrorIs(t, p.Discard(ctx, ""), ErrEmptyKey)
}

func TestPool_Flush(t *testing.T) {
	backend := store.NewMemoryStore()
	p, clock := newTestPool(t, backend, PoolConfig{})
	ctx := context.Background()

	require.NoError(t, p.Put("k", json.RawMessage(`[1,2]`)))
	require.NoError(t, p.Flush(ctx, "k"))
	assert.Equal(t, []string{`[1,2]`}, backend.WritesFor("k"))

	clock.Advance(testDelay)
	assert.Len(t, backend.Writes(), 1)

	require.NoError(t, p.Flush(ctx, "never-opened"))
	assert.Equal(t, 1, p.Len())
}

func TestPool_FlushReturnsWriteError(t *testing.T) {
	backend := store.NewMemoryStore()
	boom := errors.New("read-only database")
	p, _ := newTestPool(t, backend, PoolConfig{})

	require.NoError(t, p.Put("k", json.RawMessage(`1`)))
	backend.FailSets(boom)

	assert.ErrorIs(t, p.Flush(context.Background(), "k"), boom)
}

func TestPool_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	backend := store.NewMemoryStore()
	p, _ := newTestPool(t, backend, PoolConfig{MaxOpen: 2})

	require.NoError(t, p.Put("a", json.RawMessage(`"a"`)))
	require.NoError(t, p.Put("b", json.RawMessage(`"b"`)))
	_, _, err := p.Get("a")
	require.NoError(t, err)

	_, _, err = p.Get("c")
	require.NoError(t, err)

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []store.Write{{Key: "b", Value: `"b"`}}, backend.Writes(), "evicted store is flushed first")

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Open)
}

func TestPool_EvictIdle(t *testing.T) {
	backend := store.NewMemoryStore()
	p, clock := newTestPool(t, backend, PoolConfig{IdleTTL: time.Minute})

	require.NoError(t, p.Put("a", json.RawMessage(`1`)))
	clock.Advance(30 * time.Second)
	_, _, err := p.Get("b")
	require.NoError(t, err)
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, p.evictIdle())
	assert.Equal(t, 1, p.Len())

	_, pending, err := p.Get("b")
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, []string{`1`}, backend.WritesFor("a"))
}

func TestPool_EvictIdleFlushesPending(t *testing.T) {
	backend := store.NewMemoryStore()
	p, clock := newTestPool(t, backend, PoolConfig{IdleTTL: time.Minute, Delay: time.Hour})

	require.NoError(t, p.Put("a", json.RawMessage(`{"n":3}`)))
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, p.evictIdle())
	assert.Equal(t, []string{`{"n":3}`}, backend.WritesFor("a"))
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0, clock.Armed())
}

func TestPool_Discard(t *testing.T) {
	backend := store.NewMemoryStore()
	p, clock := newTestPool(t, backend, PoolConfig{})
	ctx := context.Background()

	require.NoError(t, p.Put("k", json.RawMessage(`1`)))
	clock.Advance(testDelay)
	require.NoError(t, p.Put("k", json.RawMessage(`2`)))

	require.NoError(t, p.Discard(ctx, "k"))
	clock.Advance(testDelay)

	_, err := backend.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{`1`}, backend.WritesFor("k"), "pending value is dropped")
	assert.Equal(t, 0, p.Len())
}

func TestPool_DiscardUnpersistedOpenKey(t *testing.T) {
	backend := store.NewMemoryStore()
	p, clock := newTestPool(t, backend, PoolConfig{})

	require.NoError(t, p.Put("k", json.RawMessage(`1`)))
	require.NoError(t, p.Discard(context.Background(), "k"))
	clock.Advance(testDelay)

	assert.Empty(t, backend.Writes())
}

func TestPool_DiscardUnknownKey(t *testing.T) {
	p, _ := newTestPool(t, store.NewMemoryStore(), PoolConfig{})

	err := p.Discard(context.Background(), "missing")

	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPool_CloseFlushesAndIsIdempotent(t *testing.T) {
	backend := store.NewMemoryStore()
	p, clock := newTestPool(t, backend, PoolConfig{})
	ctx := context.Background()

	require.NoError(t, p.Put("a", json.RawMessage(`1`)))
	require.NoError(t, p.Put("b", json.RawMessage(`2`)))

	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx))
	clock.Advance(testDelay)

	assert.ElementsMatch(t, []store.Write{{Key: "a", Value: `1`}, {Key: "b", Value: `2`}}, backend.Writes())
	assert.Equal(t, 0, p.Len())

	_, _, err := p.Get("a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Put("a", json.RawMessage(`1`)), ErrClosed)
	assert.ErrorIs(t, p.Flush(ctx, "a"), ErrClosed)
	assert.ErrorIs(t, p.Discard(ctx, "a"), ErrClosed)
}

func TestPool_CloseJoinsFlushErrors(t *testing.T) {
	backend := store.NewMemoryStore()
	p, _ := newTestPool(t, backend, PoolConfig{})

	require.NoError(t, p.Put("a", json.RawMessage(`1`)))
	require.NoError(t, p.Put("b", json.RawMessage(`2`)))
	boom := errors.New("disk full")
	backend.FailSets(boom)

	err := p.Close(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Len())
}

func TestPool_StatsAggregateRetiredStores(t *testing.T) {
	backend := store.NewMemoryStore()
	p, clock := newTestPool(t, backend, PoolConfig{MaxOpen: 1})

	require.NoError(t, p.Put("a", json.RawMessage(`1`)))
	clock.Advance(testDelay)
	require.NoError(t, p.Put("b", json.RawMessage(`2`)))
	clock.Advance(testDelay)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, uint64(2), stats.Drafts.Updates)
	assert.Equal(t, uint64(2), stats.Drafts.Writes)
}

func TestPool_OnErrorReceivesFailures(t *testing.T) {
	backend := store.NewMemoryStore()
	backend.FailSets(errors.New("quota exceeded"))
	rec := &errorRecorder{}
	p, clock := newTestPool(t, backend, PoolConfig{OnError: rec.handle})

	require.NoError(t, p.Put("a", json.RawMessage(`1`)))
	clock.Advance(testDelay)

	assert.Equal(t, []Op{OpWrite}, rec.ops())
	assert.Equal(t, uint64(1), p.Stats().Drafts.WriteFailures)
}

func TestPool_SlowFlushDoesNotBlockOtherKeys(t *testing.T) {
	backend := newBlockingBackend()
	p, _ := newTestPool(t, backend, PoolConfig{})
	t.Cleanup(backend.unblock)
	ctx := context.Background()

	require.NoError(t, p.Put("a", json.RawMessage(`1`)))
	flushed := make(chan error, 1)
	go func() { flushed <- p.Flush(ctx, "a") }()
	require.Equal(t, "a", <-backend.entered)

	done := make(chan error, 1)
	go func() {
		if err := p.Put("b", json.RawMessage(`2`)); err != nil {
			done <- err
			return
		}
		_, _, err := p.Get("a")
		if err == nil {
			_ = p.Stats()
		}
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pool blocked by a write for another key")
	}

	backend.unblock()
	require.NoError(t, <-flushed)
	assert.Equal(t, []string{`1`}, backend.WritesFor("a"))
}

func TestPool_PutDuringSlowEvictionReadsFlushedValue(t *testing.T) {
	backend := newBlockingBackend()
	p, _ := newTestPool(t, backend, PoolConfig{MaxOpen: 1})
	t.Cleanup(backend.unblock)

	require.NoError(t, p.Put("a", json.RawMessage(`{"v":1}`)))
	evicted := make(chan error, 1)
	go func() {
		_, _, err := p.Get("b")
		evicted <- err
	}()
	require.Equal(t, "a", <-backend.entered)

	got := make(chan json.RawMessage, 1)
	go func() {
		v, _, _ := p.Get("a")
		got <- v
	}()
	select {
	case v := <-got:
		t.Fatalf("reopened a before its eviction flush finished: %s", v)
	case <-time.After(20 * time.Millisecond):
	}

	backend.unblock()
	require.NoError(t, <-evicted)
	assert.JSONEq(t, `{"v":1}`, string(<-got))
}
