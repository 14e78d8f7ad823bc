// ABOUTME: Pool of per-key draft stores with LRU size limit and idle eviction
// ABOUTME: Used by the HTTP server so each open draft gets its own debounce timer

package draft

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opsboard/draftkeep/internal/store"
)

// ErrEmptyKey is returned when a pool operation is given an empty key.
var ErrEmptyKey = errors.New("draft key is required")

// nullValue is what a draft with no persisted record reads as.
var nullValue = json.RawMessage("null")

// PoolConfig configures a Pool.
type PoolConfig struct {
	Backend store.Store

	// Delay is the debounce window of every store in the pool. Zero writes
	// right after each update.
	Delay time.Duration
	// WriteTimeout bounds each backing store write. Zero means DefaultWriteTimeout.
	WriteTimeout time.Duration
	// IdleTTL closes stores not touched for this long. Zero disables idle eviction.
	IdleTTL time.Duration
	// MaxOpen caps the number of open stores. Zero means 1024.
	MaxOpen int
	// CleanupInterval is how often idle stores are swept. Zero means IdleTTL/2,
	// bounded to [1s, 1m].
	CleanupInterval time.Duration

	Clock   Clock
	Logger  *slog.Logger
	OnError ErrorHandler
}

// PoolStats describes the pool and the aggregate of every store it has held.
type PoolStats struct {
	Open      int    `json:"open"`
	Evictions uint64 `json:"evictions"`
	Drafts    Stats  `json:"drafts"`
}

type poolEntry struct {
	key      string
	store    *Store[json.RawMessage]
	lastUsed time.Time
	element  *list.Element
	ready    chan struct{} // closed once the store is bound
	gone     chan struct{} // closed once a retired store is flushed and closed
}

// Pool keeps one JSON draft store per open key. It is safe for concurrent use.
//
// mu guards only the maps and the LRU list. Binding, flushing and closing a
// store all run without it, so a slow backend stalls only the key involved.
type Pool struct {
	mu       sync.Mutex
	cfg      PoolConfig
	logger   *slog.Logger
	entries  map[string]*poolEntry
	retiring map[string]*poolEntry // detached, still being flushed
	order    *list.List            // least recently used at front
	retired  Stats
	evicted  uint64
	done     chan struct{}
	closed   bool
}

// NewPool creates a pool. When IdleTTL is set a background goroutine sweeps
// idle stores until Close.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 1024
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = min(max(cfg.IdleTTL/2, time.Second), time.Minute)
	}

	p := &Pool{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "draft-pool"),
		entries:  make(map[string]*poolEntry),
		retiring: make(map[string]*poolEntry),
		order:    list.New(),
		done:     make(chan struct{}),
	}
	if cfg.IdleTTL > 0 {
		go p.cleanup()
	}
	return p
}

// Get returns the current value for key, opening its store if needed.
// A key with no persisted record reads as JSON null.
func (p *Pool) Get(key string) (json.RawMessage, bool, error) {
	e, err := p.acquire(key)
	if err != nil {
		return nil, false, err
	}
	return e.store.Value(), e.store.Pending(), nil
}

// Put replaces the value for key. The write happens after the debounce window.
func (p *Pool) Put(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("draft %q: value is not valid JSON", key)
	}
	value = append(json.RawMessage(nil), value...)

	for {
		e, err := p.acquire(key)
		if err != nil {
			return err
		}
		if e.store.updateOpen(value) {
			return nil
		}
		// Retired between acquire and update. Wait for its flush so the
		// next store reads the latest record.
		<-e.gone
	}
}

// Flush writes key's pending value immediately. Keys that are not open have
// nothing pending and flush as a no-op.
func (p *Pool) Flush(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	e, open := p.entries[key]
	if !open {
		r, retiring := p.retiring[key]
		p.mu.Unlock()
		if retiring {
			<-r.gone
		}
		return nil
	}
	p.touchLocked(e)
	p.mu.Unlock()

	<-e.ready
	err := e.store.Flush(ctx)
	if errors.Is(err, ErrClosed) {
		// Retired meanwhile; retirement flushes it.
		<-e.gone
		return nil
	}
	return err
}

// Discard drops key's in-memory draft without writing it and deletes the
// persisted record. It returns store.ErrNotFound when the key was neither
// open nor persisted.
func (p *Pool) Discard(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	e, open := p.entries[key]
	if open {
		p.detachLocked(e)
	}
	r, retiring := p.retiring[key]
	p.mu.Unlock()

	if open {
		<-e.ready
		e.store.Close()
		p.finishRetire(e, false)
	} else if retiring {
		<-r.gone
	}

	deleter, ok := p.cfg.Backend.(store.Deleter)
	if !ok {
		if open {
			return nil
		}
		return store.ErrNotFound
	}
	err := deleter.Delete(ctx, key)
	if errors.Is(err, store.ErrNotFound) && open {
		return nil
	}
	if err != nil {
		return err
	}
	p.logger.Info("draft discarded", "key", key)
	return nil
}

// Len returns the number of open stores.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Stats returns pool counters. Stores still binding are left out until ready.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	agg := p.retired
	for _, e := range p.entries {
		select {
		case <-e.ready:
			agg = agg.Add(e.store.Stats())
		default:
		}
	}
	return PoolStats{
		Open:      len(p.entries),
		Evictions: p.evicted,
		Drafts:    agg,
	}
}

// Close flushes every open store and stops the cleanup goroutine. It is safe
// to call multiple times.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)

	var open []*poolEntry
	for p.order.Len() > 0 {
		e := p.order.Front().Value.(*poolEntry)
		p.detachLocked(e)
		open = append(open, e)
	}
	var inFlight []*poolEntry
	for _, e := range p.retiring {
		inFlight = append(inFlight, e)
	}
	p.mu.Unlock()

	var errs []error
	for _, e := range open {
		<-e.ready
		if err := e.store.closeFlush(ctx); err != nil {
			errs = append(errs, err)
		}
		p.finishRetire(e, false)
	}
	for _, e := range inFlight {
		<-e.gone
	}
	return errors.Join(errs...)
}

// acquire returns the ready entry for key, opening it if needed.
func (p *Pool) acquire(key string) (*poolEntry, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}

		if e, ok := p.entries[key]; ok {
			p.touchLocked(e)
			p.mu.Unlock()
			<-e.ready
			return e, nil
		}
		if r, ok := p.retiring[key]; ok {
			p.mu.Unlock()
			<-r.gone
			continue
		}

		var victim *poolEntry
		if len(p.entries) >= p.cfg.MaxOpen {
			victim = p.order.Front().Value.(*poolEntry)
			p.detachLocked(victim)
		}

		e := &poolEntry{
			key: key,
			store: New[json.RawMessage](p.cfg.Backend,
				WithDelay(p.cfg.Delay),
				WithWriteTimeout(p.cfg.WriteTimeout),
				WithClock(p.cfg.Clock),
				WithLogger(p.cfg.Logger),
				WithErrorHandler(p.cfg.OnError),
				WithBindWrite(false),
			),
			lastUsed: p.cfg.Clock.Now(),
			ready:    make(chan struct{}),
			gone:     make(chan struct{}),
		}
		e.element = p.order.PushBack(e)
		p.entries[key] = e
		p.mu.Unlock()

		if victim != nil {
			p.evict(victim, "capacity")
		}
		e.store.Bind(key, nullValue)
		close(e.ready)
		return e, nil
	}
}

// touchLocked marks e as most recently used.
func (p *Pool) touchLocked(e *poolEntry) {
	e.lastUsed = p.cfg.Clock.Now()
	p.order.MoveToBack(e.element)
}

// detachLocked moves e from the open set to the retiring set. Must be called
// with mu held.
func (p *Pool) detachLocked(e *poolEntry) {
	p.order.Remove(e.element)
	delete(p.entries, e.key)
	p.retiring[e.key] = e
}

// evict flushes and closes a detached entry.
func (p *Pool) evict(e *poolEntry, reason string) {
	<-e.ready

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
	defer cancel()

	if err := e.store.closeFlush(ctx); err != nil {
		p.logger.Warn("flush on eviction failed", "key", e.key, "error", err)
	}
	p.finishRetire(e, true)
	p.logger.Debug("draft store evicted", "key", e.key, "reason", reason)
}

// finishRetire records a closed entry's stats and releases waiters.
func (p *Pool) finishRetire(e *poolEntry, evicted bool) {
	p.mu.Lock()
	p.retired = p.retired.Add(e.store.Stats())
	if evicted {
		p.evicted++
	}
	if p.retiring[e.key] == e {
		delete(p.retiring, e.key)
	}
	p.mu.Unlock()
	close(e.gone)
}

// cleanup runs in a background goroutine, periodically evicting idle stores.
func (p *Pool) cleanup() {
	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.done:
			return
		}
	}
}

// evictIdle flushes and closes every store idle for longer than IdleTTL.
func (p *Pool) evictIdle() int {
	p.mu.Lock()
	if p.closed || p.cfg.IdleTTL <= 0 {
		p.mu.Unlock()
		return 0
	}

	now := p.cfg.Clock.Now()
	var idle []*poolEntry
	for p.order.Len() > 0 {
		e := p.order.Front().Value.(*poolEntry)
		if now.Sub(e.lastUsed) <= p.cfg.IdleTTL {
			break
		}
		p.detachLocked(e)
		idle = append(idle, e)
	}
	p.mu.Unlock()

	for _, e := range idle {
		p.evict(e, "idle")
	}
	return len(idle)
}
