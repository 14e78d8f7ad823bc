// ABOUTME: Debounced keyed draft store that writes through to a backing store
// ABOUTME: Binds a value to a key, buffers updates, and flushes after a quiet period

package draft

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opsboard/draftkeep/internal/store"
)

const (
	// DefaultDelay is the quiet period before a pending value is written.
	DefaultDelay = 500 * time.Millisecond

	// DefaultWriteTimeout bounds a single timer-driven write.
	DefaultWriteTimeout = 5 * time.Second
)

// Stats counts what a Store has done since it was created.
type Stats struct {
	Updates        uint64 `json:"updates"`
	Coalesced      uint64 `json:"coalesced"`       // updates that replaced a pending flush
	Writes         uint64 `json:"writes"`          // successful backing store writes
	WriteFailures  uint64 `json:"write_failures"`  // failed backing store writes
	Cancelled      uint64 `json:"cancelled"`       // pending flushes dropped by rebind or close
	Discarded      uint64 `json:"discarded"`       // timers that fired after losing their binding
	ReadFailures   uint64 `json:"read_failures"`   // failed backing store reads
	DecodeFailures uint64 `json:"decode_failures"` // persisted values that did not decode
	EncodeFailures uint64 `json:"encode_failures"` // values that did not encode
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Updates:        s.Updates + o.Updates,
		Coalesced:      s.Coalesced + o.Coalesced,
		Writes:         s.Writes + o.Writes,
		WriteFailures:  s.WriteFailures + o.WriteFailures,
		Cancelled:      s.Cancelled + o.Cancelled,
		Discarded:      s.Discarded + o.Discarded,
		ReadFailures:   s.ReadFailures + o.ReadFailures,
		DecodeFailures: s.DecodeFailures + o.DecodeFailures,
		EncodeFailures: s.EncodeFailures + o.EncodeFailures,
	}
}

type options struct {
	delay        time.Duration
	writeTimeout time.Duration
	clock        Clock
	codec        Codec
	logger       *slog.Logger
	onError      ErrorHandler
	bindWrite    bool
}

// Option configures a Store.
type Option func(*options)

// WithDelay sets the quiet period before a pending value is written.
func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// WithWriteTimeout bounds each timer-driven write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCodec replaces the JSON codec.
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the logger for persistence diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithErrorHandler registers a callback for swallowed persistence failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.onError = h }
}

// WithBindWrite controls whether Bind arms a write of the value it loaded.
// Enabled by default, so a bound key is persisted even if it is never edited.
func WithBindWrite(enabled bool) Option {
	return func(o *options) { o.bindWrite = enabled }
}

// pendingFlush is one armed timer together with the binding it was armed for.
type pendingFlush[T any] struct {
	timer Timer
	key   string
	value T
	gen   uint64
	bind  bool // armed by Bind rather than an update
}

// Store is a debounced keyed draft cache. It is safe for concurrent use.
type Store[T any] struct {
	mu      sync.Mutex
	backend store.Store
	opts    options

	key     string
	value   T
	gen     uint64
	pending *pendingFlush[T]
	closed  bool
	stats   Stats

	// Backend writes run without mu held. Each takes a ticket under mu and
	// waits on writeCond for its turn, so writes land in the order they
	// were started.
	writeCond    *sync.Cond
	writeTickets uint64
	writesDone   uint64
}

// New creates an unbound Store. A nil backend keeps values in memory only.
func New[T any](backend store.Store, opts ...Option) *Store[T] {
	o := options{
		delay:        DefaultDelay,
		writeTimeout: DefaultWriteTimeout,
		clock:        SystemClock,
		codec:        JSONCodec{},
		bindWrite:    true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "draft")
	if o.delay < 0 {
		o.delay = 0
	}

	s := &Store[T]{
		backend: backend,
		opts:    o,
	}
	s.writeCond = sync.NewCond(&s.mu)
	return s
}

// Bind associates the store with key and loads its persisted value.
//
// An empty key resets the value to defaultValue without touching the backing
// store. A missing, empty or undecodable record also yields defaultValue.
// Any pending flush for the previous key is cancelled. Binding the key that
// is already bound keeps the current value.
//
// The loaded value is written back under the new key after the delay, like
// any other change. A failed read arms nothing so the unreadable record is
// not overwritten with defaultValue.
func (s *Store[T]) Bind(key string, defaultValue T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" && key == s.key {
		return
	}

	s.cancelLocked()
	s.key = key
	value, readOK := s.loadLocked(key, defaultValue)
	s.value = value
	if readOK && s.opts.bindWrite {
		s.scheduleLocked(true)
	}
}

// Update replaces the in-memory value and re-arms the flush timer.
func (s *Store[T]) Update(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = value
	s.stats.Updates++
	s.scheduleLocked(false)
}

// UpdateFunc replaces the in-memory value with fn applied to the current
// value. fn runs with the store locked and must not call back into it.
func (s *Store[T]) UpdateFunc(fn func(prev T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = fn(s.value)
	s.stats.Updates++
	s.scheduleLocked(false)
}

// updateOpen is Update that refuses a closed store, so the pool never hands
// a value to a store it is retiring.
func (s *Store[T]) updateOpen(value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.value = value
	s.stats.Updates++
	s.scheduleLocked(false)
	return true
}

// Value returns the current in-memory value.
func (s *Store[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Key returns the bound key, or "" when unbound.
func (s *Store[T]) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Pending reports whether a write is waiting for its quiet period.
func (s *Store[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Stats returns a snapshot of the store's counters.
func (s *Store[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Flush writes a pending value now instead of waiting for the timer.
// Unlike timer-driven writes, the failure is returned. With nothing pending
// Flush only waits for a write already in flight.
func (s *Store[T]) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	p := s.pending
	if p == nil {
		s.waitWritesLocked()
		return nil
	}
	p.timer.Stop()
	s.pending = nil

	if perr := s.writeLocked(ctx, p.key, p.value); perr != nil {
		return perr
	}
	return nil
}

// Close cancels any pending flush and stops all further persistence. The
// pending value is dropped; call Flush first to keep it. Close waits for a
// write already in flight and is safe to call multiple times.
func (s *Store[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.cancelLocked()
	s.closed = true
	s.waitWritesLocked()
}

// closeFlush writes any pending value and closes the store in one step.
// Updates arriving while the write is in flight are refused by updateOpen.
func (s *Store[T]) closeFlush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	p := s.pending
	if p != nil {
		p.timer.Stop()
		s.pending = nil
	}
	s.closed = true
	s.gen++

	var err error
	if p != nil {
		if perr := s.writeLocked(ctx, p.key, p.value); perr != nil {
			err = perr
		}
	}
	s.waitWritesLocked()
	return err
}

// waitWritesLocked blocks until every started write has finished.
func (s *Store[T]) waitWritesLocked() {
	for s.writesDone != s.writeTickets {
		s.writeCond.Wait()
	}
}

// loadLocked reads key from the backing store, falling back to defaultValue.
// ok is false only when the read itself failed.
func (s *Store[T]) loadLocked(key string, defaultValue T) (value T, ok bool) {
	if key == "" || s.backend == nil || s.closed {
		return defaultValue, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.writeTimeout)
	defer cancel()

	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return defaultValue, true
	}
	if err != nil {
		s.stats.ReadFailures++
		s.report(&PersistError{Op: OpRead, Key: key, Err: err})
		return defaultValue, false
	}
	if raw == "" {
		return defaultValue, true
	}

	var v T
	if err := s.opts.codec.Decode(raw, &v); err != nil {
		s.stats.DecodeFailures++
		s.report(&PersistError{Op: OpDecode, Key: key, Err: err})
		return defaultValue, true
	}
	return v, true
}

// scheduleLocked arms a flush of the current value for the bound key,
// replacing any pending one.
func (s *Store[T]) scheduleLocked(fromBind bool) {
	if s.key == "" || s.backend == nil || s.closed {
		return
	}

	if s.pending != nil {
		s.pending.timer.Stop()
		if !s.pending.bind {
			s.stats.Coalesced++
		}
	}

	s.gen++
	p := &pendingFlush[T]{
		key:   s.key,
		value: s.value,
		gen:   s.gen,
		bind:  fromBind,
	}
	p.timer = s.opts.clock.AfterFunc(s.opts.delay, func() { s.fire(p) })
	s.pending = p
}

// fire runs when a timer expires. A timer that no longer owns the pending
// slot, or whose key or generation has moved on, is discarded.
func (s *Store[T]) fire(p *pendingFlush[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pending != p || s.key != p.key || s.gen != p.gen {
		s.stats.Discarded++
		return
	}
	s.pending = nil

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.writeTimeout)
	defer cancel()
	_ = s.writeLocked(ctx, p.key, p.value)
}

// cancelLocked drops the pending flush and invalidates any timer in flight.
func (s *Store[T]) cancelLocked() {
	if s.pending != nil {
		s.pending.timer.Stop()
		s.pending = nil
		s.stats.Cancelled++
	}
	s.gen++
}

// writeLocked encodes and stores value under key. It is called with mu held
// and releases it while the backing store write runs.
func (s *Store[T]) writeLocked(ctx context.Context, key string, value T) *PersistError {
	data, err := s.opts.codec.Encode(value)
	if err != nil {
		s.stats.EncodeFailures++
		perr := &PersistError{Op: OpEncode, Key: key, Err: err}
		s.report(perr)
		return perr
	}

	ticket := s.writeTickets
	s.writeTickets++
	for s.writesDone != ticket {
		s.writeCond.Wait()
	}

	s.mu.Unlock()
	err = s.backend.Set(ctx, key, data)
	s.mu.Lock()

	s.writesDone++
	s.writeCond.Broadcast()

	if err != nil {
		s.stats.WriteFailures++
		perr := &PersistError{Op: OpWrite, Key: key, Err: err}
		s.report(perr)
		return perr
	}

	s.stats.Writes++
	s.opts.logger.Debug("draft flushed", "key", key, "size", len(data))
	return nil
}

func (s *Store[T]) report(perr *PersistError) {
	s.opts.logger.Warn("draft persistence failed", "op", string(perr.Op), "key", perr.Key, "error", perr.Err)
	if s.opts.onError != nil {
		s.opts.onError(perr)
	}
}
