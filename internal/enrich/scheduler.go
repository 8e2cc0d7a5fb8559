// Package enrich runs background workers that keep slow-to-query metadata
// cached for the primary collection loop.
package enrich

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultWaitTimeout bounds each idle wait of the worker so shutdown and
	// the periodic fallback are noticed promptly.
	DefaultWaitTimeout = 100 * time.Millisecond

	// DefaultFallbackCycles is the number of signal-less waits after which a
	// worker in track-all mode refreshes on its own.
	DefaultFallbackCycles = 50
)

// Batch is the result of one query. Entries holds fresh metadata for the
// queried keys. Present, when non-nil, is every key still alive at the source;
// cached entries missing from it are dropped. A nil Present keeps them.
type Batch[K comparable, V any] struct {
	Entries map[K]V
	Present map[K]struct{}
}

// Querier performs the expensive lookup. An empty keys slice asks for a full
// refresh. Any error is treated as unrecoverable.
type Querier[K comparable, V any] interface {
	Query(ctx context.Context, keys []K) (Batch[K, V], error)
}

// QuerierFunc adapts a function to Querier.
type QuerierFunc[K comparable, V any] func(ctx context.Context, keys []K) (Batch[K, V], error)

func (f QuerierFunc[K, V]) Query(ctx context.Context, keys []K) (Batch[K, V], error) {
	return f(ctx, keys)
}

// Status summarizes a scheduler for reporting.
type Status struct {
	Name         string
	Disabled     bool
	Busy         bool
	Entries      int
	Cycles       uint64
	LastCycle    time.Time
	LastDuration time.Duration
	Err          error
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	log            *logrus.Entry
	waitTimeout    time.Duration
	fallbackCycles int
}

// WithLogger sets the logger entry used by the worker.
func WithLogger(e *logrus.Entry) Option {
	return func(o *options) { o.log = e }
}

// WithWaitTimeout overrides DefaultWaitTimeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

// WithFallbackCycles overrides DefaultFallbackCycles.
func WithFallbackCycles(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.fallbackCycles = n
		}
	}
}

// Scheduler owns one enrichment cache and the worker refreshing it.
//
// The cache map is never mutated after it is published: each cycle builds a
// new map and swaps it in under mu, so a map returned by Snapshot stays
// consistent for as long as the caller holds it.
type Scheduler[K comparable, V any] struct {
	name    string
	querier Querier[K, V]
	log     *logrus.Entry

	waitTimeout    time.Duration
	fallbackCycles int

	// wake is the single-slot signal; a pending signal survives until consumed.
	wake chan struct{}

	mu           sync.Mutex
	pending      map[K]struct{}
	cache        map[K]V
	cycleDone    chan struct{}
	cycles       uint64
	lastCycle    time.Time
	lastDuration time.Duration
	err          error

	trackAll atomic.Bool
	busy     atomic.Bool
	disabled atomic.Bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. It does nothing until Start or RunOnce is called.
func New[K comparable, V any](name string, querier Querier[K, V], opts ...Option) *Scheduler[K, V] {
	o := options{
		waitTimeout:    DefaultWaitTimeout,
		fallbackCycles: DefaultFallbackCycles,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Scheduler[K, V]{
		name:           name,
		querier:        querier,
		log:            logger.Or(o.log, "enrich").WithField("subsystem", name),
		waitTimeout:    o.waitTimeout,
		fallbackCycles: o.fallbackCycles,
		wake:           make(chan struct{}, 1),
		pending:        make(map[K]struct{}),
		cache:          make(map[K]V),
		cycleDone:      make(chan struct{}),
	}
}

// Request queues key for the next cycle. Duplicate requests collapse.
func (s *Scheduler[K, V]) Request(key K) {
	if s.disabled.Load() {
		return
	}
	s.mu.Lock()
	s.pending[key] = struct{}{}
	s.mu.Unlock()
}

// Pending returns the number of distinct keys waiting for the next cycle.
func (s *Scheduler[K, V]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Signal wakes the worker without blocking.
func (s *Scheduler[K, V]) Signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Wait consumes a pending signal, waiting at most timeout for one.
func (s *Scheduler[K, V]) Wait(timeout time.Duration) bool {
	return s.wait(context.Background(), timeout)
}

func (s *Scheduler[K, V]) wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.wake:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Snapshot returns the current cache. The map must not be modified.
func (s *Scheduler[K, V]) Snapshot() map[K]V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache
}

// Get looks up one key in the current cache.
func (s *Scheduler[K, V]) Get(key K) (V, bool) {
	v, ok := s.Snapshot()[key]
	return v, ok
}

// SetTrackAll turns the periodic full refresh on or off.
func (s *Scheduler[K, V]) SetTrackAll(on bool) { s.trackAll.Store(on) }

// Busy reports whether a query cycle is in flight.
func (s *Scheduler[K, V]) Busy() bool { return s.busy.Load() }

// Disabled reports whether the scheduler gave up after a failed query.
// Once set it stays set.
func (s *Scheduler[K, V]) Disabled() bool { return s.disabled.Load() }

// Err returns the error that disabled the scheduler, if any.
func (s *Scheduler[K, V]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Status returns a point-in-time summary.
func (s *Scheduler[K, V]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Name:         s.name,
		Disabled:     s.disabled.Load(),
		Busy:         s.busy.Load(),
		Entries:      len(s.cache),
		Cycles:       s.cycles,
		LastCycle:    s.lastCycle,
		LastDuration: s.lastDuration,
		Err:          s.err,
	}
}

// AwaitCycle blocks until the next cycle completes or timeout elapses. It
// reports whether a cycle completed and the scheduler is still enabled.
func (s *Scheduler[K, V]) AwaitCycle(timeout time.Duration) bool {
	if s.disabled.Load() {
		return false
	}

	s.mu.Lock()
	done := s.cycleDone
	s.mu.Unlock()

	return s.awaitDone(done, timeout)
}

// Prime wakes the worker and waits at most timeout for the cycle it starts.
func (s *Scheduler[K, V]) Prime(timeout time.Duration) bool {
	if s.disabled.Load() {
		return false
	}

	s.mu.Lock()
	done := s.cycleDone
	s.mu.Unlock()

	s.Signal()
	return s.awaitDone(done, timeout)
}

func (s *Scheduler[K, V]) awaitDone(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return !s.disabled.Load()
	case <-timer.C:
		return false
	}
}

// RunOnce drains the pending keys, queries them and publishes a new cache.
// The lock is never held while the querier runs. A failed query disables the
// scheduler for good.
func (s *Scheduler[K, V]) RunOnce(ctx context.Context) error {
	if s.disabled.Load() {
		return s.Err()
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.busy.Store(true)
	defer s.busy.Store(false)

	s.mu.Lock()
	keys := make([]K, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	s.pending = make(map[K]struct{})
	s.mu.Unlock()

	start := time.Now()
	batch, err := s.querier.Query(ctx, keys)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = errors.WrapWithCode(err, errors.ErrEnrich,
			"Enrichment query failed: "+s.name, "")
		s.disable(err)
		return err
	}

	s.mu.Lock()
	old := s.cache
	s.mu.Unlock()

	next := make(map[K]V, len(old)+len(batch.Entries))
	for k, v := range old {
		if batch.Present != nil {
			if _, alive := batch.Present[k]; !alive {
				continue
			}
		}
		next[k] = v
	}
	for k, v := range batch.Entries {
		next[k] = v
	}

	s.mu.Lock()
	s.cache = next
	s.cycles++
	s.lastCycle = time.Now()
	s.lastDuration = s.lastCycle.Sub(start)
	done := s.cycleDone
	s.cycleDone = make(chan struct{})
	s.mu.Unlock()

	close(done)
	return nil
}

// Start launches the worker. It is a no-op if the worker is running or the
// scheduler is disabled.
func (s *Scheduler[K, V]) Start(ctx context.Context) {
	if s.disabled.Load() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop cancels the worker and waits for it to exit.
func (s *Scheduler[K, V]) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler[K, V]) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	idle := 0
	for ctx.Err() == nil {
		if !s.wait(ctx, s.waitTimeout) {
			if ctx.Err() != nil {
				return
			}
			if !s.trackAll.Load() {
				idle = 0
				continue
			}
			idle++
			if idle < s.fallbackCycles {
				continue
			}
		}
		idle = 0

		if err := s.RunOnce(ctx); err != nil {
			return
		}
	}
}

func (s *Scheduler[K, V]) disable(err error) {
	s.mu.Lock()
	s.err = err
	done := s.cycleDone
	s.cycleDone = make(chan struct{})
	s.pending = make(map[K]struct{})
	s.mu.Unlock()

	s.disabled.Store(true)
	close(done)

	s.log.WithError(err).Error("Enrichment disabled")
}
