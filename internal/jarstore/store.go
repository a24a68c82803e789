package jarstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/cookie"
	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"github.com/UnknownOlympus/cookiejar/internal/metrics"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

// DefaultDebounce is used when the store is built with a non-positive window.
const DefaultDebounce = 300 * time.Millisecond

const (
	triggerDebounce = "debounce"
	triggerExplicit = "explicit"
	triggerDrain    = "drain"
)

type timerState int

const (
	timerIdle timerState = iota
	timerPending
	timerFiring
)

// entry is the cached state of one jar.
type entry struct {
	jar *cookie.Jar

	// mu guards dirty, state, timer, gen and evicted. It is never held across I/O.
	mu      sync.Mutex
	dirty   bool
	state   timerState
	timer   *time.Timer
	gen     uint64
	evicted bool

	// writeMu serializes snapshot+write so an older snapshot never lands after a newer one.
	writeMu sync.Mutex
}

// Store owns the jars of one process, keyed by sanitized jar identifier.
// Construct it once and share it between handlers.
type Store struct {
	log      *slog.Logger
	fs       afero.Fs
	dir      string
	debounce time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	loads   singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for savedAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store that keeps one JSON document per jar in dir on fs.
func New(log *slog.Logger, fs afero.Fs, dir string, debounce time.Duration, m *metrics.Metrics, opts ...Option) *Store {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	s := &Store{
		log:      log,
		fs:       fs,
		dir:      dir,
		debounce: debounce,
		metrics:  m,
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) initLogger(opn, id string) *slog.Logger {
	return s.log.With(
		slog.String("op", opn),
		sl.Jar(id),
	)
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	return e, ok
}

// GetJar returns the jar for id, loading it from disk on first access.
// A missing or unreadable document yields an empty jar.
func (s *Store) GetJar(ctx context.Context, id string) *cookie.Jar {
	id = SanitizeID(id)
	if e, ok := s.lookup(id); ok {
		return e.jar
	}

	v, _, _ := s.loads.Do(id, func() (any, error) {
		if e, ok := s.lookup(id); ok {
			return e, nil
		}

		log := s.initLogger("Store.GetJar", id)

		hosts, err := s.readJar(id)
		source := "disk"
		if err != nil {
			log.DebugContext(ctx, "Jar not loaded from disk, starting empty", sl.Err(err))
			hosts = nil
			source = "empty"
		}

		e := &entry{jar: cookie.NewJar(hosts)}

		s.mu.Lock()
		if existing, ok := s.entries[id]; ok {
			e = existing
		} else {
			s.entries[id] = e
			s.metrics.JarsCached.Inc()
			s.metrics.JarLoads.WithLabelValues(source).Inc()
		}
		s.mu.Unlock()

		return e, nil
	})

	return v.(*entry).jar
}

// PeekJar returns the cached jar for id, or a detached copy read from disk
// when the jar is not cached. It never adds the jar to the cache.
func (s *Store) PeekJar(ctx context.Context, id string) *cookie.Jar {
	id = SanitizeID(id)
	if e, ok := s.lookup(id); ok {
		return e.jar
	}

	hosts, err := s.readJar(id)
	if err != nil {
		s.initLogger("Store.PeekJar", id).DebugContext(ctx, "Jar not readable from disk", sl.Err(err))
		hosts = nil
	}

	return cookie.NewJar(hosts)
}

// MarkDirty records that the jar for id changed and schedules a debounced write.
// Calls inside one debounce window collapse into a single write. It never blocks
// on disk I/O and is a no-op for jars that are not cached.
func (s *Store) MarkDirty(id string) {
	id = SanitizeID(id)
	e, ok := s.lookup(id)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.evicted {
		return
	}
	e.dirty = true
	if e.state == timerPending {
		return
	}

	// idle, or firing with a snapshot that may predate this mutation
	e.gen++
	gen := e.gen
	e.state = timerPending
	e.timer = time.AfterFunc(s.debounce, func() {
		s.fire(id, e, gen)
	})
}

// fire runs when a debounce timer expires.
func (s *Store) fire(id string, e *entry, gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.state != timerPending {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.state = timerFiring
	if !e.dirty {
		e.state = timerIdle
		e.mu.Unlock()
		return
	}
	e.dirty = false
	e.mu.Unlock()

	if err := s.persist(id, e, triggerDebounce); err != nil {
		s.initLogger("Store.fire", id).Warn("Debounced jar write failed", sl.Err(err))
	}

	e.mu.Lock()
	if e.gen == gen && e.state == timerFiring {
		e.state = timerIdle
	}
	e.mu.Unlock()
}

// FlushJar cancels any pending debounced write and writes the jar for id now,
// whether or not it changed. It is a no-op for jars that are not cached.
func (s *Store) FlushJar(ctx context.Context, id string) error {
	id = SanitizeID(id)
	e, ok := s.lookup(id)
	if !ok {
		return nil
	}

	s.cancel(e)

	if err := s.persist(id, e, triggerExplicit); err != nil {
		s.initLogger("Store.FlushJar", id).WarnContext(ctx, "Jar write failed", sl.Err(err))
		return err
	}

	return nil
}

// ClearJar cancels any pending write, evicts the jar for id from memory and
// deletes its document. A missing document is not an error.
func (s *Store) ClearJar(ctx context.Context, id string) {
	id = SanitizeID(id)
	log := s.initLogger("Store.ClearJar", id)

	if e, ok := s.evict(id); ok {
		// wait for an in-flight write so it cannot recreate the file
		e.writeMu.Lock()
		defer e.writeMu.Unlock()
	}

	if err := s.removeJar(id); err != nil {
		log.DebugContext(ctx, "Jar document not removed", sl.Err(err))
		return
	}
	log.InfoContext(ctx, "Jar cleared")
}

// Evict drops the jar for id from memory without touching its document.
// Unsaved changes are discarded; the next GetJar reloads from disk.
func (s *Store) Evict(id string) {
	s.evict(SanitizeID(id))
}

func (s *Store) evict(id string) (*entry, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
		s.metrics.JarsCached.Dec()
	}
	s.mu.Unlock()

	if !ok {
		return nil, false
	}

	e.mu.Lock()
	e.evicted = true
	e.mu.Unlock()
	s.cancel(e)

	return e, true
}

// Drain flushes every cached jar that has unsaved changes or a debounced write
// in progress, and returns only once those writes have finished. It is meant
// for the host application's shutdown sequence; write errors are logged and skipped.
func (s *Store) Drain(ctx context.Context) {
	s.mu.RLock()
	pending := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		pending[id] = e
	}
	s.mu.RUnlock()

	for id, e := range pending {
		if ctx.Err() != nil {
			s.log.WarnContext(ctx, "Drain interrupted", sl.Err(ctx.Err()))
			return
		}

		// a firing timer has already cleared dirty but may not have renamed yet
		e.mu.Lock()
		pendingWrite := e.dirty || e.state == timerFiring
		e.mu.Unlock()
		if !pendingWrite {
			continue
		}

		s.cancel(e)
		if err := s.persist(id, e, triggerDrain); err != nil {
			s.initLogger("Store.Drain", id).WarnContext(ctx, "Jar write failed during drain", sl.Err(err))
		}
	}
}

// Ping reports whether the storage directory can be created or reached.
func (s *Store) Ping(_ context.Context) error {
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to prepare jar directory: %w", err)
	}
	return nil
}

// cancel stops the pending timer and clears the dirty flag.
func (s *Store) cancel(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	e.state = timerIdle
	e.dirty = false
}

// persist snapshots the jar and writes it under the entry write lock.
func (s *Store) persist(id string, e *entry, trigger string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	evicted := e.evicted
	e.mu.Unlock()
	if evicted {
		return nil
	}

	start := time.Now()
	err := s.writeJar(id, e.jar.Snapshot())
	s.metrics.FlushDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.Flushes.WithLabelValues(trigger, "failure").Inc()
		return err
	}
	s.metrics.Flushes.WithLabelValues(trigger, "success").Inc()

	return nil
}
