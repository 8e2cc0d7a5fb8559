package proc

import (
	"context"
	"slices"
	"time"

	"github.com/monify-labs/sysmon/internal/enrich"
	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/internal/logger"
	"github.com/monify-labs/sysmon/internal/snapshot"
	"github.com/sirupsen/logrus"
)

// Enrichment is the part of the process enrichment scheduler the registry
// uses. *enrich.Scheduler[int32, enrich.ProcessMeta] satisfies it.
type Enrichment interface {
	Snapshot() map[int32]enrich.ProcessMeta
	Request(pid int32)
	Signal()
	Busy() bool
	Disabled() bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithStopping sets the cooperative stop check consulted between processes.
func WithStopping(stopping func() bool) RegistryOption {
	return func(r *Registry) { r.stopping = stopping }
}

// WithLogger sets the logger entry.
func WithLogger(e *logrus.Entry) RegistryOption {
	return func(r *Registry) { r.log = e }
}

// Registry owns the process entries. It is driven by the primary loop and is
// not safe for concurrent use.
type Registry struct {
	source snapshot.ProcessSource
	enrich Enrichment
	cores  int
	log    *logrus.Entry

	now      func() time.Time
	stopping func() bool

	records    map[int32]*record
	generation uint64
	lastSystem time.Duration
	primed     bool
}

// NewRegistry creates a registry. enrichment may be nil.
func NewRegistry(source snapshot.ProcessSource, enrichment Enrichment, cores int, opts ...RegistryOption) *Registry {
	r := &Registry{
		source:   source,
		enrich:   enrichment,
		cores:    max(cores, 1),
		now:      time.Now,
		stopping: func() bool { return false },
		records:  make(map[int32]*record),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.Or(r.log, "proc")
	return r
}

// Update runs one tick: enumerate, merge enrichment, refresh figures and
// drop pids that are gone. If the stop check fires mid-enumeration the sweep
// is skipped so entries not yet visited survive.
func (r *Registry) Update(ctx context.Context, perCore bool) error {
	procs, err := r.source.ListProcesses(ctx)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrProvider,
			"Process enumeration failed", "")
	}

	now := r.now()
	sysTime, err := r.source.SystemCPUTime(ctx)
	if err != nil {
		r.log.WithError(err).Debug("System cpu time unavailable")
		sysTime = r.lastSystem
	}

	s := sample{now: now, multiplier: 1, cores: r.cores}
	if r.primed {
		s.deltaSys = sysTime - r.lastSystem
	}
	if perCore {
		s.multiplier = float64(r.cores)
	}

	var meta map[int32]enrich.ProcessMeta
	canRequest := false
	if r.enrich != nil && !r.enrich.Disabled() {
		meta = r.enrich.Snapshot()
		canRequest = !r.enrich.Busy()
	}

	r.generation++
	requested := 0
	interrupted := false

	for _, p := range procs {
		if r.stopping() {
			interrupted = true
			break
		}

		m, hasMeta := meta[p.PID]
		res, hasRes := r.source.ProcessResources(ctx, p.PID)

		rec, ok := r.records[p.PID]
		if ok && hasRes && reused(rec, res) {
			ok = false
		}
		switch {
		case !ok:
			rec = &record{Entry: Entry{PID: p.PID}}
			r.records[p.PID] = rec
			setIdentity(rec, p, m, hasMeta)
		case hasMeta && !rec.enriched:
			setIdentity(rec, p, m, true)
		}

		updateVolatile(rec, p, res, hasRes, m, hasMeta, s)
		rec.seen = r.generation

		if !hasMeta && canRequest {
			r.enrich.Request(p.PID)
			requested++
		}
	}

	if !interrupted {
		for pid, rec := range r.records {
			if rec.seen != r.generation {
				delete(r.records, pid)
			}
		}
	}

	for _, rec := range r.records {
		if !rec.ownerFinal {
			r.resolveOwner(rec)
		}
	}

	if requested > 0 {
		r.enrich.Signal()
	}

	r.lastSystem = sysTime
	r.primed = true
	return nil
}

// resolveOwner falls back to the nearest ancestor with a known owner. Without
// one, the whole chain shares the placeholder of its topmost known ancestor:
// SystemOwner for low pids, else UnknownOwner. Only an inherited owner is
// final; placeholders are retried on later ticks.
func (r *Registry) resolveOwner(rec *record) {
	top := rec.PID
	seen := map[int32]bool{rec.PID: true}
	for ppid := rec.PPID; !seen[ppid]; {
		parent, ok := r.records[ppid]
		if !ok {
			break
		}
		if parent.ownerFinal {
			rec.Owner = parent.Owner
			rec.ownerFinal = true
			return
		}
		top = parent.PID
		seen[ppid] = true
		ppid = parent.PPID
	}

	if top < LowPIDThreshold {
		rec.Owner = SystemOwner
	} else {
		rec.Owner = UnknownOwner
	}
}

// Entries returns copies of all entries ordered by pid.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Entry)
	}
	slices.SortFunc(out, func(a, b Entry) int { return int(a.PID) - int(b.PID) })
	return out
}

// Get returns a copy of the entry for pid.
func (r *Registry) Get(pid int32) (Entry, bool) {
	rec, ok := r.records[pid]
	if !ok {
		return Entry{}, false
	}
	return rec.Entry, true
}

// Len returns the number of tracked processes.
func (r *Registry) Len() int { return len(r.records) }

// Toggle flips the collapsed flag of pid and reports whether pid exists.
func (r *Registry) Toggle(pid int32) bool {
	rec, ok := r.records[pid]
	if ok {
		rec.Collapsed = !rec.Collapsed
	}
	return ok
}

// Collapse marks pid collapsed. Collapsing twice is a no-op.
func (r *Registry) Collapse(pid int32) bool {
	rec, ok := r.records[pid]
	if ok {
		rec.Collapsed = true
	}
	return ok
}

// Expand clears the collapsed flag of pid.
func (r *Registry) Expand(pid int32) bool {
	rec, ok := r.records[pid]
	if ok {
		rec.Collapsed = false
	}
	return ok
}
