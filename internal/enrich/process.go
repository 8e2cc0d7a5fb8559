package enrich

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessMeta is the slow-path metadata kept for one pid.
type ProcessMeta struct {
	Name           string
	PPID           int32
	Owner          string
	CommandLine    string
	ExecutablePath string
	KernelTime     time.Duration
	UserTime       time.Duration
	CreationTime   time.Time
	ThreadCount    int32
	PrivateMemory  uint64
	IOReadBytes    uint64
	IOWriteBytes   uint64
}

// CPUTime returns kernel plus user time.
func (m ProcessMeta) CPUTime() time.Duration {
	return m.KernelTime + m.UserTime
}

// ProcessQuerier reads ProcessMeta through gopsutil. Every field is best
// effort: a field the platform refuses to report stays zero.
type ProcessQuerier struct{}

// NewProcessScheduler creates a scheduler keyed by pid backed by ProcessQuerier.
func NewProcessScheduler(opts ...Option) *Scheduler[int32, ProcessMeta] {
	return New[int32, ProcessMeta]("process", ProcessQuerier{}, opts...)
}

// Query enumerates all processes once, describing the requested pids or every
// pid when keys is empty. Present is the full live set.
func (ProcessQuerier) Query(ctx context.Context, keys []int32) (Batch[int32, ProcessMeta], error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return Batch[int32, ProcessMeta]{}, err
	}

	want := make(map[int32]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	batch := Batch[int32, ProcessMeta]{
		Entries: make(map[int32]ProcessMeta, len(keys)),
		Present: make(map[int32]struct{}, len(procs)),
	}
	for _, p := range procs {
		if ctx.Err() != nil {
			return Batch[int32, ProcessMeta]{}, ctx.Err()
		}
		batch.Present[p.Pid] = struct{}{}
		if len(want) > 0 {
			if _, ok := want[p.Pid]; !ok {
				continue
			}
		}
		batch.Entries[p.Pid] = describe(ctx, p)
	}

	return batch, nil
}

func describe(ctx context.Context, p *process.Process) ProcessMeta {
	var m ProcessMeta

	m.Name, _ = p.NameWithContext(ctx)
	m.PPID, _ = p.PpidWithContext(ctx)
	m.Owner, _ = p.UsernameWithContext(ctx)
	m.CommandLine, _ = p.CmdlineWithContext(ctx)
	m.ExecutablePath, _ = p.ExeWithContext(ctx)
	m.ThreadCount, _ = p.NumThreadsWithContext(ctx)

	if times, err := p.TimesWithContext(ctx); err == nil {
		m.KernelTime = time.Duration(times.System * float64(time.Second))
		m.UserTime = time.Duration(times.User * float64(time.Second))
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil && created > 0 {
		m.CreationTime = time.UnixMilli(created)
	}
	if info, err := p.MemoryInfoWithContext(ctx); err == nil {
		m.PrivateMemory = info.RSS
	}
	if io, err := p.IOCountersWithContext(ctx); err == nil {
		m.IOReadBytes = io.ReadBytes
		m.IOWriteBytes = io.WriteBytes
	}

	return m
}
