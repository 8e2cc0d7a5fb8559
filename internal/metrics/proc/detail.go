package proc

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/monify-labs/sysmon/internal/enrich"
	"github.com/monify-labs/sysmon/internal/metrics/history"
)

// Detail statuses for processes. Services report their unit state.
const (
	StatusRunning = "Running"
	StatusStopped = "Stopped"
)

// Detail is the expanded view of one process or service.
type Detail struct {
	PID    int32
	Name   string
	Status string
	Entry  Entry

	CPUHistory    []int
	MemoryHistory []uint64
	MemoryPercent float64
	// MemoryScale is the graph ceiling, kept stable until memory moves out
	// of the [scale/4, scale*2] band.
	MemoryScale uint64

	MemoryText string
	IORead     string
	IOWrite    string
	Elapsed    string
	Parent     string

	Owner       string
	StartMode   string
	Description string
	CanStop     bool
	CanReload   bool
}

// DetailInput is everything a detail refresh needs from one tick.
type DetailInput struct {
	PID      int32
	Name     string
	Services bool
	PerCore  bool

	Entry  Entry
	Found  bool
	Parent string

	Meta    enrich.ProcessMeta
	HasMeta bool

	Service    enrich.ServiceMeta
	HasService bool

	TotalMemory uint64
	Now         time.Time
}

// DetailTracker keeps the detail record across ticks.
type DetailTracker struct {
	cores int
	cpu   *history.Series[int]
	mem   *history.Series[uint64]
	cur   Detail
	set   bool
}

// NewDetailTracker creates a tracker whose graphs hold width samples.
func NewDetailTracker(width, cores int) *DetailTracker {
	return &DetailTracker{
		cores: max(cores, 1),
		cpu:   history.NewSeries[int](width),
		mem:   history.NewSeries[uint64](width),
	}
}

// Update refreshes the record. Switching to another pid or name starts a
// fresh record.
func (t *DetailTracker) Update(in DetailInput) Detail {
	if !t.set || in.PID != t.cur.PID || in.Name != t.cur.Name {
		t.cur = Detail{PID: in.PID, Name: in.Name}
		t.cpu.Reset()
		t.mem.Reset()
		t.set = true
	}
	d := &t.cur
	d.Status = StatusStopped
	if in.Found {
		d.Status = StatusRunning
	}

	if in.Services && in.HasService {
		s := in.Service
		d.Status = s.State()
		d.Owner = s.User
		d.StartMode = s.UnitFileState
		d.Description = s.Description
		d.CanStop = s.CanStop
		d.CanReload = s.CanReload
	}

	if !in.Found {
		d.Entry = Entry{PID: in.PID, Name: in.Name}
		d.CPUHistory = t.cpu.Values()
		d.MemoryHistory = t.mem.Values()
		return *d
	}

	d.Entry = in.Entry
	cpu := in.Entry.CPUPercent
	if !in.PerCore {
		cpu *= float64(t.cores)
	}
	t.cpu.Push(int(clamp(math.Round(cpu), 0, 100)))

	mem := in.Entry.Memory
	t.mem.Push(mem)
	if in.TotalMemory > 0 {
		d.MemoryPercent = float64(mem) * 100 / float64(in.TotalMemory)
	}
	if d.MemoryScale == 0 || d.MemoryScale < mem/2 || d.MemoryScale > mem*4 {
		d.MemoryScale = mem * 2
		if in.TotalMemory > 0 {
			d.MemoryScale = min(d.MemoryScale, in.TotalMemory)
		}
	}
	d.MemoryText = humanize.IBytes(mem)

	if in.HasMeta {
		d.IORead = humanize.IBytes(in.Meta.IOReadBytes)
		d.IOWrite = humanize.IBytes(in.Meta.IOWriteBytes)
	}

	d.Elapsed = "unknown"
	if !in.Entry.StartTime.IsZero() {
		d.Elapsed = formatElapsed(in.Now.Sub(in.Entry.StartTime))
	}

	if !in.Services && d.Parent == "" {
		d.Parent = in.Parent
	}

	d.CPUHistory = t.cpu.Values()
	d.MemoryHistory = t.mem.Values()
	return *d
}

// formatElapsed renders d as "1d 02:03" past a day and "02:03:04" below.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days, secs := secs/86400, secs%86400
	h, m, s := secs/3600, secs%3600/60, secs%60
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d", days, h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
