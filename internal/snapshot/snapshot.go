// Package snapshot defines the cheap, synchronous OS queries the engine runs
// every tick, and a gopsutil-backed implementation of them.
package snapshot

import (
	"context"
	"time"
)

// Process is one row of the process enumeration. Owner may be empty when the
// platform could not resolve it cheaply.
type Process struct {
	PID     int32
	PPID    int32
	Name    string
	Threads int32
	Owner   string
}

// Resources are the per-process figures read for every enumerated pid.
type Resources struct {
	KernelTime time.Duration
	UserTime   time.Duration
	StartTime  time.Time
	Memory     uint64
}

// CPUTime returns kernel plus user time.
func (r Resources) CPUTime() time.Duration {
	return r.KernelTime + r.UserTime
}

// CPUTimes are cumulative seconds spent in each state, for one core or the
// whole machine.
type CPUTimes struct {
	User    float64
	Nice    float64
	System  float64
	Idle    float64
	IOWait  float64
	IRQ     float64
	SoftIRQ float64
	Steal   float64
}

// Total is the sum of every state.
func (t CPUTimes) Total() float64 {
	return t.User + t.Nice + t.System + t.Idle + t.IOWait + t.IRQ + t.SoftIRQ + t.Steal
}

// IdleTime is time spent doing nothing, including waiting on io.
func (t CPUTimes) IdleTime() float64 {
	return t.Idle + t.IOWait
}

// Fields returns the per-state values keyed by their display name.
func (t CPUTimes) Fields() map[string]float64 {
	return map[string]float64{
		"user":    t.User,
		"nice":    t.Nice,
		"system":  t.System,
		"idle":    t.Idle,
		"iowait":  t.IOWait,
		"irq":     t.IRQ,
		"softirq": t.SoftIRQ,
		"steal":   t.Steal,
	}
}

// Memory is a point-in-time view of physical memory in bytes.
type Memory struct {
	Total     uint64
	Used      uint64
	Available uint64
	Cached    uint64
	Free      uint64
}

// Swap is a point-in-time view of swap/page file usage in bytes.
type Swap struct {
	Total uint64
	Used  uint64
	Free  uint64
}

// Disk is one mounted filesystem with its cumulative io counters.
type Disk struct {
	Device     string
	Mountpoint string
	Fstype     string
	Total      uint64
	Used       uint64
	Free       uint64
	ReadBytes  uint64
	WriteBytes uint64
	// IOTime is cumulative milliseconds the device spent doing io.
	IOTime uint64
}

// Interface is one network interface with its cumulative byte counters.
type Interface struct {
	Name      string
	Connected bool
	IPv4      string
	IPv6      string
	RxTotal   uint64
	TxTotal   uint64
}

// ProcessSource enumerates processes and their resources.
type ProcessSource interface {
	ListProcesses(ctx context.Context) ([]Process, error)
	ProcessResources(ctx context.Context, pid int32) (Resources, bool)
	// SystemCPUTime is the cumulative cpu time of all cores together.
	SystemCPUTime(ctx context.Context) (time.Duration, error)
}

// CPUSource reads per-core cpu times and load averages.
type CPUSource interface {
	CPUTimes(ctx context.Context) ([]CPUTimes, error)
	LoadAverage(ctx context.Context) ([3]float64, error)
}

// MemorySource reads memory, swap and mounted disks.
type MemorySource interface {
	Memory(ctx context.Context) (Memory, error)
	Swap(ctx context.Context) (Swap, error)
	Disks(ctx context.Context) ([]Disk, error)
}

// NetSource lists network interfaces.
type NetSource interface {
	ListNetworkInterfaces(ctx context.Context) ([]Interface, error)
}

// Provider is the full set of primary snapshot queries.
type Provider interface {
	ProcessSource
	CPUSource
	MemorySource
	NetSource
}
