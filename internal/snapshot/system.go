package snapshot

import (
	"context"
	"net"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	gopsutilNet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// System implements Provider on top of gopsutil.
type System struct {
	mu      sync.Mutex
	handles map[int32]*process.Process
}

// NewSystem creates a gopsutil-backed provider.
func NewSystem() *System {
	return &System{
		handles: make(map[int32]*process.Process),
	}
}

// ListProcesses enumerates running processes. Handles are kept between calls
// so gopsutil can reuse what it already read for a pid.
func (s *System) ListProcesses(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[int32]*process.Process, len(procs))
	out := make([]Process, 0, len(procs))

	for _, p := range procs {
		if old, ok := s.handles[p.Pid]; ok {
			p = old
		}
		next[p.Pid] = p

		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Exited between enumeration and inspection.
			continue
		}
		ppid, _ := p.PpidWithContext(ctx)
		threads, _ := p.NumThreadsWithContext(ctx)
		owner, _ := p.UsernameWithContext(ctx)

		out = append(out, Process{
			PID:     p.Pid,
			PPID:    ppid,
			Name:    name,
			Threads: threads,
			Owner:   owner,
		})
	}

	s.handles = next
	return out, nil
}

// ProcessResources reads cpu times, start time and resident memory for pid.
func (s *System) ProcessResources(ctx context.Context, pid int32) (Resources, bool) {
	p, err := s.handle(ctx, pid)
	if err != nil {
		return Resources{}, false
	}

	times, err := p.TimesWithContext(ctx)
	if err != nil {
		return Resources{}, false
	}

	res := Resources{
		KernelTime: seconds(times.System),
		UserTime:   seconds(times.User),
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil && created > 0 {
		res.StartTime = time.UnixMilli(created)
	}
	if info, err := p.MemoryInfoWithContext(ctx); err == nil {
		res.Memory = info.RSS
	}

	return res, true
}

func (s *System) handle(ctx context.Context, pid int32) (*process.Process, error) {
	s.mu.Lock()
	p, ok := s.handles[pid]
	s.mu.Unlock()
	if ok {
		return p, nil
	}
	return process.NewProcessWithContext(ctx, pid)
}

// SystemCPUTime sums the time of every cpu state across all cores.
func (s *System) SystemCPUTime(ctx context.Context) (time.Duration, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, t := range times {
		total += convertCPUTimes(t).Total()
	}
	return seconds(total), nil
}

// CPUTimes returns cumulative times per logical core.
func (s *System) CPUTimes(ctx context.Context) ([]CPUTimes, error) {
	times, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	out := make([]CPUTimes, len(times))
	for i, t := range times {
		out[i] = convertCPUTimes(t)
	}
	return out, nil
}

func convertCPUTimes(t cpu.TimesStat) CPUTimes {
	return CPUTimes{
		User:    t.User,
		Nice:    t.Nice,
		System:  t.System,
		Idle:    t.Idle,
		IOWait:  t.Iowait,
		IRQ:     t.Irq,
		SoftIRQ: t.Softirq,
		Steal:   t.Steal,
	}
}

// LoadAverage returns the 1, 5 and 15 minute load averages.
func (s *System) LoadAverage(ctx context.Context) ([3]float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{avg.Load1, avg.Load5, avg.Load15}, nil
}

// Memory returns physical memory usage.
func (s *System) Memory(ctx context.Context) (Memory, error) {
	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Memory{}, err
	}
	return Memory{
		Total:     vmem.Total,
		Used:      vmem.Used,
		Available: vmem.Available,
		Cached:    vmem.Cached,
		Free:      vmem.Free,
	}, nil
}

// Swap returns swap usage.
func (s *System) Swap(ctx context.Context) (Swap, error) {
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return Swap{}, err
	}
	return Swap{
		Total: swap.Total,
		Used:  swap.Used,
		Free:  swap.Free,
	}, nil
}

// Disks returns every mounted filesystem with usage and io counters. A
// partition whose usage cannot be read is skipped.
func (s *System) Disks(ctx context.Context) ([]Disk, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		counters = nil
	}

	out := make([]Disk, 0, len(partitions))
	for _, partition := range partitions {
		usage, err := disk.UsageWithContext(ctx, partition.Mountpoint)
		if err != nil {
			continue
		}

		d := Disk{
			Device:     partition.Device,
			Mountpoint: partition.Mountpoint,
			Fstype:     partition.Fstype,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
		}
		if io, ok := counters[filepath.Base(partition.Device)]; ok {
			d.ReadBytes = io.ReadBytes
			d.WriteBytes = io.WriteBytes
			d.IOTime = io.IoTime
		}
		out = append(out, d)
	}

	return out, nil
}

// ListNetworkInterfaces joins per-interface byte counters with link state and
// addresses. Loopback interfaces are reported as not connected.
func (s *System) ListNetworkInterfaces(ctx context.Context) ([]Interface, error) {
	counters, err := gopsutilNet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	stats, err := gopsutilNet.InterfacesWithContext(ctx)
	if err != nil {
		stats = nil
	}
	byName := make(map[string]gopsutilNet.InterfaceStat, len(stats))
	for _, st := range stats {
		byName[st.Name] = st
	}

	out := make([]Interface, 0, len(counters))
	for _, c := range counters {
		iface := Interface{
			Name:    c.Name,
			RxTotal: c.BytesRecv,
			TxTotal: c.BytesSent,
		}

		if st, ok := byName[c.Name]; ok {
			iface.Connected = slices.Contains(st.Flags, "up") && !slices.Contains(st.Flags, "loopback")
			for _, addr := range st.Addrs {
				ip, _, err := net.ParseCIDR(addr.Addr)
				if err != nil {
					ip = net.ParseIP(addr.Addr)
				}
				if ip == nil {
					continue
				}
				if ip.To4() != nil {
					if iface.IPv4 == "" {
						iface.IPv4 = ip.String()
					}
				} else if iface.IPv6 == "" {
					iface.IPv6 = ip.String()
				}
			}
		}

		out = append(out, iface)
	}

	return out, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
