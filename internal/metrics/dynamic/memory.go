package dynamic

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/internal/logger"
	"github.com/monify-labs/sysmon/internal/metrics/history"
	"github.com/monify-labs/sysmon/internal/metrics/rate"
	"github.com/monify-labs/sysmon/internal/snapshot"
	"github.com/monify-labs/sysmon/pkg/models"
	"github.com/sirupsen/logrus"
)

var memoryFields = []string{"used", "available", "cached", "free"}

// MemoryOptions are the per-tick switches read from configuration.
type MemoryOptions struct {
	ShowSwap     bool
	ShowDisks    bool
	OnlyPhysical bool
	// DisksFilter is a space separated list of mountpoints or device names
	// to show. Prefixed with "exclude=" it lists the ones to hide instead.
	DisksFilter string
}

// diskState is kept per mountpoint between ticks.
type diskState struct {
	read, write  rate.Counter
	readHistory  *history.Series[uint64]
	writeHistory *history.Series[uint64]
	activity     *history.Series[int]
	lastIOTime   uint64
	ioPrimed     bool
}

// MemoryCollector tracks memory, swap and disk usage
type MemoryCollector struct {
	mu    sync.Mutex
	src   snapshot.MemorySource
	log   *logrus.Entry
	now   func() time.Time
	width int

	history    map[string]*history.Series[int]
	swapUsed   *history.Series[int]
	swapFree   *history.Series[int]
	disks      map[string]*diskState
	lastSample time.Time
	lastMemory snapshot.Memory
	haveMemory bool
}

// NewMemoryCollector creates a collector whose percent series hold 2*width
// samples and whose disk io series hold width samples
func NewMemoryCollector(src snapshot.MemorySource, width int, log *logrus.Entry) *MemoryCollector {
	m := &MemoryCollector{
		src:      src,
		log:      logger.Or(log, "memory"),
		now:      time.Now,
		width:    width,
		history:  make(map[string]*history.Series[int], len(memoryFields)),
		swapUsed: history.NewSeries[int](2 * width),
		swapFree: history.NewSeries[int](2 * width),
		disks:    make(map[string]*diskState),
	}
	for _, f := range memoryFields {
		m.history[f] = history.NewSeries[int](2 * width)
	}
	return m
}

// Collect samples memory once. Swap and disk failures are logged and leave
// those sections out; a memory failure keeps the previous figures.
func (m *MemoryCollector) Collect(ctx context.Context, opts MemoryOptions) (*models.MemoryMetrics, error) {
	mem, err := m.src.Memory(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	elapsed := time.Duration(0)
	if !m.lastSample.IsZero() {
		elapsed = now.Sub(m.lastSample)
	}
	m.lastSample = now

	if err != nil {
		if !m.haveMemory {
			return nil, errors.WrapWithCode(err, errors.ErrProvider, "Failed to read memory", "")
		}
		m.log.WithError(err).Warn("Memory read failed, keeping previous values")
		mem = m.lastMemory
	}
	m.lastMemory, m.haveMemory = mem, true

	out := &models.MemoryMetrics{
		Total:     mem.Total,
		Used:      mem.Used,
		Available: mem.Available,
		Cached:    mem.Cached,
		Free:      mem.Free,
		Percent:   make(map[string]int, len(memoryFields)),
		History:   make(map[string][]int, len(memoryFields)),
	}
	values := map[string]uint64{
		"used":      mem.Used,
		"available": mem.Available,
		"cached":    mem.Cached,
		"free":      mem.Free,
	}
	for _, f := range memoryFields {
		p := percentOf(values[f], mem.Total)
		m.history[f].Push(p)
		out.Percent[f] = p
		out.History[f] = m.history[f].Values()
	}

	if opts.ShowSwap {
		out.Swap = m.collectSwap(ctx)
	}
	if opts.ShowDisks {
		out.Disks = m.collectDisks(ctx, opts, elapsed)
	}

	return out, nil
}

func (m *MemoryCollector) collectSwap(ctx context.Context) *models.SwapMetrics {
	swap, err := m.src.Swap(ctx)
	if err != nil {
		m.log.WithError(err).Warn("Swap read failed")
		return nil
	}
	if swap.Total == 0 {
		return nil
	}

	used, free := percentOf(swap.Used, swap.Total), percentOf(swap.Free, swap.Total)
	m.swapUsed.Push(used)
	m.swapFree.Push(free)
	return &models.SwapMetrics{
		Total:       swap.Total,
		Used:        swap.Used,
		Free:        swap.Free,
		UsedPercent: used,
		FreePercent: free,
		UsedHistory: m.swapUsed.Values(),
		FreeHistory: m.swapFree.Values(),
	}
}

func (m *MemoryCollector) collectDisks(ctx context.Context, opts MemoryOptions, elapsed time.Duration) []models.DiskMetrics {
	disks, err := m.src.Disks(ctx)
	if err != nil {
		m.log.WithError(err).Warn("Disk read failed")
		return nil
	}

	filter := parseDiskFilter(opts.DisksFilter)
	seen := make(map[string]bool, len(disks))
	out := make([]models.DiskMetrics, 0, len(disks))

	for _, d := range disks {
		if opts.OnlyPhysical && shouldSkipFilesystem(d.Fstype) {
			continue
		}
		if !filter.allows(d) {
			continue
		}
		if seen[d.Mountpoint] {
			continue
		}
		seen[d.Mountpoint] = true

		st, ok := m.disks[d.Mountpoint]
		if !ok {
			st = &diskState{
				readHistory:  history.NewSeries[uint64](m.width),
				writeHistory: history.NewSeries[uint64](m.width),
				activity:     history.NewSeries[int](m.width),
			}
			m.disks[d.Mountpoint] = st
		}

		readSpeed := st.read.Update(d.ReadBytes, elapsed)
		writeSpeed := st.write.Update(d.WriteBytes, elapsed)
		st.readHistory.Push(readSpeed)
		st.writeHistory.Push(writeSpeed)

		activity := 0
		if st.ioPrimed && elapsed > 0 && d.IOTime >= st.lastIOTime {
			busy := float64(d.IOTime-st.lastIOTime) / (float64(elapsed) / float64(time.Millisecond))
			activity = clampPercent(busy * 100)
		}
		st.lastIOTime, st.ioPrimed = d.IOTime, true
		st.activity.Push(activity)

		out = append(out, models.DiskMetrics{
			Name:            diskName(d),
			Mountpoint:      d.Mountpoint,
			Device:          d.Device,
			Fstype:          d.Fstype,
			Total:           d.Total,
			Used:            d.Used,
			Free:            d.Free,
			UsedPercent:     percentOf(d.Used, d.Total),
			FreePercent:     percentOf(d.Free, d.Total),
			ReadSpeed:       readSpeed,
			WriteSpeed:      writeSpeed,
			ReadTotal:       st.read.Total,
			WriteTotal:      st.write.Total,
			IOActivity:      activity,
			ReadHistory:     st.readHistory.Values(),
			WriteHistory:    st.writeHistory.Values(),
			ActivityHistory: st.activity.Values(),
		})
	}

	for mount := range m.disks {
		if !seen[mount] {
			delete(m.disks, mount)
		}
	}

	slices.SortStableFunc(out, func(a, b models.DiskMetrics) int {
		switch {
		case a.Mountpoint == b.Mountpoint:
			return 0
		case a.Mountpoint == "/":
			return -1
		case b.Mountpoint == "/":
			return 1
		}
		return strings.Compare(a.Mountpoint, b.Mountpoint)
	})
	return out
}

func diskName(d snapshot.Disk) string {
	if d.Mountpoint == "/" {
		return "root"
	}
	if name := filepath.Base(d.Mountpoint); name != "." && name != string(filepath.Separator) {
		return name
	}
	return d.Mountpoint
}

type diskFilter struct {
	exclude bool
	names   map[string]bool
}

func parseDiskFilter(s string) diskFilter {
	s = strings.TrimSpace(s)
	f := diskFilter{}
	if rest, ok := strings.CutPrefix(s, "exclude="); ok {
		f.exclude = true
		s = rest
	}
	for _, name := range strings.Fields(s) {
		if f.names == nil {
			f.names = make(map[string]bool)
		}
		f.names[strings.Trim(name, `"'`)] = true
	}
	return f
}

func (f diskFilter) allows(d snapshot.Disk) bool {
	if len(f.names) == 0 {
		return true
	}
	hit := f.names[d.Mountpoint] || f.names[d.Device] || f.names[filepath.Base(d.Device)]
	return hit != f.exclude
}

// shouldSkipFilesystem determines if a filesystem type is a pseudo or
// virtual filesystem
func shouldSkipFilesystem(fstype string) bool {
	skipTypes := map[string]bool{
		"tmpfs":    true,
		"devtmpfs": true,
		"devfs":    true,
		"proc":     true,
		"sysfs":    true,
		"cgroup":   true,
		"cgroup2":  true,
		"nsfs":     true,
		"overlay":  true,
		"squashfs": true,
		"iso9660":  true,
		"autofs":   true,
		"tracefs":  true,
		"debugfs":  true,
	}

	return skipTypes[fstype]
}

func percentOf(part, total uint64) int {
	if total == 0 {
		return 0
	}
	return clampPercent(float64(part) * 100 / float64(total))
}
