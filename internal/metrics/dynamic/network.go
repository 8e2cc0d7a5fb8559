package dynamic

import (
	"context"
	"slices"
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

// NetworkOptions are the per-tick switches read from configuration.
type NetworkOptions struct {
	Interface string
	Auto      bool
	Sync      bool
	// DownloadMbit and UploadMbit are the fixed ceilings used when Auto is
	// off, in megabits per second.
	DownloadMbit int
	UploadMbit   int
}

// interfaceState is kept per interface between ticks.
type interfaceState struct {
	name      string
	connected bool
	ipv4      string
	ipv6      string
	counters  [2]rate.Counter
	history   [2]*history.Series[uint64]
}

func (s *interfaceState) total() uint64 {
	return s.counters[Download].Total + s.counters[Upload].Total
}

// NetworkCollector tracks per-interface traffic and reports the selected one
type NetworkCollector struct {
	mu    sync.Mutex
	src   snapshot.NetSource
	log   *logrus.Entry
	now   func() time.Time
	width int

	ifaces     map[string]*interfaceState
	selected   string
	configured string
	scaler     *Scaler
	lastSample time.Time
}

// NewNetworkCollector creates a collector whose speed series hold 2*width
// samples
func NewNetworkCollector(src snapshot.NetSource, width int, log *logrus.Entry) *NetworkCollector {
	return &NetworkCollector{
		src:    src,
		log:    logger.Or(log, "network"),
		now:    time.Now,
		width:  width,
		ifaces: make(map[string]*interfaceState),
		scaler: NewScaler(),
	}
}

// Collect samples every interface once and returns the selected one. It
// returns nil metrics when no interface exists.
func (n *NetworkCollector) Collect(ctx context.Context, opts NetworkOptions) (*models.NetworkMetrics, error) {
	list, err := n.src.ListNetworkInterfaces(ctx)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrProvider, "Failed to list network interfaces", "")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	elapsed := time.Duration(0)
	if !n.lastSample.IsZero() {
		elapsed = now.Sub(n.lastSample)
	}
	n.lastSample = now

	present := make(map[string]bool, len(list))
	for _, iface := range list {
		present[iface.Name] = true

		st, ok := n.ifaces[iface.Name]
		if !ok {
			st = &interfaceState{name: iface.Name}
			for dir := range st.history {
				st.history[dir] = history.NewSeries[uint64](2 * n.width)
			}
			n.ifaces[iface.Name] = st
		}
		st.connected, st.ipv4, st.ipv6 = iface.Connected, iface.IPv4, iface.IPv6

		raw := [2]uint64{Download: iface.RxTotal, Upload: iface.TxTotal}
		for _, dir := range []Direction{Download, Upload} {
			speed := st.counters[dir].Update(raw[dir], elapsed)
			st.history[dir].Push(speed)
			if opts.Auto && iface.Name == n.selected {
				n.scaler.Observe(dir, speed)
			}
		}
	}

	for name := range n.ifaces {
		if !present[name] {
			delete(n.ifaces, name)
		}
	}
	if len(n.ifaces) == 0 {
		n.selected = ""
		return nil, nil
	}

	_, current := n.ifaces[n.selected]
	if !current || opts.Interface != n.configured {
		n.reselect(opts)
	}
	st := n.ifaces[n.selected]

	if opts.Auto {
		n.scaler.Adjust(
			[2][]uint64{st.history[Download].Values(), st.history[Upload].Values()},
			[2]uint64{st.counters[Download].Speed, st.counters[Upload].Speed},
			opts.Sync)
	} else {
		n.scaler.SetCeilings(mbitToBytes(opts.DownloadMbit), mbitToBytes(opts.UploadMbit))
	}

	return n.metrics(st, opts), nil
}

// reselect picks a new interface and restarts scaling for it.
func (n *NetworkCollector) reselect(opts NetworkOptions) {
	n.configured = opts.Interface

	summaries := make([]InterfaceSummary, 0, len(n.ifaces))
	for _, st := range n.ifaces {
		summaries = append(summaries, InterfaceSummary{Name: st.name, Connected: st.connected, Total: st.total()})
	}
	current := n.selected
	if _, ok := n.ifaces[current]; !ok {
		current = ""
	}
	next := SelectInterface(opts.Interface, current, summaries)
	if next == n.selected {
		return
	}

	n.log.WithFields(logrus.Fields{"from": n.selected, "to": next}).Debug("Selected network interface")
	n.selected = next
	n.scaler.Reset()
	if opts.Auto {
		n.scaler.ForceRescale()
	}
}

func (n *NetworkCollector) metrics(st *interfaceState, opts NetworkOptions) *models.NetworkMetrics {
	names := make([]string, 0, len(n.ifaces))
	for name := range n.ifaces {
		names = append(names, name)
	}
	slices.Sort(names)

	direction := func(dir Direction) models.NetworkDirection {
		c := &st.counters[dir]
		return models.NetworkDirection{
			Speed:   c.Speed,
			Top:     c.Top,
			Total:   c.Total,
			Ceiling: n.scaler.Ceiling(dir),
			History: st.history[dir].Values(),
		}
	}

	return &models.NetworkMetrics{
		Interface:  st.name,
		Connected:  st.connected,
		IPv4:       st.ipv4,
		IPv6:       st.ipv6,
		Download:   direction(Download),
		Upload:     direction(Upload),
		Sync:       opts.Sync,
		Auto:       opts.Auto,
		Redraw:     n.scaler.TakeDirty(),
		Interfaces: names,
	}
}

// ResetTotals restarts the download and upload totals of the selected
// interface.
func (n *NetworkCollector) ResetTotals() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if st, ok := n.ifaces[n.selected]; ok {
		st.counters[Download].ResetTotal()
		st.counters[Upload].ResetTotal()
	}
}

// Selected returns the name of the reported interface.
func (n *NetworkCollector) Selected() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.selected
}

func mbitToBytes(mbit int) uint64 {
	if mbit <= 0 {
		return MinCeiling
	}
	return uint64(mbit) << 20 / 8
}
