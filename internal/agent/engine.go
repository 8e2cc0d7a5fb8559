// Package agent drives the primary collection loop: one tick samples every
// collector, merges enrichment and arranges the process view into a frame.
package agent

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/monify-labs/sysmon/internal/config"
	"github.com/monify-labs/sysmon/internal/enrich"
	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/internal/logger"
	"github.com/monify-labs/sysmon/internal/metrics/dynamic"
	"github.com/monify-labs/sysmon/internal/metrics/proc"
	"github.com/monify-labs/sysmon/internal/metrics/static"
	"github.com/monify-labs/sysmon/internal/snapshot"
	"github.com/monify-labs/sysmon/pkg/models"
	"github.com/sirupsen/logrus"
)

// PrimeTimeout bounds the wait for the first enrichment cycle at startup.
const PrimeTimeout = 2 * time.Second

var (
	// ErrTickInProgress is returned when Tick is called while another tick
	// is still running.
	ErrTickInProgress = errors.New(errors.ErrTick, "Tick already in progress", "")

	// ErrStopped is returned by Tick after Stop.
	ErrStopped = errors.New(errors.ErrTick, "Engine is stopping", "")
)

// Options wires the engine's collaborators. Zero values select the gopsutil
// provider, the gopsutil process querier, systemctl and the live host.
type Options struct {
	Provider       snapshot.Provider
	ProcessQuerier enrich.Querier[int32, enrich.ProcessMeta]
	ServiceQuerier enrich.Querier[string, enrich.ServiceMeta]
	Host           func(ctx context.Context) (*models.HostInfo, error)
	Logger         *logrus.Entry
	Now            func() time.Time

	// Enrichment is passed to both schedulers.
	Enrichment []enrich.Option
}

// Engine owns every collector, the process and service registries and the
// enrichment workers. Tick is not reentrant.
type Engine struct {
	cfg  config.Source
	log  *logrus.Entry
	now  func() time.Time
	host *models.HostInfo

	cpu     *dynamic.CPUCollector
	memory  *dynamic.MemoryCollector
	network *dynamic.NetworkCollector

	procs    *enrich.Scheduler[int32, enrich.ProcessMeta]
	units    *enrich.Scheduler[string, enrich.ServiceMeta]
	registry *proc.Registry
	services *proc.Services
	detail   *proc.DetailTracker

	ticking  atomic.Bool
	stopping atomic.Bool

	opsMu sync.Mutex
	ops   []collapseOp

	// Tick-goroutine state.
	sequence   uint64
	hostSent   bool
	servicesOn bool
	badSort    string

	statsMu   sync.Mutex
	running   bool
	cancel    context.CancelFunc
	startTime time.Time
	lastTick  time.Time
	ticks     uint64
	failures  uint64
}

// New builds an engine. Host facts are read once; failing to learn the core
// count is fatal.
func New(ctx context.Context, cfg config.Source, opts Options) (*Engine, error) {
	log := logger.Or(opts.Logger, "engine")
	if opts.Provider == nil {
		opts.Provider = snapshot.NewSystem()
	}
	if opts.Host == nil {
		opts.Host = static.CollectHost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	host, err := opts.Host(ctx)
	if err != nil {
		return nil, err
	}
	if host == nil || host.CPUThreads <= 0 {
		return nil, errors.New(errors.ErrProvider,
			"Host reported no cpu cores", "Check that /proc or sysctl is readable")
	}
	if host.Hostname == "" {
		host.Hostname, _ = os.Hostname()
	}

	// Processes must be enumerable at least once before the loop starts.
	if _, err := opts.Provider.ListProcesses(ctx); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrProvider,
			"Process provider unreachable", "Check permissions to read process information")
	}

	schedOpts := append([]enrich.Option{enrich.WithLogger(log.WithField("component", "enrich"))}, opts.Enrichment...)

	var procs *enrich.Scheduler[int32, enrich.ProcessMeta]
	if opts.ProcessQuerier != nil {
		procs = enrich.New("process", opts.ProcessQuerier, schedOpts...)
	} else {
		procs = enrich.NewProcessScheduler(schedOpts...)
	}
	var units *enrich.Scheduler[string, enrich.ServiceMeta]
	if opts.ServiceQuerier != nil {
		units = enrich.New("services", opts.ServiceQuerier, schedOpts...)
	} else {
		units = enrich.NewServiceScheduler(nil, schedOpts...)
	}

	width := config.GraphWidth(cfg)
	cores := host.CPUThreads

	e := &Engine{
		cfg:      cfg,
		log:      log,
		now:      opts.Now,
		host:     host,
		cpu:      dynamic.NewCPUCollector(opts.Provider, width, log.WithField("component", "cpu")),
		memory:   dynamic.NewMemoryCollector(opts.Provider, width, log.WithField("component", "memory")),
		network:  dynamic.NewNetworkCollector(opts.Provider, width, log.WithField("component", "network")),
		procs:    procs,
		units:    units,
		services: proc.NewServices(),
		detail:   proc.NewDetailTracker(width, cores),
	}
	e.registry = proc.NewRegistry(opts.Provider, procs, cores,
		proc.WithClock(opts.Now),
		proc.WithStopping(e.stopping.Load),
		proc.WithLogger(log.WithField("component", "proc")))

	log.WithFields(logrus.Fields{
		"hostname": host.Hostname,
		"cores":    cores,
		"width":    width,
	}).Debug("Engine created")

	return e, nil
}

// Start launches the enrichment workers and waits at most PrimeTimeout for
// their first cycle so the first tick already sees metadata.
func (e *Engine) Start(ctx context.Context) {
	e.statsMu.Lock()
	if e.running {
		e.statsMu.Unlock()
		return
	}
	e.running = true
	e.startTime = e.now()
	ctx, e.cancel = context.WithCancel(ctx)
	e.statsMu.Unlock()

	e.procs.SetTrackAll(e.cfg.GetBool(config.KeyTrackAll))
	e.procs.Start(ctx)
	e.units.Start(ctx)

	if !e.procs.Prime(PrimeTimeout) {
		e.log.Warn("Process enrichment not ready, continuing without it")
	}
	if e.cfg.GetBool(config.KeyProcServices) && !e.units.Prime(PrimeTimeout) {
		e.log.Warn("Service enrichment not ready, continuing without it")
	}
}

// Stop raises the stopping flag and waits for the workers to exit. A tick in
// flight abandons its enumeration at the next process.
func (e *Engine) Stop() {
	if e.stopping.Swap(true) {
		return
	}
	e.log.Info("Stopping engine")

	e.statsMu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.running = false
	e.statsMu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.procs.Stop()
	e.units.Stop()
}

// Host returns the host facts read at creation.
func (e *Engine) Host() models.HostInfo { return *e.host }
