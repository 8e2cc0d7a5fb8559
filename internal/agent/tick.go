package agent

import (
	"context"
	"sync"

	"github.com/monify-labs/sysmon/internal/config"
	"github.com/monify-labs/sysmon/internal/metrics/dynamic"
	"github.com/monify-labs/sysmon/internal/metrics/proc"
	"github.com/monify-labs/sysmon/pkg/models"
)

// collapseOp is a queued tree edit applied at the start of the next tick.
type collapseOp struct {
	pid  int32
	kind int
}

const (
	opToggle = iota
	opCollapse
	opExpand
)

// Toggle queues flipping the collapsed state of pid.
func (e *Engine) Toggle(pid int32) { e.queue(collapseOp{pid: pid, kind: opToggle}) }

// Collapse queues collapsing pid.
func (e *Engine) Collapse(pid int32) { e.queue(collapseOp{pid: pid, kind: opCollapse}) }

// Expand queues expanding pid.
func (e *Engine) Expand(pid int32) { e.queue(collapseOp{pid: pid, kind: opExpand}) }

func (e *Engine) queue(op collapseOp) {
	e.opsMu.Lock()
	e.ops = append(e.ops, op)
	e.opsMu.Unlock()
}

func (e *Engine) applyOps() {
	e.opsMu.Lock()
	ops := e.ops
	e.ops = nil
	e.opsMu.Unlock()

	for _, op := range ops {
		var ok bool
		switch op.kind {
		case opToggle:
			ok = e.registry.Toggle(op.pid)
		case opCollapse:
			ok = e.registry.Collapse(op.pid)
		case opExpand:
			ok = e.registry.Expand(op.pid)
		}
		if !ok {
			e.log.WithField("pid", op.pid).Debug("Collapse target vanished")
		}
	}
}

// ResetNetworkTotals restarts the byte totals of the selected interface.
func (e *Engine) ResetNetworkTotals() { e.network.ResetTotals() }

// Tick runs one collection cycle and returns the resulting frame. Collector
// failures leave their section empty and are logged; the tick itself only
// fails when it cannot run.
func (e *Engine) Tick(ctx context.Context) (*models.Frame, error) {
	if e.stopping.Load() {
		return nil, ErrStopped
	}
	if !e.ticking.CompareAndSwap(false, true) {
		return nil, ErrTickInProgress
	}
	defer e.ticking.Store(false)

	cfg := e.cfg
	frame := &models.Frame{
		Hostname:  e.host.Hostname,
		Timestamp: e.now(),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		cpu, err := e.cpu.Collect(ctx)
		if err != nil {
			e.log.WithError(err).Warn("CPU collection failed")
			return
		}
		mu.Lock()
		frame.CPU = cpu
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		mem, err := e.memory.Collect(ctx, dynamic.MemoryOptions{
			ShowSwap:     cfg.GetBool(config.KeyShowSwap),
			ShowDisks:    cfg.GetBool(config.KeyShowDisks),
			OnlyPhysical: cfg.GetBool(config.KeyOnlyPhysical),
			DisksFilter:  cfg.GetString(config.KeyDisksFilter),
		})
		if err != nil {
			e.log.WithError(err).Warn("Memory collection failed")
			return
		}
		mu.Lock()
		frame.Memory = mem
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		net, err := e.network.Collect(ctx, dynamic.NetworkOptions{
			Interface:    cfg.GetString(config.KeyNetIface),
			Auto:         cfg.GetBool(config.KeyNetAuto),
			Sync:         cfg.GetBool(config.KeyNetSync),
			DownloadMbit: cfg.GetInt(config.KeyNetDownload),
			UploadMbit:   cfg.GetInt(config.KeyNetUpload),
		})
		if err != nil {
			e.log.WithError(err).Warn("Network collection failed")
			return
		}
		mu.Lock()
		frame.Network = net
		mu.Unlock()
	}()

	e.procs.SetTrackAll(cfg.GetBool(config.KeyTrackAll))
	if err := e.registry.Update(ctx, cfg.GetBool(config.KeyProcPerCore)); err != nil {
		e.log.WithError(err).Warn("Process update failed, keeping previous entries")
	}
	e.applyOps()

	wg.Wait()

	services := cfg.GetBool(config.KeyProcServices)
	e.units.SetTrackAll(services)
	if services {
		if !e.servicesOn {
			e.units.Signal()
		}
		e.services.Update(e.units.Snapshot(), e.registry.Get)
	}
	e.servicesOn = services

	frame.Processes = e.arrange(services)

	if cfg.GetBool(config.KeyShowDetailed) {
		frame.Detail = e.updateDetail(frame, services)
	}

	frame.Enrichment = e.enrichmentStatus()

	if !e.hostSent {
		host := *e.host
		frame.Host = &host
		e.hostSent = true
	}

	e.sequence++
	frame.Sequence = e.sequence

	e.statsMu.Lock()
	e.ticks++
	e.lastTick = frame.Timestamp
	e.statsMu.Unlock()

	return frame, nil
}

func (e *Engine) arrange(services bool) *models.ProcessList {
	key := config.KeyProcSorting
	entries := e.registry.Entries
	if services {
		key = config.KeyServicesSorting
		entries = e.services.Entries
	}

	name := e.cfg.GetString(key)
	field, err := proc.ParseSortField(name, services)
	if err != nil {
		if name != e.badSort {
			e.log.WithError(err).Warn("Falling back to cpu lazy sorting")
			e.badSort = name
		}
		field = proc.SortCPULazy
	}

	// Service main pids collide on 0, so services never form a tree.
	tree := e.cfg.GetBool(config.KeyProcTree) && !services
	opts := proc.ViewOptions{
		Sort:      field,
		Ascending: e.cfg.GetBool(config.KeyProcReversed),
		Tree:      tree,
		Filter:    e.cfg.GetString(config.KeyProcFilter),
	}
	rows := proc.Arrange(entries(), opts)

	list := &models.ProcessList{
		Services: services,
		Sorting:  field.String(),
		Reversed: opts.Ascending,
		Tree:     tree,
		Filter:   opts.Filter,
		Total:    len(rows),
		Rows:     make([]models.ProcessRow, 0, len(rows)),
	}
	for _, r := range rows {
		if r.TreeIndex >= len(rows) {
			break
		}
		list.Rows = append(list.Rows, toProcessRow(r))
	}
	list.Visible = len(list.Rows)
	return list
}

func (e *Engine) updateDetail(frame *models.Frame, services bool) *models.DetailMetrics {
	in := proc.DetailInput{
		PID:         int32(e.cfg.GetInt(config.KeyDetailedPID)),
		Name:        e.cfg.GetString(config.KeyDetailedName),
		Services:    services,
		PerCore:     e.cfg.GetBool(config.KeyProcPerCore),
		TotalMemory: e.host.TotalMemory,
		Now:         frame.Timestamp,
	}
	if frame.Memory != nil && frame.Memory.Total > 0 {
		in.TotalMemory = frame.Memory.Total
	}

	if services {
		if in.Name == "" {
			return nil
		}
		in.Service, in.HasService = e.units.Get(in.Name)
		entry, ok := e.services.Get(in.Name)
		in.Entry = entry
		in.Found = ok && entry.PID > 0
		in.PID = entry.PID
	} else {
		if in.PID <= 0 {
			return nil
		}
		in.Entry, in.Found = e.registry.Get(in.PID)
		if in.Found {
			if parent, ok := e.registry.Get(in.Entry.PPID); ok {
				in.Parent = parent.Name
			}
		}
	}

	if in.Found {
		in.Meta, in.HasMeta = e.procs.Get(in.PID)
		// Io counters only come from enrichment, so keep them fresh.
		e.procs.Request(in.PID)
		e.procs.Signal()
	}

	d := e.detail.Update(in)
	name := d.Name
	if name == "" {
		name = d.Entry.Name
	}
	return &models.DetailMetrics{
		PID:           d.PID,
		Name:          name,
		Status:        d.Status,
		Row:           toProcessRow(proc.Row{Entry: d.Entry}),
		CPUHistory:    d.CPUHistory,
		MemoryHistory: d.MemoryHistory,
		MemoryPercent: d.MemoryPercent,
		MemoryScale:   d.MemoryScale,
		Memory:        d.MemoryText,
		IORead:        d.IORead,
		IOWrite:       d.IOWrite,
		Elapsed:       d.Elapsed,
		Parent:        d.Parent,
		Owner:         d.Owner,
		StartMode:     d.StartMode,
		Description:   d.Description,
		CanStop:       d.CanStop,
		CanReload:     d.CanReload,
	}
}

func (e *Engine) enrichmentStatus() []models.EnrichmentStatus {
	out := make([]models.EnrichmentStatus, 0, 2)
	for _, st := range e.EnrichmentStatus() {
		s := models.EnrichmentStatus{
			Name:           st.Name,
			Disabled:       st.Disabled,
			Busy:           st.Busy,
			Entries:        st.Entries,
			Cycles:         st.Cycles,
			LastCycle:      st.LastCycle,
			LastDurationMs: st.LastDuration.Milliseconds(),
		}
		if st.Err != nil {
			s.Error = st.Err.Error()
		}
		out = append(out, s)
	}
	return out
}

func toProcessRow(r proc.Row) models.ProcessRow {
	return models.ProcessRow{
		PID:           r.PID,
		PPID:          r.PPID,
		Name:          r.Name,
		Command:       r.Command,
		Owner:         r.Owner,
		Threads:       r.Threads,
		Memory:        r.Memory,
		CPUPercent:    r.CPUPercent,
		CPUCumulative: r.CPUCumulative,
		TreeIndex:     r.TreeIndex,
		Depth:         r.Depth,
		Prefix:        r.Prefix,
		Collapsed:     r.Collapsed,
	}
}
