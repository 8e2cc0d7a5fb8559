package agent

import (
	"context"
	"time"

	"github.com/monify-labs/sysmon/internal/config"
	"github.com/monify-labs/sysmon/internal/enrich"
	"github.com/monify-labs/sysmon/internal/errors"
	"github.com/monify-labs/sysmon/internal/sender"
	"github.com/sirupsen/logrus"
)

// Status is a point-in-time summary of the engine.
type Status struct {
	Hostname   string
	Running    bool
	Uptime     time.Duration
	LastTick   time.Time
	Ticks      uint64
	Failures   uint64
	Enrichment []enrich.Status
}

// Run ticks every update_ms and hands each frame to sink until ctx is done.
// The interval is re-read after every tick. An authentication failure from
// the sink stops the loop and is returned; other send errors are counted.
func (e *Engine) Run(ctx context.Context, sink sender.Sender) error {
	e.Start(ctx)
	defer e.Stop()

	interval := config.UpdateInterval(e.cfg)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.WithFields(logrus.Fields{
		"hostname": e.host.Hostname,
		"interval": interval,
	}).Info("Engine starting")

	for {
		if err := e.tickAndSend(ctx, sink); err != nil {
			return err
		}

		if next := config.UpdateInterval(e.cfg); next != interval {
			interval = next
			ticker.Reset(interval)
			e.log.WithField("interval", interval).Info("Update interval changed")
		}

		select {
		case <-ctx.Done():
			e.log.Info("Engine stopping: context cancelled")
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) tickAndSend(ctx context.Context, sink sender.Sender) error {
	frame, err := e.Tick(ctx)
	if err != nil {
		if errors.Is(err, ErrStopped) {
			return nil
		}
		e.log.WithError(err).Warn("Tick skipped")
		e.countFailure()
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	if err := sink.Send(sendCtx, frame); err != nil {
		if errors.Is(err, sender.ErrUnauthorized) {
			e.log.WithError(err).Error("Authentication failed, stopping")
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		e.log.WithError(err).Warn("Failed to send frame")
		e.countFailure()
		return nil
	}

	e.log.WithFields(logrus.Fields{
		"sequence":  frame.Sequence,
		"processes": frame.Processes.Total,
	}).Debug("Frame sent")
	return nil
}

func (e *Engine) countFailure() {
	e.statsMu.Lock()
	e.failures++
	e.statsMu.Unlock()
}

// EnrichmentStatus reports both enrichment workers.
func (e *Engine) EnrichmentStatus() []enrich.Status {
	return []enrich.Status{e.procs.Status(), e.units.Status()}
}

// Status returns the current status of the engine.
func (e *Engine) Status() Status {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	st := Status{
		Hostname:   e.host.Hostname,
		Running:    e.running,
		LastTick:   e.lastTick,
		Ticks:      e.ticks,
		Failures:   e.failures,
		Enrichment: e.EnrichmentStatus(),
	}
	if e.running {
		st.Uptime = e.now().Sub(e.startTime)
	}
	return st
}
