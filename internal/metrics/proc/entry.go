// Package proc tracks processes and services across ticks and arranges them
// into sorted, filtered, optionally hierarchical views.
package proc

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/monify-labs/sysmon/internal/enrich"
	"github.com/monify-labs/sysmon/internal/snapshot"
)

const (
	// SystemOwner is reported for low pids whose owner cannot be resolved.
	SystemOwner = "SYSTEM"
	// UnknownOwner is the last-resort owner placeholder.
	UnknownOwner = "unknown"
	// LowPIDThreshold is the pid below which SystemOwner applies.
	LowPIDThreshold = 1000
)

// Entry is one process or service row.
//
// PID, PPID, Name, Command and Owner are identity fields, written when the
// entry is created and again only when enrichment first becomes available.
// The remaining figures are rewritten every tick.
type Entry struct {
	PID     int32
	PPID    int32
	Name    string
	Command string
	Owner   string

	Memory        uint64
	CPUPercent    float64
	CPUCumulative float64
	Threads       int64
	StartTime     time.Time
	CPUTime       time.Duration

	Collapsed bool
}

// matches reports whether filter is a substring of the pid, name, command or
// owner. Matching is case-sensitive and an empty filter matches everything.
func (e *Entry) matches(filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strconv.Itoa(int(e.PID)), filter) ||
		strings.Contains(e.Name, filter) ||
		strings.Contains(e.Command, filter) ||
		strings.Contains(e.Owner, filter)
}

type record struct {
	Entry

	enriched   bool
	ownerFinal bool
	sampled    bool
	seen       uint64
}

// setIdentity writes the identity fields. Owner is left empty when neither
// the snapshot nor enrichment knows it; the registry resolves it afterwards.
func setIdentity(rec *record, p snapshot.Process, m enrich.ProcessMeta, hasMeta bool) {
	rec.PPID = p.PPID
	rec.Name = p.Name
	rec.Owner = p.Owner

	if hasMeta {
		if rec.Name == "" {
			rec.Name = m.Name
		}
		if rec.PPID == 0 && m.PPID != 0 && m.PPID != p.PID {
			rec.PPID = m.PPID
		}
		if rec.Owner == "" {
			rec.Owner = m.Owner
		}
	}

	rec.Command = rec.Name
	if hasMeta {
		switch {
		case m.CommandLine != "":
			rec.Command = m.CommandLine
		case m.ExecutablePath != "":
			rec.Command = m.ExecutablePath
		}
	}

	rec.ownerFinal = rec.Owner != ""
	rec.enriched = hasMeta
}

// sample carries the per-tick inputs shared by every volatile update.
type sample struct {
	now        time.Time
	deltaSys   time.Duration
	multiplier float64
	cores      int
}

// updateVolatile rewrites the per-tick figures. A figure no source can
// provide keeps its previous value.
func updateVolatile(rec *record, p snapshot.Process, res snapshot.Resources, hasRes bool,
	m enrich.ProcessMeta, hasMeta bool, s sample) {
	switch {
	case p.Threads > 0:
		rec.Threads = int64(p.Threads)
	case hasMeta && m.ThreadCount > 0:
		rec.Threads = int64(m.ThreadCount)
	}

	switch {
	case hasRes && res.Memory > 0:
		rec.Memory = res.Memory
	case hasMeta && m.PrivateMemory > 0:
		rec.Memory = m.PrivateMemory
	case hasRes:
		rec.Memory = 0
	}

	switch {
	case hasRes && !res.StartTime.IsZero():
		rec.StartTime = res.StartTime
	case hasMeta && !m.CreationTime.IsZero():
		rec.StartTime = m.CreationTime
	}

	var cpuTime time.Duration
	switch {
	case hasRes:
		cpuTime = res.CPUTime()
	case hasMeta:
		cpuTime = m.CPUTime()
	default:
		return
	}

	if rec.sampled && s.deltaSys > 0 {
		delta := max(cpuTime-rec.CPUTime, 0)
		pct := s.multiplier * 100 * float64(delta) / float64(max(s.deltaSys, 1))
		rec.CPUPercent = clamp(math.Round(pct*10)/10, 0, 100*float64(s.cores))
	}
	rec.CPUTime = cpuTime
	rec.sampled = true

	if !rec.StartTime.IsZero() {
		alive := s.now.Sub(rec.StartTime).Seconds()
		rec.CPUCumulative = 100 * cpuTime.Seconds() / math.Max(1, alive)
	}
}

// reused reports whether pid now belongs to a different process than the
// one recorded, judged by a changed start time.
func reused(rec *record, res snapshot.Resources) bool {
	if rec.StartTime.IsZero() || res.StartTime.IsZero() {
		return false
	}
	d := rec.StartTime.Sub(res.StartTime)
	return d > time.Second || d < -time.Second
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
