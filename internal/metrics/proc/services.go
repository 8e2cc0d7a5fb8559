package proc

import (
	"slices"
	"strings"

	"github.com/monify-labs/sysmon/internal/enrich"
)

// Services tracks service units as entries. Name is the unit, Command its
// description and Owner its sub state, so the shared sort fields apply.
type Services struct {
	entries map[string]*Entry
}

// NewServices creates an empty service table.
func NewServices() *Services {
	return &Services{entries: make(map[string]*Entry)}
}

// Update syncs the table with the service cache. Figures are borrowed from
// the process entry of each unit's main pid; units missing from the cache
// are dropped.
func (s *Services) Update(metas map[string]enrich.ServiceMeta, lookup func(pid int32) (Entry, bool)) {
	for name := range s.entries {
		if _, ok := metas[name]; !ok {
			delete(s.entries, name)
		}
	}

	for name, m := range metas {
		e, ok := s.entries[name]
		if !ok {
			e = &Entry{Name: name}
			s.entries[name] = e
		}
		e.PID = m.MainPID
		e.Command = m.Description
		e.Owner = m.SubState

		p, found := Entry{}, false
		if m.MainPID > 0 && lookup != nil {
			p, found = lookup(m.MainPID)
		}
		if !found {
			e.CPUPercent, e.CPUCumulative = 0, 0
			e.Memory, e.Threads = 0, 0
			e.CPUTime = 0
			e.StartTime = m.Started()
			continue
		}
		e.PPID = p.PPID
		e.CPUPercent = p.CPUPercent
		e.CPUCumulative = p.CPUCumulative
		e.Memory = p.Memory
		e.Threads = p.Threads
		e.CPUTime = p.CPUTime
		e.StartTime = p.StartTime
	}
}

// Entries returns copies ordered by unit name.
func (s *Services) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Get returns a copy of the entry for unit name.
func (s *Services) Get(name string) (Entry, bool) {
	e, ok := s.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of tracked units.
func (s *Services) Len() int { return len(s.entries) }
