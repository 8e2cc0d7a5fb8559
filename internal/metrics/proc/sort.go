package proc

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// SortField selects the column rows are ordered by.
type SortField int

const (
	SortPID SortField = iota
	SortName
	SortCommand
	SortThreads
	SortOwner
	SortMemory
	SortCPUDirect
	SortCPULazy
)

var sortNames = [...]string{
	SortPID:       "pid",
	SortName:      "name",
	SortCommand:   "command",
	SortThreads:   "threads",
	SortOwner:     "user",
	SortMemory:    "memory",
	SortCPUDirect: "cpu direct",
	SortCPULazy:   "cpu lazy",
}

// serviceAliases maps the service view column names onto process fields.
var serviceAliases = map[string]SortField{
	"service": SortName,
	"caption": SortCommand,
	"status":  SortOwner,
}

func (f SortField) String() string {
	if f < 0 || int(f) >= len(sortNames) {
		return fmt.Sprintf("SortField(%d)", int(f))
	}
	return sortNames[f]
}

// ParseSortField resolves a configured sort name. With services set the
// service column aliases are accepted too.
func ParseSortField(s string, services bool) (SortField, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range sortNames {
		if n == name {
			return SortField(i), nil
		}
	}
	if services {
		if f, ok := serviceAliases[name]; ok {
			return f, nil
		}
	}
	return SortPID, fmt.Errorf("unknown sort field %q", s)
}

// Tunables for the cpu lazy ordering.
const (
	// LazyBaseThreshold is the promotion threshold when no leader is busy.
	LazyBaseThreshold = 10.0
	// LazyBurstThreshold marks a process as bursting.
	LazyBurstThreshold = 30.0
	// LazyLeaderWindow is how many leading rows set the threshold.
	LazyLeaderWindow = 6
	// LazyMaxRotations bounds the promotions per arrangement.
	LazyMaxRotations = 10
)

// compareBy orders two entries ascending by field.
func compareBy(field SortField, a, b *Entry) int {
	switch field {
	case SortName:
		return strings.Compare(a.Name, b.Name)
	case SortCommand:
		return strings.Compare(a.Command, b.Command)
	case SortThreads:
		return cmp.Compare(a.Threads, b.Threads)
	case SortOwner:
		return strings.Compare(a.Owner, b.Owner)
	case SortMemory:
		return cmp.Compare(a.Memory, b.Memory)
	case SortCPUDirect:
		return cmp.Compare(a.CPUPercent, b.CPUPercent)
	case SortCPULazy:
		return cmp.Compare(a.CPUCumulative, b.CPUCumulative)
	default:
		return cmp.Compare(a.PID, b.PID)
	}
}

// sortRows stable sorts rows by field in the requested direction.
func sortRows(rows []Row, field SortField, ascending bool) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		c := compareBy(field, &a.Entry, &b.Entry)
		if ascending {
			return c
		}
		return -c
	})
}

// lazyRotate pulls processes with a high instantaneous cpu% towards the front
// of a list already ordered by cumulative cpu, without re-sorting it. Leading
// rows above LazyBurstThreshold keep their place and push the insertion slot
// forward. It returns the number of rotations performed.
func lazyRotate(rows []Row) int {
	peak, threshold := LazyBaseThreshold, LazyBurstThreshold
	slot, rotations := 0, 0

	for i := range rows {
		cpu := rows[i].CPUPercent
		switch {
		case i < LazyLeaderWindow && cpu > peak:
			peak = cpu
		case i == LazyLeaderWindow:
			threshold = LazyBaseThreshold
			if peak > LazyBurstThreshold {
				threshold = peak
			}
		}

		if i == slot && cpu > LazyBurstThreshold {
			slot++
			continue
		}
		if cpu > threshold {
			row := rows[i]
			copy(rows[slot+1:i+1], rows[slot:i])
			rows[slot] = row
			rotations++
			if rotations >= LazyMaxRotations {
				break
			}
		}
	}
	return rotations
}
