package dynamic

import "slices"

// Direction is a traffic direction of a network interface.
type Direction int

const (
	Download Direction = iota
	Upload
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

func (d Direction) other() Direction { return 1 - d }

// Auto-scaling tunables.
const (
	// MinCeiling is the smallest graph ceiling in bytes per second.
	MinCeiling uint64 = 10 << 10
	// ScaleTriggerCount is how many out-of-band samples trigger a rescale.
	ScaleTriggerCount = 5
	// ScaleWindow is how many recent samples a rescale averages.
	ScaleWindow = 5
	// ScaleUpHeadroom multiplies the average when growing the ceiling.
	ScaleUpHeadroom = 1.3
	// ScaleDownHeadroom multiplies the average when shrinking the ceiling.
	ScaleDownHeadroom = 3.0
	// ScaleDownRatio is how far below the ceiling a sample must be to count
	// towards shrinking.
	ScaleDownRatio = 10
)

const (
	above = iota
	below
)

// Scaler adapts the download and upload graph ceilings to observed speeds.
type Scaler struct {
	ceiling [2]uint64
	counts  [2][2]int
	rescale bool
	dirty   bool
}

// NewScaler creates a scaler with both ceilings at MinCeiling.
func NewScaler() *Scaler {
	return &Scaler{ceiling: [2]uint64{MinCeiling, MinCeiling}}
}

// Ceiling returns the current ceiling of dir.
func (s *Scaler) Ceiling(dir Direction) uint64 { return s.ceiling[dir] }

// Observe counts speed against the ceiling of dir. Each count towards one
// side decays the other.
func (s *Scaler) Observe(dir Direction, speed uint64) {
	c := &s.counts[dir]
	switch {
	case speed > s.ceiling[dir]:
		c[above]++
		if c[below] > 0 {
			c[below]--
		}
	case s.ceiling[dir] > MinCeiling && speed < s.ceiling[dir]/ScaleDownRatio:
		c[below]++
		if c[above] > 0 {
			c[above]--
		}
	}
}

// Adjust rescales every direction whose counters crossed the trigger, or all
// of them after ForceRescale. histories hold the recent speeds per direction
// and current the latest speed, used while fewer than ScaleWindow samples
// exist. With sync set the first rescaled ceiling is copied to the other
// direction.
func (s *Scaler) Adjust(histories [2][]uint64, current [2]uint64, sync bool) {
	for _, dir := range []Direction{Download, Upload} {
		rescaled := false
		for _, side := range []int{above, below} {
			if !s.rescale && s.counts[dir][side] < ScaleTriggerCount {
				continue
			}
			mult := ScaleUpHeadroom
			if side == below {
				mult = ScaleDownHeadroom
			}
			avg := recentAverage(histories[dir], current[dir])
			s.ceiling[dir] = max(uint64(float64(avg)*mult), MinCeiling)
			s.counts[dir] = [2]int{}
			s.dirty = true
			rescaled = true
			break
		}
		if rescaled && sync {
			o := dir.other()
			s.ceiling[o] = s.ceiling[dir]
			s.counts[o] = [2]int{}
			break
		}
	}
	s.rescale = false
}

// SetCeilings replaces both ceilings, marking the scaler dirty on change.
func (s *Scaler) SetCeilings(download, upload uint64) {
	next := [2]uint64{max(download, 1), max(upload, 1)}
	if next != s.ceiling {
		s.ceiling = next
		s.dirty = true
	}
}

// ForceRescale makes the next Adjust rescale both directions.
func (s *Scaler) ForceRescale() { s.rescale = true }

// Reset clears the counters and marks the scaler dirty.
func (s *Scaler) Reset() {
	s.counts = [2][2]int{}
	s.dirty = true
}

// TakeDirty reports whether a ceiling changed since the last call.
func (s *Scaler) TakeDirty() bool {
	d := s.dirty
	s.dirty = false
	return d
}

// recentAverage is the integer mean of the last ScaleWindow samples, or
// current when fewer exist.
func recentAverage(samples []uint64, current uint64) uint64 {
	if len(samples) < ScaleWindow {
		return current
	}
	var sum uint64
	for _, v := range samples[len(samples)-ScaleWindow:] {
		sum += v
	}
	return sum / ScaleWindow
}

// InterfaceSummary is what interface selection looks at.
type InterfaceSummary struct {
	Name      string
	Connected bool
	Total     uint64
}

// SelectInterface picks the interface to report: the configured one if it
// exists, else current if it still exists, else the connected interface with
// the most traffic, else the interface with the most traffic. Ties go to the
// lower name. It returns "" when ifaces is empty.
func SelectInterface(configured, current string, ifaces []InterfaceSummary) string {
	has := func(name string) bool {
		return name != "" && slices.ContainsFunc(ifaces, func(i InterfaceSummary) bool { return i.Name == name })
	}
	if has(configured) {
		return configured
	}
	if has(current) {
		return current
	}
	if len(ifaces) == 0 {
		return ""
	}

	sorted := slices.Clone(ifaces)
	slices.SortStableFunc(sorted, func(a, b InterfaceSummary) int {
		switch {
		case a.Total > b.Total:
			return -1
		case a.Total < b.Total:
			return 1
		}
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	for _, i := range sorted {
		if i.Connected {
			return i.Name
		}
	}
	return sorted[0].Name
}
