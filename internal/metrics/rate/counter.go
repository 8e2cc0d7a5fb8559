// Package rate turns raw cumulative counters into rollover-safe speed,
// total and top values.
package rate

import (
	"math"
	"time"
)

// Counter is the state kept for one cumulative counter, such as the received
// bytes of a network interface. Total never decreases across counter wraps.
type Counter struct {
	Last     uint64
	Rollover uint64
	Offset   uint64
	Top      uint64
	Speed    uint64
	Total    uint64

	primed bool
}

// Update folds the raw counter value v, observed elapsed after the previous
// value, into the state and returns the current speed in units per second.
// The first observation only primes the counter and reports a speed of 0.
func (c *Counter) Update(v uint64, elapsed time.Duration) uint64 {
	if v < c.Last {
		c.Rollover += c.Last
		c.Last = 0
	}
	if c.Rollover > math.MaxUint64-v {
		c.Rollover = 0
		c.Last = 0
	}

	switch {
	case !c.primed:
		c.Speed = 0
	case elapsed <= 0:
		c.Speed = 0
	default:
		c.Speed = uint64(math.Round(float64(v-c.Last) / elapsed.Seconds()))
	}
	if c.Speed > c.Top {
		c.Top = c.Speed
	}

	if c.Offset > c.Rollover+v {
		c.Offset = 0
	}
	c.Total = c.Rollover + v - c.Offset
	c.Last = v
	c.primed = true

	return c.Speed
}

// ResetTotal restarts Total from zero without disturbing speed tracking.
func (c *Counter) ResetTotal() {
	c.Offset = c.Rollover + c.Last
	c.Total = 0
}

// Primed reports whether the counter has seen at least one value.
func (c *Counter) Primed() bool { return c.primed }
