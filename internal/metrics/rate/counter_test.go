package rate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounterSpeedAndTop(t *testing.T) {
	var c Counter

	assert.Equal(t, uint64(0), c.Update(1000, time.Second))
	assert.Equal(t, uint64(1000), c.Total)

	assert.Equal(t, uint64(500), c.Update(2000, 2*time.Second))
	assert.Equal(t, uint64(2000), c.Update(4000, time.Second))
	assert.Equal(t, uint64(0), c.Update(4000, time.Second))

	assert.Equal(t, uint64(2000), c.Top)
	assert.Equal(t, uint64(4000), c.Total)
}

func TestCounterWraparoundKeepsTotalMonotonic(t *testing.T) {
	var c Counter
	seq := []uint64{10, 50, 100, 80, 95, 130, 5, 40}

	prev := uint64(0)
	for i, v := range seq {
		c.Update(v, time.Second)
		assert.GreaterOrEqual(t, c.Total, prev, "step %d value %d", i, v)
		prev = c.Total
	}

	// 100 folded at the first wrap, 130 at the second.
	assert.Equal(t, uint64(100+130+40), c.Total)
}

func TestCounterWrapSpeedUsesNewValue(t *testing.T) {
	var c Counter
	c.Update(100, time.Second)

	assert.Equal(t, uint64(80), c.Update(80, time.Second))
	assert.Equal(t, uint64(100), c.Rollover)
	assert.Equal(t, uint64(180), c.Total)
}

func TestCounterZeroElapsed(t *testing.T) {
	var c Counter
	c.Update(100, time.Second)

	assert.Equal(t, uint64(0), c.Update(200, 0))
	assert.Equal(t, uint64(0), c.Update(300, -time.Second))
	assert.Equal(t, uint64(300), c.Total)
}

func TestCounterRolloverOverflowRecovers(t *testing.T) {
	c := Counter{Last: 10, Rollover: math.MaxUint64 - 5, primed: true}

	c.Update(100, time.Second)

	assert.Equal(t, uint64(0), c.Rollover)
	assert.Equal(t, uint64(100), c.Total)
	assert.Equal(t, uint64(100), c.Last)
}

func TestCounterResetTotal(t *testing.T) {
	var c Counter
	c.Update(1000, time.Second)
	c.ResetTotal()
	assert.Equal(t, uint64(0), c.Total)

	c.Update(1500, time.Second)
	assert.Equal(t, uint64(500), c.Total)
	assert.Equal(t, uint64(500), c.Speed)

	// A wrap after the reset still counts from the reset point.
	c.Update(0, time.Second)
	c.Update(200, time.Second)
	assert.Equal(t, uint64(700), c.Total)
}

func TestCounterOffsetClearedWhenAboveCounter(t *testing.T) {
	c := Counter{Last: 10, Offset: 5000, primed: true}

	c.Update(100, time.Second)

	assert.Equal(t, uint64(0), c.Offset)
	assert.Equal(t, uint64(100), c.Total)
}

func TestCounterPrimed(t *testing.T) {
	var c Counter
	assert.False(t, c.Primed())
	c.Update(1, time.Second)
	assert.True(t, c.Primed())
}
