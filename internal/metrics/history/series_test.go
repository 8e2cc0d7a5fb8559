package history

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesKeepsMostRecent(t *testing.T) {
	s := NewSeries[int](3)
	for i := 1; i <= 5; i++ {
		s.Push(i)
	}

	assert.Equal(t, []int{3, 4, 5}, s.Values())
	assert.Equal(t, 3, s.Len())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last)
}

func TestSeriesBoundNeverExceeded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		limit := rng.Intn(20) + 1
		pushes := rng.Intn(100)
		s := NewSeries[float64](limit)

		var all []float64
		for i := 0; i < pushes; i++ {
			v := rng.Float64()
			all = append(all, v)
			s.Push(v)
			require.LessOrEqual(t, s.Len(), limit)
		}

		want := all
		if len(want) > limit {
			want = want[len(want)-limit:]
		}
		if len(want) == 0 {
			assert.Empty(t, s.Values())
			continue
		}
		assert.Equal(t, want, s.Values())
	}
}

func TestSeriesDefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NewSeries[int](0).Limit())
	assert.Equal(t, DefaultLimit, NewSeries[int](-4).Limit())
}

func TestSeriesValuesIsCopy(t *testing.T) {
	s := NewSeries[int](3)
	s.Push(1)
	v := s.Values()
	v[0] = 99

	last, _ := s.Last()
	assert.Equal(t, 1, last)
}

func TestSeriesReset(t *testing.T) {
	s := NewSeries[int](3)
	s.Push(1)
	s.Reset()

	_, ok := s.Last()
	assert.False(t, ok)
	assert.Equal(t, 3, s.Limit())
}
