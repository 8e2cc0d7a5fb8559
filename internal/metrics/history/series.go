// Package history holds the bounded sample series every metric is graphed from.
package history

// DefaultLimit is used when a series is created with a non-positive bound.
const DefaultLimit = 60

// Series is an ordered, bounded sequence of samples. Once the bound is
// reached the oldest samples are evicted from the front. A Series is owned by
// the entity it measures and is not safe for concurrent use.
type Series[T any] struct {
	limit  int
	values []T
}

// NewSeries creates an empty series holding at most limit samples.
func NewSeries[T any](limit int) *Series[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Series[T]{
		limit:  limit,
		values: make([]T, 0, limit),
	}
}

// Push appends v, evicting from the front while the bound is exceeded.
func (s *Series[T]) Push(v T) {
	s.values = append(s.values, v)
	s.trim()
}

func (s *Series[T]) trim() {
	if len(s.values) > s.limit {
		s.values = s.values[len(s.values)-s.limit:]
	}
}

// Values returns a copy of the samples, oldest first.
func (s *Series[T]) Values() []T {
	out := make([]T, len(s.values))
	copy(out, s.values)
	return out
}

// Last returns the newest sample.
func (s *Series[T]) Last() (T, bool) {
	if len(s.values) == 0 {
		var zero T
		return zero, false
	}
	return s.values[len(s.values)-1], true
}

func (s *Series[T]) Len() int   { return len(s.values) }
func (s *Series[T]) Limit() int { return s.limit }

// Reset drops every sample but keeps the bound.
func (s *Series[T]) Reset() {
	s.values = s.values[:0]
}
