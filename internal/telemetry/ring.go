package telemetry

// Ring is a fixed-capacity circular buffer.
//
// Pushing into a full ring evicts the oldest element first. Ring is not safe
// for concurrent use; Store serialises access to it.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

// NewRing creates an empty ring holding at most capacity elements.
// It panics if capacity is less than 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic("telemetry: ring capacity must be positive")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. If the ring was full, the oldest element is evicted and
// returned with ok set to true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.size == len(r.buf) {
		evicted = r.buf[r.head]
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return evicted, true
	}

	r.buf[(r.head+r.size)%len(r.buf)] = v
	r.size++
	return evicted, false
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the maximum number of elements.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Tail returns a copy of the n most recent elements, oldest first.
// n is clamped to Len; n <= 0 returns an empty slice.
func (r *Ring[T]) Tail(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []T{}
	}

	out := make([]T, n)
	start := r.head + r.size - n
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Snapshot returns a copy of every element, oldest first.
func (r *Ring[T]) Snapshot() []T {
	return r.Tail(r.size)
}

// Clear removes every element. Capacity is unchanged.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.size = 0
}
