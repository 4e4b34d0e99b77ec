package queue

// Ring is a fixed-capacity sequence that evicts its oldest element when
// full. It is not safe for concurrent use; callers hold their own locks.
type Ring[T any] struct {
	items []T
	start int
	count int
}

// NewRing creates a Ring with the given capacity. Capacity must be
// positive; non-positive values get a capacity of 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Append adds an item, evicting the oldest if the ring is full.
func (r *Ring[T]) Append(item T) {
	if r.count < len(r.items) {
		r.items[(r.start+r.count)%len(r.items)] = item
		r.count++
		return
	}
	r.items[r.start] = item
	r.start = (r.start + 1) % len(r.items)
}

// Len returns the number of items currently held.
func (r *Ring[T]) Len() int {
	return r.count
}

// At returns the item at position i, oldest first.
func (r *Ring[T]) At(i int) T {
	return r.items[(r.start+i)%len(r.items)]
}

// Slice returns the held items oldest first as a fresh slice.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.At(i)
	}
	return out
}

// DropWhile removes items from the front while keep returns false,
// stopping at the first item it keeps.
func (r *Ring[T]) DropWhile(drop func(T) bool) {
	for r.count > 0 && drop(r.items[r.start]) {
		var zero T
		r.items[r.start] = zero
		r.start = (r.start + 1) % len(r.items)
		r.count--
	}
}
