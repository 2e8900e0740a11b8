package ledger

// Lookup is the result of a best-effort external read: either a value or unavailable
type Lookup[T any] struct {
	value T
	ok    bool
}

// Found wraps a successfully read value
func Found[T any](value T) Lookup[T] {
	return Lookup[T]{value: value, ok: true}
}

// Unavailable marks a read that reverted or could not be made
func Unavailable[T any]() Lookup[T] {
	return Lookup[T]{}
}

// Get returns the value and whether it was read
func (l Lookup[T]) Get() (T, bool) {
	return l.value, l.ok
}

// OK reports whether the read succeeded
func (l Lookup[T]) OK() bool {
	return l.ok
}

// OrElse returns the value, or fallback when the read was unavailable
func (l Lookup[T]) OrElse(fallback T) T {
	if !l.ok {
		return fallback
	}
	return l.value
}
