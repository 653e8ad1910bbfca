// Package history provides fixed-capacity FIFO windows over recent
// observations. Windows never grow past their declared capacity; the
// oldest entry is evicted on overflow.
package history

// #region window

// Window is a bounded FIFO of recent values.
type Window[T any] struct {
	capacity int
	items    []T
}

// New creates a Window with the given capacity. Capacity below 1 is
// treated as 1.
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{
		capacity: capacity,
		items:    make([]T, 0, capacity),
	}
}

// #endregion window

// #region push

// Push appends v, evicting the oldest entry when the window is full.
func (w *Window[T]) Push(v T) {
	if len(w.items) == w.capacity {
		copy(w.items, w.items[1:])
		w.items[len(w.items)-1] = v
		return
	}
	w.items = append(w.items, v)
}

// #endregion push

// #region accessors

// Len returns the number of stored values.
func (w *Window[T]) Len() int { return len(w.items) }

// Cap returns the declared capacity.
func (w *Window[T]) Cap() int { return w.capacity }

// Full reports whether the window holds capacity values.
func (w *Window[T]) Full() bool { return len(w.items) == w.capacity }

// Values returns a copy of the stored values, oldest first.
func (w *Window[T]) Values() []T {
	out := make([]T, len(w.items))
	copy(out, w.items)
	return out
}

// Last returns the most recent value, if any.
func (w *Window[T]) Last() (T, bool) {
	if len(w.items) == 0 {
		var zero T
		return zero, false
	}
	return w.items[len(w.items)-1], true
}

// #endregion accessors

// #region restore

// Restore replaces the contents with vals, keeping only the newest
// capacity entries when vals is longer than the window.
func (w *Window[T]) Restore(vals []T) {
	if len(vals) > w.capacity {
		vals = vals[len(vals)-w.capacity:]
	}
	w.items = w.items[:0]
	w.items = append(w.items, vals...)
}

// Clear empties the window without changing its capacity.
func (w *Window[T]) Clear() {
	w.items = w.items[:0]
}

// #endregion restore
