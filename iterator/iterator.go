// Package iterator implements pull-based, possibly fallible lazy sequences.
//
// An Iterator yields one element per call to Next. A nil error means the
// returned value is an element of the sequence, io.EOF means the sequence is
// exhausted and any other error is an error element. Whether iteration may
// continue after an error element depends on the producer: Flatten keeps
// going, Fuse does not.
package iterator

import (
	"io"
)

type Iterator[T any] interface {
	io.Closer
	Next() (T, error)
}

type sliceIterator[T any] struct {
	items []T
}

// FromSlice returns an iterator over items. The slice is not copied.
func FromSlice[T any](items ...T) Iterator[T] {
	return &sliceIterator[T]{items: items}
}

func (s *sliceIterator[T]) Next() (T, error) {
	var zero T
	if len(s.items) == 0 {
		return zero, io.EOF
	}
	item := s.items[0]
	s.items[0] = zero
	s.items = s.items[1:]
	return item, nil
}

func (s *sliceIterator[T]) Close() error {
	s.items = nil
	return nil
}

// Empty returns an exhausted iterator.
func Empty[T any]() Iterator[T] {
	return FromSlice[T]()
}

type funcIterator[T any] struct {
	next  func() (T, error)
	close func() error
}

// Func adapts a pair of functions to an Iterator. close may be nil.
func Func[T any](next func() (T, error), close func() error) Iterator[T] {
	return &funcIterator[T]{next: next, close: close}
}

func (f *funcIterator[T]) Next() (T, error) { return f.next() }

func (f *funcIterator[T]) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}

type mapIterator[T, U any] struct {
	it Iterator[T]
	fn func(T) U
}

// Map applies fn to every element of it. Error elements pass through unchanged.
func Map[T, U any](it Iterator[T], fn func(T) U) Iterator[U] {
	return &mapIterator[T, U]{it: it, fn: fn}
}

func (m *mapIterator[T, U]) Next() (U, error) {
	v, err := m.it.Next()
	if err != nil {
		var zero U
		return zero, err
	}
	return m.fn(v), nil
}

func (m *mapIterator[T, U]) Close() error { return m.it.Close() }

type maybeMapIterator[T, U any] struct {
	it Iterator[T]
	fn func(T) (U, error)
}

// MaybeMap applies a fallible fn to every element of it. A failure of fn is
// yielded as an error element in place of the mapped value.
func MaybeMap[T, U any](it Iterator[T], fn func(T) (U, error)) Iterator[U] {
	return &maybeMapIterator[T, U]{it: it, fn: fn}
}

func (m *maybeMapIterator[T, U]) Next() (U, error) {
	v, err := m.it.Next()
	if err != nil {
		var zero U
		return zero, err
	}
	return m.fn(v)
}

func (m *maybeMapIterator[T, U]) Close() error { return m.it.Close() }

type fuseIterator[T any] struct {
	it   Iterator[T]
	done bool
}

// Fuse ends the sequence at the first error element: the error is yielded
// once and every later call returns io.EOF without pulling from it again.
func Fuse[T any](it Iterator[T]) Iterator[T] {
	return &fuseIterator[T]{it: it}
}

func (f *fuseIterator[T]) Next() (T, error) {
	var zero T
	if f.done {
		return zero, io.EOF
	}
	v, err := f.it.Next()
	if err != nil {
		f.done = true
		return zero, err
	}
	return v, nil
}

func (f *fuseIterator[T]) Close() error {
	f.done = true
	return f.it.Close()
}

type flattenIterator[T any] struct {
	outer   Iterator[Iterator[T]]
	current Iterator[T]
	done    bool
}

// Flatten concatenates a sequence of sequences. The current inner sequence is
// drained before the next one is pulled from outer. Error elements of either
// level are yielded in place and iteration continues afterwards; an inner
// sequence is closed as soon as it is exhausted.
func Flatten[T any](outer Iterator[Iterator[T]]) Iterator[T] {
	return &flattenIterator[T]{outer: outer}
}

func (f *flattenIterator[T]) Next() (T, error) {
	var zero T
	for !f.done {
		if f.current == nil {
			inner, err := f.outer.Next()
			if err == io.EOF {
				f.done = true
				break
			}
			if err != nil {
				return zero, err
			}
			f.current = inner
		}

		v, err := f.current.Next()
		if err == io.EOF {
			closeErr := f.current.Close()
			f.current = nil
			if closeErr != nil {
				return zero, closeErr
			}
			continue
		}
		return v, err
	}
	return zero, io.EOF
}

func (f *flattenIterator[T]) Close() error {
	f.done = true
	var lastErr error
	if f.current != nil {
		lastErr = f.current.Close()
		f.current = nil
	}
	if err := f.outer.Close(); err != nil {
		lastErr = err
	}
	return lastErr
}

// Collect drains it and closes it. The first error element aborts collection.
func Collect[T any](it Iterator[T]) ([]T, error) {
	defer it.Close()

	var items []T
	for {
		v, err := it.Next()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, v)
	}
}

// ForEach calls fn for every element until the sequence ends, an error
// element is seen or fn fails. The iterator is not closed.
func ForEach[T any](it Iterator[T], fn func(T) error) error {
	for {
		v, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}
