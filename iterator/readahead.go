package iterator

import (
	"context"
	"io"
)

type maybeValue[T any] struct {
	value T
	err   error
}

// Readahead pulls from an iterator on a background goroutine and buffers up to
// bufferSize elements. The background pull stops after the first error or
// io.EOF.
type Readahead[T any] struct {
	it      Iterator[T]
	release func(T)

	buffer chan maybeValue[T]
	done   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewReadahead starts reading ahead from it. release is called on buffered
// elements that are discarded by Close; it may be nil.
func NewReadahead[T any](it Iterator[T], bufferSize int, release func(T)) *Readahead[T] {
	r := &Readahead[T]{
		it:      it,
		release: release,
		buffer:  make(chan maybeValue[T], bufferSize),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	go r.pull()

	return r
}

func (r *Readahead[T]) Next() (T, error) {
	next, ok := <-r.buffer
	if !ok {
		var zero T
		return zero, io.EOF
	}
	return next.value, next.err
}

func (r *Readahead[T]) pull() {
	defer close(r.buffer)
	for r.ctx.Err() == nil {
		v, err := r.it.Next()
		select {
		case <-r.ctx.Done():
			if err == nil && r.release != nil {
				r.release(v)
			}
			return
		case r.buffer <- maybeValue[T]{value: v, err: err}:
		}
		if err != nil {
			return
		}
	}
}

// Close stops the background goroutine, releases buffered elements and
// closes the underlying iterator.
func (r *Readahead[T]) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	r.cancel()
	for next := range r.buffer {
		if next.err == nil && r.release != nil {
			r.release(next.value)
		}
	}
	return r.it.Close()
}
