package framing

import "context"

// Pending is the completion handle for a single in-flight operation. It
// resolves exactly once, with either a value or an error, and never both;
// after resolution the outcome is immutable and can be read any number of
// times.
type Pending[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newPending[T any]() *Pending[T] {
	return &Pending[T]{done: make(chan struct{})}
}

// resolve publishes the outcome and wakes every waiter. It must be called
// exactly once, by the goroutine driving the operation.
func (p *Pending[T]) resolve(value T, err error) {
	p.value = value
	p.err = err
	close(p.done)
}

// Done returns a channel that is closed once the operation has resolved.
// It is intended for use in select statements.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Result blocks until the operation resolves and returns its outcome.
func (p *Pending[T]) Result() (T, error) {
	<-p.done
	return p.value, p.err
}

// Wait is Result bounded by a context: it returns the outcome, or
// ctx.Err() if the context expires first. The operation itself keeps
// running either way; Wait abandons the wait, not the I/O.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
