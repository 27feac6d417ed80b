package batcher

import "context"

// Result is the outcome of the flush cycle an item joined. It resolves
// once that cycle's callback has settled.
type Result struct {
	done chan struct{}
	err  error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

func resolved(err error) *Result {
	r := newResult()
	r.resolve(err)
	return r
}

func (r *Result) resolve(err error) {
	r.err = err
	close(r.done)
}

// Done is closed when the result is available
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Err returns the flush error. It is only meaningful after Done is closed.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the item's flush cycle settles or ctx is done. The
// item is not withdrawn when ctx ends first.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
