package grid

import (
	"context"
	"sync"
)

// State describes the grid after an operation.
type State struct {
	TotalShow int
	TotalHide int
	Filter    string
	// Superseded is set when a newer filter was applied first, so this one
	// left the grid untouched.
	Superseded bool
}

// Future is the pending result of an asynchronous filter.
type Future struct {
	done     chan struct{}
	mu       sync.Mutex
	resolved bool
	state    State
	err      error
	then     []func(State, error)
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that has already settled.
func Resolved(state State, err error) *Future {
	f := newFuture()
	f.resolve(state, err)
	return f
}

// resolve settles the future. Continuations registered before it run first;
// Done closes after them.
func (f *Future) resolve(state State, err error) {
	f.mu.Lock()
	f.resolved = true
	f.state, f.err = state, err
	callbacks := f.then
	f.then = nil
	f.mu.Unlock()
	for _, fn := range callbacks {
		fn(state, err)
	}
	close(f.done)
}

// Then registers a continuation. It runs on the resolving goroutine, or
// immediately when the future is already resolved.
func (f *Future) Then(fn func(State, error)) *Future {
	f.mu.Lock()
	if f.resolved {
		state, err := f.state, f.err
		f.mu.Unlock()
		fn(state, err)
		return f
	}
	f.then = append(f.then, fn)
	f.mu.Unlock()
	return f
}

// Done is closed once the future resolves and its continuations have run.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (State, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.state, f.err
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}
