// Package workerpool provides the bounded goroutine pool agent
// workers lease from. The pool is an explicit dependency injected
// into agent construction so tests can bound and observe it.
package workerpool

import (
	"errors"
	"sync/atomic"
)

// DefaultMaxWorkers bounds the pool when no size is configured.
const DefaultMaxWorkers = 32

// ErrPoolExhausted is returned by TryGo when every slot is leased.
var ErrPoolExhausted = errors.New("workerpool: all workers busy")

// Pool is a bounded goroutine pool. Go blocks until a slot frees;
// TryGo fails fast.
type Pool struct {
	sem    chan struct{}
	active atomic.Int64
}

// New creates a pool with at most maxWorkers concurrent goroutines.
// A non-positive size selects DefaultMaxWorkers.
func New(maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Pool{sem: make(chan struct{}, maxWorkers)}
}

// Go runs fn on a pooled goroutine, blocking until a slot is
// available.
func (p *Pool) Go(fn func()) {
	p.sem <- struct{}{}
	p.active.Add(1)
	go func() {
		defer func() {
			p.active.Add(-1)
			<-p.sem
		}()
		fn()
	}()
}

// TryGo runs fn if a slot is free, otherwise returns
// ErrPoolExhausted.
func (p *Pool) TryGo(fn func()) error {
	select {
	case p.sem <- struct{}{}:
	default:
		return ErrPoolExhausted
	}
	p.active.Add(1)
	go func() {
		defer func() {
			p.active.Add(-1)
			<-p.sem
		}()
		fn()
	}()
	return nil
}

// Active returns the number of currently leased workers.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Cap returns the pool bound.
func (p *Pool) Cap() int {
	return cap(p.sem)
}
