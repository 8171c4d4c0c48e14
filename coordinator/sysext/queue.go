/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package sysext

import (
	"context"
	"sync"
)

// Queue is a serial delivery queue.
// Functions are executed one at a time, in the order they were dispatched.
type Queue struct {
	mux     sync.Mutex
	pending []func()
	signal  chan struct{}
	done    chan struct{}
}

// NewQueue creates a new Queue. Call [Queue.Run] to start delivery.
func NewQueue() *Queue {
	return &Queue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Dispatch appends fn to the queue. It never blocks.
func (q *Queue) Dispatch(fn func()) {
	q.mux.Lock()
	q.pending = append(q.pending, fn)
	q.mux.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Run executes dispatched functions until ctx is cancelled.
// Run must only be called once.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.signal:
		}

		for fn := q.next(); fn != nil; fn = q.next() {
			fn()
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// Done returns a channel that is closed once [Queue.Run] returned.
// Functions dispatched after that are never executed.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) next() func() {
	q.mux.Lock()
	defer q.mux.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	fn := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return fn
}

// askReplacement dispatches a replacement decision to delegate and waits for the answer.
// It returns false if the queue stopped before the delegate answered.
func askReplacement(q *Queue, delegate Delegate, req Request, existing, ext Properties) (ReplacementAction, bool) {
	answer := make(chan ReplacementAction, 1)
	q.Dispatch(func() {
		answer <- delegate.ActionForReplacingExtension(req, existing, ext)
	})
	select {
	case action := <-answer:
		return action, true
	case <-q.Done():
		return ActionCancel, false
	}
}
