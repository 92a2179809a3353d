// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/go-a2a/agenttask"
)

// Subscription is one consumer's view onto the event sequence of a task.
//
// A Subscription is owned by a single consumer; Next must not be called
// concurrently. Close may be called from any goroutine, any number of times.
type Subscription struct {
	b        *Broadcaster
	t        *topic
	taskID   string
	capacity int

	// guarded by t.mu
	cursor uint64 // next sequence to deliver
	base   uint64 // last sequence published before the subscription attached
	err    error
	done   chan struct{}
}

// TaskID returns the ID of the task the subscription is bound to.
func (s *Subscription) TaskID() string {
	return s.taskID
}

// Capacity returns the number of unread events the subscription may accumulate.
func (s *Subscription) Capacity() int {
	return s.capacity
}

// Done returns a channel that is closed once the subscription ended, for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscription was torn down: [agenttask.ErrOverflow],
// [ErrSubscriptionClosed] or [ErrBroadcasterClosed]. It returns nil while the
// subscription is live and after it delivered the terminal event.
func (s *Subscription) Err() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}

// unreadLocked returns how many events up to seq were published after the
// subscription attached and have not been delivered yet.
func (s *Subscription) unreadLocked(seq uint64) uint64 {
	read := max(s.cursor-1, s.base)
	if seq <= read {
		return 0
	}
	return seq - read
}

// endLocked ends the subscription with err unless it already ended.
func (s *Subscription) endLocked(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	close(s.done)
}

// Next blocks until the next event of the task is available and returns it.
//
// After the terminal event was returned Next returns [io.EOF]. A torn down
// subscription returns [agenttask.ErrOverflow], [ErrSubscriptionClosed] or
// [ErrBroadcasterClosed]; a done ctx returns ctx.Err() and leaves the
// subscription usable.
func (s *Subscription) Next(ctx context.Context) (agenttask.Event, error) {
	t := s.t
	for {
		t.mu.Lock()
		if s.err != nil {
			err := s.err
			t.mu.Unlock()
			return agenttask.Event{}, err
		}
		if ev, ok := t.at(s.cursor); ok {
			s.cursor++
			if ev.IsFinal() {
				s.endLocked(io.EOF)
				delete(t.subs, s)
				t.compactLocked()
			}
			t.mu.Unlock()
			return ev, nil
		}
		wake := t.wake
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return agenttask.Event{}, ctx.Err()
		case <-s.done:
		case <-wake:
		}
	}
}

// All returns an iterator over the remaining events of the subscription.
//
// The iteration stops after the terminal event. Any other end of the
// subscription, or a done ctx, is yielded once as a non-nil error.
func (s *Subscription) All(ctx context.Context) iter.Seq2[agenttask.Event, error] {
	return func(yield func(agenttask.Event, error) bool) {
		for {
			ev, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(agenttask.Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Close detaches the subscription from its task. It is safe to call at any
// time, including after the subscription already ended.
func (s *Subscription) Close() {
	s.b.detach(s)
}
