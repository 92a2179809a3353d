// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package event provides the per-task event broadcaster.
//
// A [Broadcaster] keeps one topic per task ID. Every topic owns an ordered
// replay log of the events published for its task and any number of
// [Subscription]s, each with its own read cursor.
//
// # Ordering
//
// Publish assigns the next sequence number of the task, starting at 1. Every
// subscription delivers events strictly in sequence order, without gaps and
// without duplicates, regardless of how fast the other subscriptions read.
//
// # Late subscribers
//
// Subscribing never fails because of the task state:
//
//   - for a task that does not exist yet the subscription waits for its first event,
//   - for a running task the retained log is replayed and then followed,
//   - for a finished task the retained terminal event is delivered and the
//     subscription ends.
//
// Once a task is terminal and every attached subscription has read the
// terminal event (or detached), the log is compacted down to the terminal
// event alone.
//
// # Backpressure
//
// Publish never blocks. A subscription that falls more than its capacity of
// events behind is closed with [agenttask.ErrOverflow]; the task is not affected.
//
// # Usage
//
//	sub, err := b.Subscribe(taskID)
//	if err != nil {
//	    return err
//	}
//	defer sub.Close()
//
//	for ev, err := range sub.All(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    switch p := ev.Payload.(type) {
//	    case *agenttask.StatusChanged:
//	        // ...
//	    case *agenttask.ArtifactAppended:
//	        // ...
//	    }
//	}
package event
