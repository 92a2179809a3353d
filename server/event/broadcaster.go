// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-a2a/agenttask"
	"github.com/go-a2a/agenttask/internal/telemetry"
)

// DefaultCapacity is the default number of unread events a subscription may
// accumulate before it is closed with [agenttask.ErrOverflow].
const DefaultCapacity = 1024

// Broadcaster multiplexes the ordered event sequence of every task to any
// number of independent subscriptions.
//
// It is safe for concurrent use.
type Broadcaster struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool

	capacity  int
	retention time.Duration
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// Option configures a [Broadcaster].
type Option func(*Broadcaster)

// WithDefaultCapacity sets the capacity of subscriptions created without [WithCapacity].
func WithDefaultCapacity(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithReplayRetention bounds how long a terminal task keeps its full replay
// log for lagging subscriptions. When the window elapses, subscriptions that
// have not read the terminal event yet are closed with [agenttask.ErrOverflow]
// and the log is compacted.
//
// Zero, the default, waits for every subscription.
func WithReplayRetention(d time.Duration) Option {
	return func(b *Broadcaster) {
		b.retention = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Broadcaster) {
		b.metrics = m
	}
}

// NewBroadcaster creates a new [Broadcaster].
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		topics:   make(map[string]*topic),
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = telemetry.NewMetrics(nil)
	}
	return b
}

// topic is the per-task replay log and subscriber set.
//
// The event with sequence s is log[s-first]. When the log is empty first equals next.
type topic struct {
	taskID string

	mu       sync.Mutex
	log      []agenttask.Event
	first    uint64
	next     uint64
	subs     map[*Subscription]struct{}
	wake     chan struct{}
	terminal bool
	removed  bool
	timer    *time.Timer
}

func newTopic(taskID string) *topic {
	return &topic{
		taskID: taskID,
		first:  1,
		next:   1,
		subs:   make(map[*Subscription]struct{}),
		wake:   make(chan struct{}),
	}
}

// at returns the retained event with sequence seq.
func (t *topic) at(seq uint64) (agenttask.Event, bool) {
	if seq < t.first || seq >= t.next {
		return agenttask.Event{}, false
	}
	return t.log[seq-t.first], true
}

// notifyLocked wakes every subscription blocked in Next.
func (t *topic) notifyLocked() {
	close(t.wake)
	t.wake = make(chan struct{})
}

// compactLocked collapses the log of a terminal topic to its terminal event
// once no subscription still needs the older events.
func (t *topic) compactLocked() {
	if !t.terminal || len(t.subs) > 0 || len(t.log) <= 1 {
		return
	}
	last := t.log[len(t.log)-1]
	t.log = []agenttask.Event{last}
	t.first = last.Sequence
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// lookup returns the topic of taskID, creating it when create is set.
func (b *Broadcaster) lookup(taskID string, create bool) (*topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBroadcasterClosed
	}
	t, ok := b.topics[taskID]
	if !ok && create {
		t = newTopic(taskID)
		b.topics[taskID] = t
	}
	return t, nil
}

// Publish appends payload to the event sequence of taskID and wakes every
// subscription of the task. It never blocks on subscribers.
//
// Publishing after the terminal event of the task fails with [ErrStreamTerminated].
func (b *Broadcaster) Publish(ctx context.Context, taskID string, payload agenttask.Payload) (agenttask.Event, error) {
	ev := agenttask.Event{
		TaskID:  taskID,
		Payload: clonePayload(payload),
	}
	if err := ev.Validate(); err != nil {
		return agenttask.Event{}, &PublishError{TaskID: taskID, Err: err}
	}

	for {
		t, err := b.lookup(taskID, true)
		if err != nil {
			return agenttask.Event{}, &PublishError{TaskID: taskID, Err: err}
		}

		t.mu.Lock()
		if t.removed {
			// lost a race with Forget or the last Close, the next lookup creates a fresh topic
			t.mu.Unlock()
			continue
		}
		if t.terminal {
			t.mu.Unlock()
			return agenttask.Event{}, &PublishError{TaskID: taskID, Err: ErrStreamTerminated}
		}

		ev.Sequence = t.next
		ev.Timestamp = b.now().UTC()
		t.log = append(t.log, ev)
		t.next++

		var overflowed int
		for sub := range t.subs {
			if sub.unreadLocked(ev.Sequence) > uint64(sub.capacity) {
				sub.endLocked(agenttask.ErrOverflow)
				delete(t.subs, sub)
				overflowed++
			}
		}

		if ev.IsFinal() {
			t.terminal = true
			if b.retention > 0 && len(t.subs) > 0 {
				t.timer = time.AfterFunc(b.retention, func() { b.expire(t) })
			}
			t.compactLocked()
		}
		t.notifyLocked()
		t.mu.Unlock()

		for range overflowed {
			b.metrics.SubscriptionOverflowed(ctx)
			b.logger.WarnContext(ctx, "subscription overflowed", "task_id", taskID, "sequence", ev.Sequence)
		}
		return ev, nil
	}
}

// expire closes the subscriptions still lagging behind a terminal topic after
// the replay retention window.
func (b *Broadcaster) expire(t *topic) {
	t.mu.Lock()
	lagging := len(t.subs)
	for sub := range t.subs {
		sub.endLocked(agenttask.ErrOverflow)
		delete(t.subs, sub)
	}
	t.timer = nil
	t.compactLocked()
	t.mu.Unlock()

	ctx := context.Background()
	for range lagging {
		b.metrics.SubscriptionOverflowed(ctx)
	}
	if lagging > 0 {
		b.logger.WarnContext(ctx, "closed lagging subscriptions after replay retention",
			"task_id", t.taskID, "subscriptions", lagging, "retention", b.retention)
	}
}

// SubscribeOption configures a single [Subscription].
type SubscribeOption func(*Subscription)

// WithCapacity sets the number of unread events the subscription may
// accumulate before it overflows.
func WithCapacity(n int) SubscribeOption {
	return func(s *Subscription) {
		s.capacity = n
	}
}

// Subscribe attaches a new subscription to the event sequence of taskID.
//
// The subscription first replays the retained log of the task and then
// follows new events until the terminal one. The task does not need to exist.
func (b *Broadcaster) Subscribe(taskID string, opts ...SubscribeOption) (*Subscription, error) {
	sub := &Subscription{
		b:        b,
		taskID:   taskID,
		capacity: b.capacity,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(sub)
	}
	if sub.capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	for {
		t, err := b.lookup(taskID, true)
		if err != nil {
			return nil, err
		}

		t.mu.Lock()
		if t.removed {
			t.mu.Unlock()
			continue
		}
		sub.t = t
		sub.cursor = t.first
		sub.base = t.next - 1
		t.subs[sub] = struct{}{}
		t.mu.Unlock()

		b.logger.Debug("subscribed", "task_id", taskID, "from_sequence", sub.cursor)
		return sub, nil
	}
}

// detach removes sub from its topic, and the topic from the broadcaster when
// it is left empty.
func (b *Broadcaster) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := sub.t
	t.mu.Lock()
	defer t.mu.Unlock()

	sub.endLocked(ErrSubscriptionClosed)
	delete(t.subs, sub)
	t.compactLocked()
	if len(t.subs) == 0 && len(t.log) == 0 && !t.removed {
		t.removed = true
		if b.topics[t.taskID] == t {
			delete(b.topics, t.taskID)
		}
	}
}

// Forget drops the topic of taskID together with its retained log.
// Subscriptions still attached are closed with [agenttask.ErrOverflow].
func (b *Broadcaster) Forget(taskID string) {
	b.mu.Lock()
	t, ok := b.topics[taskID]
	if ok {
		delete(b.topics, taskID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.removed = true
	for sub := range t.subs {
		sub.endLocked(agenttask.ErrOverflow)
		delete(t.subs, sub)
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.log = nil
}

// Close closes every subscription with [ErrBroadcasterClosed] and rejects
// further Publish and Subscribe calls.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]*topic)
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		t.removed = true
		for sub := range t.subs {
			sub.endLocked(ErrBroadcasterClosed)
			delete(t.subs, sub)
		}
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.mu.Unlock()
	}
}

// Stats holds statistics about the broadcaster.
type Stats struct {
	Topics         int
	TerminalTopics int
	Subscriptions  int
	RetainedEvents int
}

// Stats returns a snapshot of the broadcaster statistics.
func (b *Broadcaster) Stats() Stats {
	b.mu.Lock()
	topics := make([]*topic, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.mu.Unlock()

	st := Stats{Topics: len(topics)}
	for _, t := range topics {
		t.mu.Lock()
		if t.terminal {
			st.TerminalTopics++
		}
		st.Subscriptions += len(t.subs)
		st.RetainedEvents += len(t.log)
		t.mu.Unlock()
	}
	return st
}

// clonePayload copies the artifact of an artifact_appended payload so later
// changes by the publisher never reach subscribers.
func clonePayload(p agenttask.Payload) agenttask.Payload {
	switch p := p.(type) {
	case *agenttask.StatusChanged:
		c := *p
		return &c
	case *agenttask.ArtifactAppended:
		return &agenttask.ArtifactAppended{Artifact: p.Artifact.Clone()}
	}
	return p
}
