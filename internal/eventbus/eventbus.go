// Package eventbus broadcasts job state changes to any number of
// subscribers with bounded memory per subscriber: a fan-out of
// per-subscriber buffered channels, each fed by its own pump goroutine
// that blocks on delivery rather than dropping it, the same
// slow-reader-must-not-block-the-publisher shape tarsy's connection
// manager uses for WebSocket fan-out.
package eventbus

import (
	"sync"

	"github.com/stellarlinkco/agentdeck/internal/domain"
)

// EventKind tags a published event.
type EventKind string

const (
	EventSnapshot EventKind = "snapshot"
	EventJobDelta EventKind = "job"
)

// Event is one message delivered to a subscriber.
type Event struct {
	Kind EventKind
	Jobs []*domain.Job // populated for EventSnapshot
	Job  *domain.Job   // populated for EventJobDelta
}

// defaultQueueSize bounds how many delivered events a slow subscriber's
// channel can hold before its pump goroutine starts blocking on send.
const defaultQueueSize = 64

// Bus fans job-state events out to subscribers. The zero value is not
// usable; construct with New.
type Bus struct {
	queueSize int

	mu   sync.Mutex
	subs map[int]*subscriber
	next int

	jobsMu sync.Mutex
	jobs   map[string]*domain.Job
	order  []string
}

// subscriber coalesces publisher-side updates into pending state guarded
// by mu, and wakes pump via notify; pump is the only goroutine that ever
// sends on out, so a blocked slow reader stalls only this subscriber's
// pump, never PublishDelta/PublishSnapshot.
type subscriber struct {
	mu           sync.Mutex
	pending      map[string]*domain.Job // jobId -> latest undelivered delta, coalesced
	pendingOrder []string // jobIds in first-queued order
	wantSnapshot bool
	snapshotJobs []*domain.Job
	closed       bool

	notify chan struct{}
	stopCh chan struct{}
	out    chan Event
}

// New creates an empty Bus. queueSize bounds the channel each subscriber
// is handed; non-positive values fall back to a sane default.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{
		queueSize: queueSize,
		subs:      make(map[int]*subscriber),
		jobs:      make(map[string]*domain.Job),
	}
}

// PublishDelta records job's latest state and notifies every subscriber.
func (b *Bus) PublishDelta(job *domain.Job) {
	if b == nil || job == nil {
		return
	}
	clone := job.Clone()

	b.jobsMu.Lock()
	if _, ok := b.jobs[clone.ID]; !ok {
		b.order = append(b.order, clone.ID)
	}
	b.jobs[clone.ID] = clone
	b.jobsMu.Unlock()

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.deliverDelta(clone)
	}
}

// PublishSnapshot forces every subscriber to receive a fresh full snapshot,
// discarding any pending coalesced deltas. Used after a truncation or a
// bulk mutation where per-job deltas would be misleading.
func (b *Bus) PublishSnapshot() {
	if b == nil {
		return
	}
	jobs := b.snapshotJobs()

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.deliverSnapshot(jobs)
	}
}

func (b *Bus) snapshotJobs() []*domain.Job {
	b.jobsMu.Lock()
	defer b.jobsMu.Unlock()
	out := make([]*domain.Job, 0, len(b.order))
	for _, id := range b.order {
		if j, ok := b.jobs[id]; ok {
			out = append(out, j)
		}
	}
	return out
}

// Subscribe registers a new subscriber, immediately enqueuing a snapshot of
// all known jobs, and starts its pump goroutine. The returned channel is
// never closed, not even by Unsubscribe; callers stop reading from it and
// call Unsubscribe when done.
func (b *Bus) Subscribe() (id int, events <-chan Event) {
	s := &subscriber{
		pending: make(map[string]*domain.Job),
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		out:     make(chan Event, b.queueSize),
	}
	go s.pump()

	b.mu.Lock()
	id = b.next
	b.next++
	b.subs[id] = s
	b.mu.Unlock()

	s.deliverSnapshot(b.snapshotJobs())
	return id, s.out
}

// Unsubscribe removes a subscriber and stops its pump. Idempotent:
// unsubscribing twice or an unknown id is a no-op.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	s, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.stopCh)
}

func (s *subscriber) deliverSnapshot(jobs []*domain.Job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wantSnapshot = true
	s.snapshotJobs = jobs
	s.pending = make(map[string]*domain.Job)
	s.pendingOrder = nil
	s.mu.Unlock()
	s.wake()
}

func (s *subscriber) deliverDelta(job *domain.Job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, queued := s.pending[job.ID]; !queued {
		s.pendingOrder = append(s.pendingOrder, job.ID)
	}
	s.pending[job.ID] = job
	s.mu.Unlock()
	s.wake()
}

// wake signals pump without blocking; a second wake before pump consumes
// the first is a harmless no-op, since pump always drains fully before
// waiting on notify again.
func (s *subscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// nextEvent pops the next event pump should deliver, reporting whether
// one is queued. A pending snapshot always wins and clears any queued
// deltas, since it already reflects their latest state.
func (s *subscriber) nextEvent() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wantSnapshot {
		jobs := s.snapshotJobs
		s.wantSnapshot = false
		s.snapshotJobs = nil
		return Event{Kind: EventSnapshot, Jobs: jobs}, true
	}
	if len(s.pendingOrder) == 0 {
		return Event{}, false
	}
	id := s.pendingOrder[0]
	s.pendingOrder = s.pendingOrder[1:]
	job := s.pending[id]
	delete(s.pending, id)
	return Event{Kind: EventJobDelta, Job: job}, true
}

// pump is the subscriber's dedicated writer goroutine: it is the only
// goroutine that ever sends on out, so it can block on a slow reader
// without blocking PublishDelta/PublishSnapshot for anyone else. It
// drains every queued event before waiting on notify again, so a delta
// coalesced while pump was busy is never stranded once pump idles.
func (s *subscriber) pump() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.notify:
		}
		for {
			ev, ok := s.nextEvent()
			if !ok {
				break
			}
			select {
			case s.out <- ev:
			case <-s.stopCh:
				return
			}
		}
	}
}
