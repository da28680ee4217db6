// Package jobmanager accepts run requests, owns the set of jobs, and
// executes their tests on a bounded worker pool. Job-state mutation is
// serialized through a single dispatcher goroutine — an actor reached by
// posting closures over a channel — so no mutex ever guards a Job
// directly; a long-lived, subscribable scheduler rather than a single
// parallel-for over test cases.
package jobmanager

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/agentdeck/internal/discovery"
	"github.com/stellarlinkco/agentdeck/internal/domain"
	"github.com/stellarlinkco/agentdeck/internal/eventbus"
	"github.com/stellarlinkco/agentdeck/internal/history"
	"github.com/stellarlinkco/agentdeck/internal/pipeline"
)

// DiscoverySource is the subset of discovery.Provider the job manager
// depends on: enumerate tests, invalidate the cache, and look up a case
// function by qualified name.
type DiscoverySource interface {
	discovery.Provider
	discovery.CaseLookup
}

// Config configures a Manager. Zero values fall back to sane defaults.
type Config struct {
	Workers int // default runtime.NumCPU()
}

type task struct {
	jobID      string
	descriptor domain.TestDescriptor
}

// state is the dispatcher's private job table. Only the dispatcher
// goroutine ever touches it.
type state struct {
	jobs  map[string]*domain.Job
	order []string // insertion order, oldest first
}

// Manager schedules and tracks test-run jobs.
type Manager struct {
	discovery DiscoverySource
	history   *history.Store
	bus       *eventbus.Bus
	exec      *pipeline.Executor

	workers int
	tasks   chan task
	cmd     chan func(*state)

	reloadMu sync.Mutex
	reloaded map[string]bool

	workerWg   sync.WaitGroup
	dispatchWg sync.WaitGroup

	closeMu sync.RWMutex // guards tasks against a send racing its close in Close
	closed  bool
}

// New creates a Manager and starts its dispatcher and worker pool. Call
// Close to stop them.
func New(disc DiscoverySource, hist *history.Store, bus *eventbus.Bus, exec *pipeline.Executor, cfg Config) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers <= 0 {
		workers = 1
	}

	m := &Manager{
		discovery: disc,
		history:   hist,
		bus:       bus,
		exec:      exec,
		workers:   workers,
		tasks:     make(chan task, 1024),
		cmd:       make(chan func(*state), 256),
		reloaded:  make(map[string]bool),
	}

	m.dispatchWg.Add(1)
	go m.runDispatcher()

	m.workerWg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.runWorker()
	}

	return m
}

// Close stops the worker pool and dispatcher. In-flight tasks run to
// completion; no new tasks are accepted afterward. The dispatcher keeps
// draining m.cmd until every worker has returned, so a worker's in-flight
// sync call (setTestStatus, completeTest) is never left posting to a
// channel nobody reads. closeMu's write lock waits out any CreateJob
// call already past the closed check and mid-enqueue, so m.tasks is
// never closed while something is still sending to it.
func (m *Manager) Close() {
	m.closeMu.Lock()
	m.closed = true
	close(m.tasks)
	m.closeMu.Unlock()

	m.workerWg.Wait()
	close(m.cmd)
	m.dispatchWg.Wait()
}

func (m *Manager) runDispatcher() {
	defer m.dispatchWg.Done()
	s := &state{jobs: make(map[string]*domain.Job)}
	for fn := range m.cmd {
		fn(s)
	}
}

// sync posts fn to the dispatcher and blocks until it has run.
func (m *Manager) sync(fn func(*state)) {
	done := make(chan struct{})
	m.cmd <- func(s *state) {
		fn(s)
		close(done)
	}
	<-done
}

// CreateJob starts a new job. An empty or nil tests list means "every
// test in the current discovery snapshot". Unknown names produce a
// failed job with no tasks enqueued, per the dispatcher-level-error
// contract.
func (m *Manager) CreateJob(ctx context.Context, tests []string) (*domain.Job, error) {
	snap, err := m.discovery.ListTests(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobmanager: discovery: %w", err)
	}

	byName := make(map[string]domain.TestDescriptor, len(snap.Tests))
	for _, d := range snap.Tests {
		byName[d.QualifiedName] = d
	}

	var selected []domain.TestDescriptor
	var unknownErr string
	if len(tests) == 0 {
		selected = append(selected, snap.Tests...)
	} else {
		for _, name := range tests {
			d, ok := byName[name]
			if !ok {
				unknownErr = fmt.Sprintf("unknown test %q", name)
				break
			}
			selected = append(selected, d)
		}
	}

	now := time.Now()
	job := &domain.Job{
		ID:           uuid.NewString(),
		Tests:        make([]string, len(selected)),
		CreatedAt:    now,
		UpdatedAt:    now,
		TestStatuses: make(map[string]domain.TestStatus, len(selected)),
	}
	for i, d := range selected {
		job.Tests[i] = d.QualifiedName
	}

	if unknownErr != "" {
		job.Status = domain.JobFailed
		job.ErrorText = unknownErr
	} else {
		job.Status = domain.JobQueued
		for _, d := range selected {
			job.TestStatuses[d.QualifiedName] = domain.StatusQueued
		}
	}

	m.sync(func(s *state) {
		s.jobs[job.ID] = job
		s.order = append(s.order, job.ID)
	})
	m.bus.PublishDelta(job)

	log := slog.With("job_id", job.ID)
	if unknownErr == "" {
		log.Info("job created", "test_count", len(selected))
		m.closeMu.RLock()
		if !m.closed {
			for _, d := range selected {
				m.tasks <- task{jobID: job.ID, descriptor: d}
			}
		} else {
			log.Warn("job accepted during shutdown; tasks not enqueued")
		}
		m.closeMu.RUnlock()
	} else {
		log.Warn("job rejected", "error", unknownErr)
	}

	return job.Clone(), nil
}

// ListJobs returns all jobs, most recently created first.
func (m *Manager) ListJobs() []*domain.Job {
	var out []*domain.Job
	m.sync(func(s *state) {
		out = make([]*domain.Job, 0, len(s.order))
		for i := len(s.order) - 1; i >= 0; i-- {
			if j, ok := s.jobs[s.order[i]]; ok {
				out = append(out, j.Clone())
			}
		}
	})
	return out
}

// GetJob returns one job by id, or false if unknown.
func (m *Manager) GetJob(id string) (*domain.Job, bool) {
	var out *domain.Job
	var ok bool
	m.sync(func(s *state) {
		j, found := s.jobs[id]
		if found {
			out, ok = j.Clone(), true
		}
	})
	return out, ok
}

// Subscribe registers an event-bus subscriber for job snapshots/deltas.
func (m *Manager) Subscribe() (id int, events <-chan eventbus.Event) {
	return m.bus.Subscribe()
}

// Unsubscribe removes a subscriber registered via Subscribe.
func (m *Manager) Unsubscribe(id int) {
	m.bus.Unsubscribe(id)
}

func (m *Manager) runWorker() {
	defer m.workerWg.Done()
	for t := range m.tasks {
		m.runTask(t)
	}
}

func (m *Manager) runTask(t task) {
	ctx := context.Background()
	log := slog.With("job_id", t.jobID, "qualified_name", t.descriptor.QualifiedName)

	m.reloadBeforeFirstTask(ctx, t.jobID, log)

	m.setTestStatus(t.jobID, t.descriptor.QualifiedName, domain.StatusRunning)

	caseFn, ok := m.discovery.Case(t.descriptor.QualifiedName)
	var result domain.TestResult
	if !ok {
		log.Warn("test no longer present in discovery cache")
		result = domain.TestResult{
			QualifiedName: t.descriptor.QualifiedName,
			Module:        t.descriptor.Module,
			Name:          t.descriptor.Name,
			Passed:        false,
			ErrorType:     domain.ErrorUnexpected,
			ErrorText:     "test no longer present in discovery cache",
			CompletedAt:   time.Now(),
		}
	} else {
		r, err := m.exec.Run(ctx, t.descriptor, caseFn)
		if err != nil {
			log.Error("test execution failed", "error", err)
			r = domain.TestResult{
				QualifiedName: t.descriptor.QualifiedName,
				Module:        t.descriptor.Module,
				Name:          t.descriptor.Name,
				Passed:        false,
				ErrorType:     domain.ErrorUnexpected,
				ErrorText:     err.Error(),
				CompletedAt:   time.Now(),
			}
		}
		result = r
	}

	if m.history != nil {
		if err := m.history.Append(t.descriptor.QualifiedName, result); err != nil {
			log.Error("history append failed", "error", err)
		}
	}

	status := domain.StatusPassed
	if !result.Passed {
		status = domain.StatusFailed
	}
	log.Info("test completed", "passed", result.Passed, "error_type", result.ErrorType)
	m.completeTest(t.jobID, status, result)
}

// reloadBeforeFirstTask invokes Discovery.reload() once per job, the
// first time any of its tasks is dequeued.
func (m *Manager) reloadBeforeFirstTask(ctx context.Context, jobID string, log *slog.Logger) {
	m.reloadMu.Lock()
	if m.reloaded[jobID] {
		m.reloadMu.Unlock()
		return
	}
	m.reloaded[jobID] = true
	m.reloadMu.Unlock()

	if err := m.discovery.Reload(ctx); err != nil {
		log.Warn("discovery reload failed", "error", err)
	}
}

func (m *Manager) setTestStatus(jobID, qualifiedName string, status domain.TestStatus) {
	var published *domain.Job
	m.sync(func(s *state) {
		j, ok := s.jobs[jobID]
		if !ok {
			return
		}
		j.TestStatuses[qualifiedName] = status
		j.UpdatedAt = time.Now()
		j.DeriveStatus()
		published = j.Clone()
	})
	if published != nil {
		m.bus.PublishDelta(published)
	}
}

func (m *Manager) completeTest(jobID string, status domain.TestStatus, result domain.TestResult) {
	var published *domain.Job
	m.sync(func(s *state) {
		j, ok := s.jobs[jobID]
		if !ok {
			return
		}
		j.TestStatuses[result.QualifiedName] = status
		j.Results = append(j.Results, result)
		j.UpdatedAt = time.Now()
		j.DeriveStatus()
		published = j.Clone()
	})
	if published != nil {
		m.bus.PublishDelta(published)
	}
}
