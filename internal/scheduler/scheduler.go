// Package scheduler admits queued download tasks to a bounded pool of
// workers. Tasks are admitted strictly in enqueue order, and a freed
// slot picks up the next waiting task immediately.
package scheduler

import (
	"context"
	"sync"

	"github.com/grabfrom/core/internal/logger"
)

// DefaultWorkers is the number of concurrent downloads used when no
// explicit limit is configured.
const DefaultWorkers = 3

// Runner executes a single admitted task. It is called from a worker
// goroutine and must not return until the task has settled. The context
// is cancelled when the scheduler shuts down.
type Runner func(ctx context.Context, taskID string)

// Scheduler dispatches waiting task IDs to a fixed pool of workers in
// FIFO order.
type Scheduler struct {
	runner  Runner
	workers int
	log     *logger.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	fifo    []string
	waiting map[string]bool
	active  int
	running bool
	stopped bool

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a scheduler that runs at most workers tasks at once.
// Non-positive worker counts fall back to DefaultWorkers.
func New(workers int, runner Runner) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	s := &Scheduler{
		runner:  runner,
		workers: workers,
		waiting: make(map[string]bool),
		log:     logger.Default().WithComponent("scheduler"),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker pool. Starting a running scheduler is a
// no-op. Tasks enqueued before Start are admitted once it runs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopped = false
	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.log.Info(context.Background(), "scheduler started", map[string]interface{}{
		"workers": s.workers,
	})
}

// Stop cancels the context of active tasks and waits for the workers to
// drain. It returns the context error when shutdown does not finish in
// time; waiting tasks stay queued and are not run.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopped = true
	s.runCancel()
	s.cond.Broadcast()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info(context.Background(), "scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn(context.Background(), "scheduler shutdown timed out")
		return ctx.Err()
	}
}

// Enqueue appends a task to the waiting queue. It reports false when
// the scheduler has been stopped or the task is already waiting.
func (s *Scheduler) Enqueue(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.waiting[taskID] {
		return false
	}
	s.fifo = append(s.fifo, taskID)
	s.waiting[taskID] = true
	s.cond.Signal()
	return true
}

// Withdraw removes a task that has not been admitted yet. It reports
// whether the task was still waiting.
func (s *Scheduler) Withdraw(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.waiting[taskID] {
		return false
	}
	delete(s.waiting, taskID)
	for i, id := range s.fifo {
		if id == taskID {
			s.fifo = append(s.fifo[:i], s.fifo[i+1:]...)
			break
		}
	}
	return true
}

// QueueLen returns the number of tasks waiting for a slot.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fifo)
}

// Active returns the number of tasks currently being run.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Workers returns the size of the worker pool.
func (s *Scheduler) Workers() int {
	return s.workers
}

// IsRunning reports whether the scheduler has been started and not yet
// stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	s.log.Debug(context.Background(), "worker started", map[string]interface{}{
		"worker": id,
	})

	for {
		s.mu.Lock()
		for len(s.fifo) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			s.log.Debug(context.Background(), "worker stopping", map[string]interface{}{
				"worker": id,
			})
			return
		}
		taskID := s.fifo[0]
		s.fifo = s.fifo[1:]
		delete(s.waiting, taskID)
		s.active++
		ctx := s.runCtx
		s.mu.Unlock()

		s.runner(ctx, taskID)

		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}
}
