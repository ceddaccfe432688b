// Package manager owns the in-memory task table and drives every task
// through its lifecycle: admission through the scheduler, engine runs,
// pause/resume/cancel control, history on terminal transitions, and the
// pending-tasks snapshot that survives restarts.
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/grabfrom/core/internal/fetch"
	"github.com/grabfrom/core/internal/history"
	"github.com/grabfrom/core/internal/logger"
	"github.com/grabfrom/core/internal/metrics"
	"github.com/grabfrom/core/internal/notify"
	"github.com/grabfrom/core/internal/scheduler"
	"github.com/grabfrom/core/internal/snapshot"
	"github.com/grabfrom/core/internal/task"
)

const (
	defaultNotifyInterval   = time.Second
	defaultSnapshotInterval = 15 * time.Second

	// historyTimeout bounds the SQLite write on a terminal transition so a
	// wedged disk cannot stall a worker.
	historyTimeout = 5 * time.Second
)

// stopIntent records why a running engine was interrupted, so the worker
// knows how to finalize when the run returns.
type stopIntent int

const (
	intentNone stopIntent = iota
	intentPause
	intentCancel
)

// entry pairs a task with its run-control state. The mutex guards every
// field; cond wakes callers waiting for the worker to release the entry.
type entry struct {
	mu      sync.Mutex
	cond    *sync.Cond
	task    *task.Task
	resume  *fetch.ResumeMarker
	intent  stopIntent
	cancel  context.CancelFunc
	running bool
}

func newEntry(t *task.Task) *entry {
	e := &entry{task: t}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Config holds the manager's tunables.
type Config struct {
	DownloadDir      string
	MaxConcurrent    int
	NotifyInterval   time.Duration
	SnapshotInterval time.Duration
}

// Manager is the task orchestration façade. One instance owns the task
// table; there are no package-level globals.
type Manager struct {
	downloadDir      string
	notifyInterval   time.Duration
	snapshotInterval time.Duration

	sched    *scheduler.Scheduler
	engine   fetch.Engine
	history  *history.Store
	snap     *snapshot.Store
	notifier notify.Publisher
	log      *logger.Logger

	mu     sync.RWMutex
	tasks  map[string]*entry
	order  []string
	closed bool

	snapCh chan struct{}
	stopCh chan struct{}
	loopWG sync.WaitGroup
}

// New wires a manager. The history store and snapshot store may be nil,
// in which case the corresponding persistence is skipped.
func New(cfg Config, engine fetch.Engine, hist *history.Store, snap *snapshot.Store, notifier notify.Publisher) *Manager {
	if cfg.NotifyInterval <= 0 {
		cfg.NotifyInterval = defaultNotifyInterval
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = defaultSnapshotInterval
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}

	m := &Manager{
		downloadDir:      cfg.DownloadDir,
		notifyInterval:   cfg.NotifyInterval,
		snapshotInterval: cfg.SnapshotInterval,
		engine:           engine,
		history:          hist,
		snap:             snap,
		notifier:         notifier,
		log:              logger.Default().WithComponent("manager"),
		tasks:            make(map[string]*entry),
		snapCh:           make(chan struct{}, 1),
		stopCh:           make(chan struct{}),
	}
	m.sched = scheduler.New(cfg.MaxConcurrent, m.runTask)
	return m
}

// Start reloads the pending snapshot, re-queues restored tasks, and
// launches the worker pool and the snapshot writer.
func (m *Manager) Start() {
	restored := m.restore()
	m.sched.Start()

	m.loopWG.Add(1)
	go m.snapshotLoop()

	// Persist the normalized state right away so a crash before the first
	// transition still sees the demoted statuses.
	m.writeSnapshot()

	m.log.Info(context.Background(), "task manager started", map[string]interface{}{
		"restored":       restored,
		"max_concurrent": m.sched.Workers(),
	})
}

// Stop rejects new work, interrupts active runs, waits for workers to
// finalize, and flushes a last snapshot so interrupted downloads resume
// after the next start.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	err := m.sched.Stop(ctx)
	m.loopWG.Wait()
	m.writeSnapshot()

	m.log.Info(context.Background(), "task manager stopped")
	return err
}

// QueueState reports how many tasks are waiting for a slot and how many
// are actively downloading.
func (m *Manager) QueueState() notify.QueueState {
	return notify.QueueState{
		Pending: m.sched.QueueLen(),
		Active:  m.sched.Active(),
	}
}

// restore loads the pending snapshot and seeds the table. Downloading
// entries were already demoted to pending by the snapshot store; pending
// tasks are re-queued in original creation order.
func (m *Manager) restore() int {
	if m.snap == nil {
		return 0
	}
	entries, err := m.snap.Load()
	if err != nil {
		m.log.Warn(context.Background(), "pending snapshot unreadable, starting empty", map[string]interface{}{
			"error": err.Error(),
		})
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Task.CreatedAt.Before(entries[j].Task.CreatedAt)
	})

	m.mu.Lock()
	for i := range entries {
		t := entries[i].Task
		if _, exists := m.tasks[t.ID]; exists {
			continue
		}
		e := newEntry(&t)
		e.resume = entries[i].Resume
		m.tasks[t.ID] = e
		m.order = append(m.order, t.ID)
	}
	m.mu.Unlock()

	for i := range entries {
		if entries[i].Task.Status == task.StatusPending {
			m.sched.Enqueue(entries[i].Task.ID)
		}
	}
	return len(entries)
}

// lookup returns the live entry for id, or nil.
func (m *Manager) lookup(id string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[id]
}

// liveEntries returns the current entries in submission order.
func (m *Manager) liveEntries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]*entry, 0, len(m.order))
	for _, id := range m.order {
		if e, ok := m.tasks[id]; ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func (m *Manager) removeFromOrderLocked(id string) {
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// snapshotLoop rewrites the pending snapshot periodically and whenever a
// transition requests it.
func (m *Manager) snapshotLoop() {
	defer m.loopWG.Done()

	ticker := time.NewTicker(m.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.writeSnapshot()
		case <-m.snapCh:
			m.writeSnapshot()
		}
	}
}

// requestSnapshot schedules a snapshot rewrite without blocking; bursts
// of transitions coalesce into one write.
func (m *Manager) requestSnapshot() {
	select {
	case m.snapCh <- struct{}{}:
	default:
	}
}

// writeSnapshot serializes every non-terminal task, resume markers
// included, through the atomic snapshot store.
func (m *Manager) writeSnapshot() {
	if m.snap == nil {
		return
	}

	entries := m.liveEntries()
	out := make([]snapshot.Entry, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.task.Status.Terminal() {
			out = append(out, snapshot.Entry{
				Task:   *e.task,
				Resume: cloneMarker(e.resume),
			})
		}
		e.mu.Unlock()
	}

	if err := m.snap.Save(out); err != nil {
		m.log.Warn(context.Background(), "snapshot write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// appendHistory records a terminal task. Persistence failures are logged
// and swallowed; the in-memory state stays authoritative.
func (m *Manager) appendHistory(t *task.Task) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	if err := m.history.Append(ctx, history.NewRecord(t)); err != nil {
		m.log.Warn(ctx, "history append failed", map[string]interface{}{
			"task_id": t.ID,
			"error":   err.Error(),
		})
	}
}

func (m *Manager) notifyUpdate(snap task.Snapshot) {
	qs := m.QueueState()
	metrics.Default().SetDownloadQueueLength(int64(qs.Pending))
	metrics.Default().SetActiveDownloads(int64(qs.Active))
	m.notifier.Publish(notify.TaskUpdated(snap, qs))
}

func cloneMarker(r *fetch.ResumeMarker) *fetch.ResumeMarker {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
