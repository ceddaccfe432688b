package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitSignal(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func waitStarted(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a task to start")
		return ""
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestScheduler_RunsQueuedTasks(t *testing.T) {
	var mu sync.Mutex
	ran := make(map[string]int)
	done := make(chan struct{}, 4)

	s := New(2, func(ctx context.Context, taskID string) {
		mu.Lock()
		ran[taskID]++
		mu.Unlock()
		done <- struct{}{}
	})
	s.Start()
	defer s.Stop(context.Background())

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		if !s.Enqueue(id) {
			t.Fatalf("Enqueue(%q) returned false", id)
		}
	}
	for range ids {
		waitSignal(t, done, "timed out waiting for tasks to run")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if ran[id] != 1 {
			t.Errorf("task %q ran %d times, want 1", id, ran[id])
		}
	}
}

func TestScheduler_ConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 8)
	var cur, peak int32

	s := New(3, func(ctx context.Context, taskID string) {
		n := atomic.AddInt32(&cur, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		started <- taskID
		select {
		case <-release:
		case <-ctx.Done():
		}
		atomic.AddInt32(&cur, -1)
	})
	s.Start()
	defer s.Stop(context.Background())

	for i := 0; i < 4; i++ {
		s.Enqueue(fmt.Sprintf("task-%d", i))
	}

	for i := 0; i < 3; i++ {
		waitStarted(t, started)
	}
	eventually(t, func() bool { return s.Active() == 3 && s.QueueLen() == 1 },
		"expected 3 active tasks and 1 waiting")

	select {
	case id := <-started:
		t.Fatalf("task %q admitted past the concurrency limit", id)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	waitStarted(t, started)

	eventually(t, func() bool { return s.Active() == 0 && s.QueueLen() == 0 },
		"expected all tasks to drain")
	if got := atomic.LoadInt32(&peak); got != 3 {
		t.Errorf("peak concurrency = %d, want 3", got)
	}
}

func TestScheduler_FIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 3)

	s := New(1, func(ctx context.Context, taskID string) {
		mu.Lock()
		order = append(order, taskID)
		mu.Unlock()
		done <- struct{}{}
	})

	for _, id := range []string{"first", "second", "third"} {
		s.Enqueue(id)
	}
	if got := s.QueueLen(); got != 3 {
		t.Fatalf("QueueLen() before Start = %d, want 3", got)
	}
	if got := s.Active(); got != 0 {
		t.Fatalf("Active() before Start = %d, want 0", got)
	}

	s.Start()
	defer s.Stop(context.Background())

	for i := 0; i < 3; i++ {
		waitSignal(t, done, "timed out waiting for tasks to run")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("run order = %v, want %v", order, want)
		}
	}
}

func TestScheduler_ImmediateAdmission(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan string, 2)

	s := New(1, func(ctx context.Context, taskID string) {
		started <- taskID
		if taskID == "first" {
			select {
			case <-gate:
			case <-ctx.Done():
			}
		}
	})
	s.Start()
	defer s.Stop(context.Background())

	s.Enqueue("first")
	if got := waitStarted(t, started); got != "first" {
		t.Fatalf("started %q, want %q", got, "first")
	}

	s.Enqueue("second")
	eventually(t, func() bool { return s.QueueLen() == 1 },
		"expected second task to wait for a slot")

	close(gate)
	if got := waitStarted(t, started); got != "second" {
		t.Fatalf("started %q, want %q", got, "second")
	}
}

func TestScheduler_Withdraw(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan string, 2)

	s := New(1, func(ctx context.Context, taskID string) {
		started <- taskID
		select {
		case <-gate:
		case <-ctx.Done():
		}
	})
	s.Start()
	defer s.Stop(context.Background())

	s.Enqueue("running")
	waitStarted(t, started)

	s.Enqueue("doomed")
	if !s.Withdraw("doomed") {
		t.Fatal("Withdraw of a waiting task returned false")
	}
	if s.Withdraw("doomed") {
		t.Fatal("second Withdraw of the same task returned true")
	}
	if s.Withdraw("ghost") {
		t.Fatal("Withdraw of an unknown task returned true")
	}

	close(gate)
	eventually(t, func() bool { return s.Active() == 0 && s.QueueLen() == 0 },
		"expected queue to drain")

	select {
	case id := <-started:
		t.Fatalf("withdrawn task %q was admitted", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduler_DuplicateEnqueue(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan string, 2)

	s := New(1, func(ctx context.Context, taskID string) {
		started <- taskID
		select {
		case <-gate:
		case <-ctx.Done():
		}
	})
	s.Start()
	defer s.Stop(context.Background())

	s.Enqueue("running")
	waitStarted(t, started)

	if !s.Enqueue("dup") {
		t.Fatal("first Enqueue returned false")
	}
	if s.Enqueue("dup") {
		t.Fatal("Enqueue of an already waiting task returned true")
	}
	close(gate)
}

func TestScheduler_ReEnqueueAfterRun(t *testing.T) {
	done := make(chan struct{}, 2)
	s := New(1, func(ctx context.Context, taskID string) {
		done <- struct{}{}
	})
	s.Start()
	defer s.Stop(context.Background())

	if !s.Enqueue("again") {
		t.Fatal("first Enqueue returned false")
	}
	waitSignal(t, done, "timed out waiting for first run")
	eventually(t, func() bool { return s.Active() == 0 }, "expected task to settle")

	if !s.Enqueue("again") {
		t.Fatal("re-Enqueue after completion returned false")
	}
	waitSignal(t, done, "timed out waiting for second run")
}

func TestScheduler_StopCancelsActive(t *testing.T) {
	entered := make(chan struct{})
	cancelled := make(chan struct{})

	s := New(1, func(ctx context.Context, taskID string) {
		close(entered)
		<-ctx.Done()
		close(cancelled)
	})
	s.Start()
	s.Enqueue("long")
	waitSignal(t, entered, "timed out waiting for task to start")

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case <-cancelled:
	default:
		t.Fatal("active task context was not cancelled by Stop")
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestScheduler_StopTimeout(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})

	s := New(1, func(ctx context.Context, taskID string) {
		close(entered)
		<-block
	})
	s.Start()
	s.Enqueue("stuck")
	waitSignal(t, entered, "timed out waiting for task to start")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop() error = %v, want deadline exceeded", err)
	}
	close(block)
}

func TestScheduler_EnqueueAfterStop(t *testing.T) {
	s := New(1, func(ctx context.Context, taskID string) {})
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Enqueue("late") {
		t.Fatal("Enqueue after Stop returned true")
	}
}

func TestScheduler_StopIdle(t *testing.T) {
	s := New(1, nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() on an unstarted scheduler = %v", err)
	}
}

func TestScheduler_DefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -1} {
		if got := New(n, nil).Workers(); got != DefaultWorkers {
			t.Errorf("New(%d).Workers() = %d, want %d", n, got, DefaultWorkers)
		}
	}
	if got := New(5, nil).Workers(); got != 5 {
		t.Errorf("New(5).Workers() = %d, want 5", got)
	}
}
