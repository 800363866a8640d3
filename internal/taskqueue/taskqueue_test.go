package taskqueue_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/webintel/webintel/internal/eventbus"
	"github.com/webintel/webintel/internal/taskqueue"
	"github.com/webintel/webintel/pkg/store"
	"github.com/webintel/webintel/pkg/store/memstore"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestQueue_RunsRegisteredHandlerToCompletion(t *testing.T) {
	st := memstore.New()
	q := taskqueue.New(st, nil, 2, taskqueue.WithPollInterval(10*time.Millisecond))

	var ran int32
	q.RegisterHandler("ping", taskqueue.CategoryIO, func(ctx context.Context, task store.Task, r *taskqueue.Reporter) (map[string]any, error) {
		atomic.AddInt32(&ran, 1)
		return map[string]any{"pong": true}, nil
	})

	id, err := st.Submit(context.Background(), store.Task{Type: "ping"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	waitFor(t, func() bool {
		task, err := st.Get(context.Background(), id)
		return err == nil && task != nil && task.Status == store.TaskCompleted
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Errorf("handler ran %d times, want 1", ran)
	}

	task, _ := st.Get(context.Background(), id)
	if task.Result["pong"] != true {
		t.Errorf("task.Result = %v, want pong=true", task.Result)
	}
}

func TestQueue_FailedHandlerFailsTask(t *testing.T) {
	st := memstore.New()
	q := taskqueue.New(st, nil, 2, taskqueue.WithPollInterval(10*time.Millisecond))
	q.RegisterHandler("boom", taskqueue.CategoryIO, func(ctx context.Context, task store.Task, r *taskqueue.Reporter) (map[string]any, error) {
		return nil, context.DeadlineExceeded
	})

	id, _ := st.Submit(context.Background(), store.Task{Type: "boom"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	waitFor(t, func() bool {
		task, err := st.Get(context.Background(), id)
		return err == nil && task != nil && task.Status == store.TaskFailed
	})
	cancel()
	<-done

	task, _ := st.Get(context.Background(), id)
	if task.Error == "" {
		t.Error("expected a failure reason to be recorded")
	}
}

func TestQueue_UnregisteredTypeFailsImmediately(t *testing.T) {
	st := memstore.New()
	q := taskqueue.New(st, nil, 2, taskqueue.WithPollInterval(10*time.Millisecond))

	id, _ := st.Submit(context.Background(), store.Task{Type: "unknown_type"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	waitFor(t, func() bool {
		task, err := st.Get(context.Background(), id)
		return err == nil && task != nil && task.Status == store.TaskFailed
	})
	cancel()
	<-done
}

func TestQueue_LLMTasksRunSerialized(t *testing.T) {
	st := memstore.New()
	q := taskqueue.New(st, nil, 4, taskqueue.WithPollInterval(10*time.Millisecond))

	var inFlight, maxInFlight int32
	q.RegisterHandler("summarize", taskqueue.CategoryLLM, func(ctx context.Context, task store.Task, r *taskqueue.Reporter) (map[string]any, error) {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxInFlight) {
			atomic.StoreInt32(&maxInFlight, n)
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	})

	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := st.Submit(context.Background(), store.Task{Type: "summarize"})
		ids = append(ids, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	waitFor(t, func() bool {
		for _, id := range ids {
			task, err := st.Get(context.Background(), id)
			if err != nil || task == nil || task.Status != store.TaskCompleted {
				return false
			}
		}
		return true
	})
	cancel()
	<-done

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Errorf("max concurrent LLM handlers = %d, want 1 (serialized)", got)
	}
}

func TestQueue_Recover_FailsTasksLeftRunning(t *testing.T) {
	st := memstore.New()
	id, _ := st.Submit(context.Background(), store.Task{Type: "orphaned"})
	if _, err := st.ClaimNext(context.Background()); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	bus := eventbus.New()
	q := taskqueue.New(st, bus, 1)
	n, err := q.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("Recover returned %d, want 1", n)
	}

	task, _ := st.Get(context.Background(), id)
	if task.Status != store.TaskFailed {
		t.Errorf("Status = %q, want failed", task.Status)
	}
	if task.Error != "restarted while running" {
		t.Errorf("Error = %q", task.Error)
	}
}
