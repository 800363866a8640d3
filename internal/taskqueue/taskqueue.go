// Package taskqueue implements the persistent asynchronous task runner
// of spec §4.11: a poll loop over [store.TaskStore] that serializes LLM
// tasks behind a single mutex while IO tasks run in parallel up to a
// configured concurrency, and recovers tasks left running by a crashed
// prior process on startup.
package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/webintel/webintel/internal/eventbus"
	"github.com/webintel/webintel/internal/observe"
	"github.com/webintel/webintel/pkg/store"
)

// Category classifies a registered handler's resource contention: LLM
// handlers share the model's single-flight budget, IO handlers merely
// share a worker cap.
type Category string

const (
	CategoryLLM Category = "llm"
	CategoryIO  Category = "io"
)

// Reporter lets a running Handler report progress and poll for
// cooperative cancellation, per spec §4.11's update_progress/
// is_cancelled contract.
type Reporter struct {
	tasks  store.TaskStore
	taskID string
}

// UpdateProgress sets the task's progress in [0,1] and a status message.
func (r *Reporter) UpdateProgress(ctx context.Context, progress float64, message string) error {
	return r.tasks.UpdateProgress(ctx, r.taskID, progress, message)
}

// IsCancelled reports whether the task has been flagged for
// cancellation. Handlers must poll this at meaningful checkpoints and
// return promptly when it reports true.
func (r *Reporter) IsCancelled(ctx context.Context) (bool, error) {
	return r.tasks.IsCancelled(ctx, r.taskID)
}

// Handler processes one claimed task and returns its result payload, or
// an error to fail the task.
type Handler func(ctx context.Context, task store.Task, reporter *Reporter) (map[string]any, error)

type registration struct {
	category Category
	handler  Handler
}

// Queue polls tasks out of a [store.TaskStore] and dispatches them to
// registered handlers by type.
//
// Safe for concurrent use once running; RegisterHandler must not be
// called concurrently with Run.
type Queue struct {
	tasks store.TaskStore
	bus   *eventbus.Bus
	log   *slog.Logger

	handlers map[string]registration

	llmMu    sync.Mutex
	ioGroup  *errgroup.Group
	poll     time.Duration

	metrics         *observe.Metrics
	lastQueuedTasks int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithPollInterval overrides the default 1-second claim poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.poll = d }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithMetrics enables instrumentation of task duration, throughput, and
// queue depth. Nil (the default) disables instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// New returns a Queue backed by tasks, publishing completion events to
// the optional bus, running at most ioConcurrency IO tasks at once (LLM
// tasks are always serialized to exactly one at a time regardless of
// ioConcurrency).
func New(tasks store.TaskStore, bus *eventbus.Bus, ioConcurrency int, opts ...Option) *Queue {
	if ioConcurrency <= 0 {
		ioConcurrency = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(ioConcurrency)
	q := &Queue{
		tasks:    tasks,
		bus:      bus,
		log:      slog.Default(),
		handlers: map[string]registration{},
		ioGroup:  g,
		poll:     time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// RegisterHandler binds a Handler to a task Type string.
func (q *Queue) RegisterHandler(taskType string, category Category, h Handler) {
	q.handlers[taskType] = registration{category: category, handler: h}
}

// Recover transitions every task left running by a crashed prior
// process to failed. Must be called once before Run, on process
// startup.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	n, err := q.tasks.RecoverRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("taskqueue: recover running tasks: %w", err)
	}
	if n > 0 {
		q.log.Info("recovered tasks left running by a prior process", "count", n)
	}
	return n, nil
}

// Run polls for claimable tasks until ctx is cancelled, dispatching
// each to its registered handler. It blocks until every in-flight IO
// task finishes draining after ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return q.ioGroup.Wait()
		case <-ticker.C:
			q.drainClaimable(ctx)
			q.reportQueueDepth(ctx)
		}
	}
}

// reportQueueDepth records the current pending-task count. It shares the
// poll ticker rather than running its own, so queue depth is a no-op
// when metrics are disabled.
func (q *Queue) reportQueueDepth(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	pending, err := q.tasks.List(ctx, store.TaskFilter{Status: store.TaskPending}, 1000)
	if err != nil {
		q.log.Error("list pending tasks for queue depth", "error", err)
		return
	}
	q.metrics.QueuedTasks.Add(ctx, int64(len(pending))-q.lastQueuedTasks)
	q.lastQueuedTasks = int64(len(pending))
}

// drainClaimable claims and dispatches tasks until the queue reports no
// more pending work.
func (q *Queue) drainClaimable(ctx context.Context) {
	for {
		task, err := q.tasks.ClaimNext(ctx)
		if err != nil {
			q.log.Error("claim next task", "error", err)
			return
		}
		if task == nil {
			return
		}

		reg, ok := q.handlers[task.Type]
		if !ok {
			if err := q.tasks.Fail(ctx, task.ID, fmt.Sprintf("no handler registered for task type %q", task.Type)); err != nil {
				q.log.Error("fail unhandled task", "task_id", task.ID, "error", err)
			}
			continue
		}

		claimed := *task
		switch reg.category {
		case CategoryLLM:
			go q.runSerialized(ctx, claimed, reg.handler)
		default:
			q.ioGroup.Go(func() error {
				q.runTask(ctx, claimed, reg.handler)
				return nil
			})
		}
	}
}

// runSerialized runs an LLM-category handler behind the single LLM
// mutex, so at most one LLM-backed task ever executes at a time
// regardless of the IO worker cap.
func (q *Queue) runSerialized(ctx context.Context, task store.Task, h Handler) {
	q.llmMu.Lock()
	defer q.llmMu.Unlock()
	q.runTask(ctx, task, h)
}

func (q *Queue) runTask(ctx context.Context, task store.Task, h Handler) {
	start := time.Now()
	reporter := &Reporter{tasks: q.tasks, taskID: task.ID}
	result, err := h(ctx, task, reporter)
	if q.metrics != nil {
		q.metrics.TaskDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observe.Attr("kind", task.Type)))
	}
	if err != nil {
		if failErr := q.tasks.Fail(ctx, task.ID, err.Error()); failErr != nil {
			q.log.Error("fail task", "task_id", task.ID, "error", failErr)
		}
		q.recordProcessed(ctx, task.Type, "failed")
		q.publish("task.failed", task, map[string]any{"error": err.Error()})
		return
	}
	if err := q.tasks.Complete(ctx, task.ID, result); err != nil {
		q.log.Error("complete task", "task_id", task.ID, "error", err)
		return
	}
	q.recordProcessed(ctx, task.Type, "completed")
	q.publish("task.completed", task, map[string]any{"result": result})
}

// recordProcessed is a no-op when metrics are disabled.
func (q *Queue) recordProcessed(ctx context.Context, kind, status string) {
	if q.metrics == nil {
		return
	}
	q.metrics.TasksProcessed.Add(ctx, 1, metric.WithAttributes(
		observe.Attr("kind", kind), observe.Attr("status", status),
	))
}

func (q *Queue) publish(eventType string, task store.Task, data map[string]any) {
	if q.bus == nil {
		return
	}
	data["task_type"] = task.Type
	q.bus.Publish(eventbus.Event{Type: eventType, Source: task.ID, Data: data, At: time.Now()})
}
