package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webintel/webintel/pkg/store"
)

// Submit inserts a new pending task and returns its generated id.
func (s *Store) Submit(ctx context.Context, task store.Task) (string, error) {
	if task.ID == "" {
		task.ID = store.NewID()
	}
	params, err := json.Marshal(task.Params)
	if err != nil {
		return "", fmt.Errorf("postgres: submit task: marshal params: %w", err)
	}
	const q = `
		INSERT INTO tasks (id, type, status, priority, params)
		VALUES ($1, $2, 'pending', $3, $4)`
	if _, err := s.pool.Exec(ctx, q, task.ID, task.Type, task.Priority, params); err != nil {
		return "", fmt.Errorf("postgres: submit task: %w", err)
	}
	return task.ID, nil
}

const selectTaskCols = `id, type, status, priority, params, progress, progress_msg, result, error, created_at, started_at, completed_at`

func scanTask(row pgx.CollectableRow) (store.Task, error) {
	var (
		t                  store.Task
		params, result     []byte
		started, completed *time.Time
	)
	err := row.Scan(&t.ID, &t.Type, &t.Status, &t.Priority, &params, &t.Progress, &t.ProgressMessage,
		&result, &t.Error, &t.CreatedAt, &started, &completed)
	if err != nil {
		return t, err
	}
	_ = json.Unmarshal(params, &t.Params)
	_ = json.Unmarshal(result, &t.Result)
	if started != nil {
		t.StartedAt = *started
	}
	if completed != nil {
		t.CompletedAt = *completed
	}
	return t, nil
}

// Get retrieves a task by id.
func (s *Store) Get(ctx context.Context, id string) (*store.Task, error) {
	q := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, selectTaskCols)
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: get task: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	t, err := scanTask(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: get task: scan: %w", err)
	}
	return &t, nil
}

// List returns tasks matching filter, ordered (priority desc, created_at asc).
func (s *Store) List(ctx context.Context, filter store.TaskFilter, limit int) ([]store.Task, error) {
	var conditions []string
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+next(string(filter.Status)))
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = "+next(filter.Type))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT %s FROM tasks %s ORDER BY priority DESC, created_at ASC LIMIT $%d`,
		selectTaskCols, where, len(args))
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tasks: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanTask)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tasks: scan: %w", err)
	}
	if out == nil {
		out = []store.Task{}
	}
	return out, nil
}

// ClaimNext atomically transitions the highest-priority pending task to
// running and returns it.
func (s *Store) ClaimNext(ctx context.Context) (*store.Task, error) {
	const q = `
		UPDATE tasks SET status = 'running', started_at = now()
		WHERE id = (
		    SELECT id FROM tasks
		    WHERE status = 'pending'
		    ORDER BY priority DESC, created_at ASC
		    LIMIT 1
		    FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + selectTaskCols

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim next task: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	t, err := scanTask(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim next task: scan: %w", err)
	}
	return &t, nil
}

// UpdateProgress sets progress and message on a running task.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress float64, message string) error {
	const q = `UPDATE tasks SET progress = $2, progress_msg = $3 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id, progress, message); err != nil {
		return fmt.Errorf("postgres: update task progress: %w", err)
	}
	return nil
}

// Complete transitions a task to completed with the given result.
func (s *Store) Complete(ctx context.Context, id string, result map[string]any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("postgres: complete task: marshal result: %w", err)
	}
	const q = `UPDATE tasks SET status = 'completed', result = $2, progress = 1.0, completed_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id, payload); err != nil {
		return fmt.Errorf("postgres: complete task: %w", err)
	}
	return nil
}

// Fail transitions a task to failed with the given error reason.
func (s *Store) Fail(ctx context.Context, id string, reason string) error {
	const q = `UPDATE tasks SET status = 'failed', error = $2, completed_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id, reason); err != nil {
		return fmt.Errorf("postgres: fail task: %w", err)
	}
	return nil
}

// Cancel transitions a pending task to cancelled immediately, or flags a
// running task for cooperative cancellation.
func (s *Store) Cancel(ctx context.Context, id string) error {
	const q = `
		UPDATE tasks SET
		    status = CASE WHEN status = 'pending' THEN 'cancelled' ELSE status END,
		    completed_at = CASE WHEN status = 'pending' THEN now() ELSE completed_at END,
		    cancelled = true
		WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("postgres: cancel task: %w", err)
	}
	return nil
}

// IsCancelled reports whether task id has been flagged for cancellation.
func (s *Store) IsCancelled(ctx context.Context, id string) (bool, error) {
	var cancelled bool
	err := s.pool.QueryRow(ctx, `SELECT cancelled FROM tasks WHERE id = $1`, id).Scan(&cancelled)
	if err != nil {
		return false, fmt.Errorf("postgres: is cancelled: %w", err)
	}
	return cancelled, nil
}

// RecoverRunning transitions every task left in status running to failed,
// for crash recovery on process startup (spec §3 Task invariant).
func (s *Store) RecoverRunning(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status = 'failed', error = 'restarted while running', completed_at = now()
		WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("postgres: recover running tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
