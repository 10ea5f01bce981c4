package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store abstracts the persistence layer used by the scheduler. It is the
// single source of truth for tasks and executions; all mutating operations
// are serialised through it.
type Store interface {
	InsertTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	DeleteTask(ctx context.Context, id string) error

	// ClaimDueTask atomically transitions an enabled, pending task whose
	// next_run has arrived into running, re-checking all three conditions
	// inside the claim itself. Reports whether the claim won.
	ClaimDueTask(ctx context.Context, id string, now time.Time) (bool, error)
	// ClaimTask is the run-now variant: it ignores next_run and the
	// pending/terminal distinction but still refuses a running task.
	ClaimTask(ctx context.Context, id string) (bool, error)
	// FinalizeRun atomically records a finished run: sets last_run and
	// either applies the one-shot terminal status (non-empty terminal,
	// next_run untouched) or installs the new next_run with the status
	// derived from the row's current enabled flag. Returns ErrTaskNotFound
	// when the task was deleted mid-run.
	FinalizeRun(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time, terminal TaskStatus) error

	SaveExecution(ctx context.Context, exec *Execution) error
	ListExecutions(ctx context.Context, taskID string, limit, offset int) ([]*Execution, error)
}

const defaultTickInterval = 5 * time.Second

// Scheduler owns the task set and drives the periodic tick that finds due
// tasks and dispatches them. Per-task mutual exclusion is enforced by the
// store's claim operations: a task already running is never re-selected.
type Scheduler struct {
	store      Store
	dispatcher *Dispatcher
	logger     *slog.Logger
	interval   time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	inflight sync.WaitGroup
}

// NewScheduler constructs a scheduler with the given dependencies. A
// non-positive tick interval falls back to the default.
func NewScheduler(store Store, dispatcher *Dispatcher, logger *slog.Logger, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   tickInterval,
	}
}

// Start loads all tasks from storage, recovers state left over from a
// previous process, and begins the periodic tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	if err := s.recover(ctx); err != nil {
		return fmt.Errorf("recover tasks: %w", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(loopCtx)
	s.logger.Info("scheduler started", "tick_interval", s.interval.String())
	return nil
}

// Stop halts the tick loop. No new dispatch begins after Stop returns;
// executions already dispatched keep running until their executor body
// finishes. The returned context is done once every in-flight execution
// has been finalised, so callers can bound the drain with a deadline.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	drainCtx, drained := context.WithCancel(context.Background())
	if s.cancel == nil {
		drained()
		return drainCtx
	}
	s.cancel()
	<-s.loopDone
	s.cancel = nil
	s.loopDone = nil
	go func() {
		s.inflight.Wait()
		drained()
		s.logger.Info("scheduler stopped")
	}()
	return drainCtx
}

// recover repairs tasks stranded by a crash: anything persisted as running
// goes back to pending, and enabled pending tasks without a next_run get
// one computed.
func (s *Scheduler) recover(ctx context.Context) error {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, task := range tasks {
		changed := false
		if task.Status == TaskStatusRunning {
			task.Status = TaskStatusPending
			changed = true
		}
		if task.Enabled && task.Status == TaskStatusPending && task.NextRun == nil {
			next, err := NextOccurrence(task.Schedule, now, task.LastRun != nil)
			if err != nil {
				s.logger.Warn("skip task with bad schedule", "task_id", task.ID, "err", err)
				continue
			}
			if next != nil {
				task.NextRun = next
				changed = true
			}
		}
		if changed {
			task.Touch()
			if err := s.store.UpdateTask(ctx, task); err != nil {
				s.logger.Error("recover task", "task_id", task.ID, "err", err)
			}
		}
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one due-task scan. Each claimed task dispatches on its own
// goroutine so one slow executor cannot starve the others.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		s.logger.Error("list tasks for tick", "err", err)
		return
	}
	for _, task := range tasks {
		if !task.Enabled || task.Status != TaskStatusPending {
			continue
		}
		if task.NextRun == nil || task.NextRun.After(now) {
			continue
		}
		claimed, err := s.store.ClaimDueTask(ctx, task.ID, now)
		if err != nil {
			s.logger.Error("claim task", "task_id", task.ID, "err", err)
			continue
		}
		if !claimed {
			continue
		}
		// Detach from the loop context: stopping the scheduler must not
		// cancel an executor body already in flight.
		execCtx := context.WithoutCancel(ctx)
		s.inflight.Add(1)
		go func(task *Task) {
			defer s.inflight.Done()
			s.execute(execCtx, task)
		}(task)
	}
}

// execute dispatches a claimed task, persists the execution, and advances
// the task's timing bookkeeping. Failures advance last_run and next_run
// exactly as success does; retry is the next occurrence or an explicit
// run-now.
func (s *Scheduler) execute(ctx context.Context, task *Task) *Execution {
	exec := s.dispatcher.Dispatch(ctx, task)
	if err := s.store.SaveExecution(ctx, exec); err != nil {
		s.logger.Error("save execution", "task_id", task.ID, "execution_id", exec.ID, "err", err)
	}
	s.finalize(ctx, task, exec)
	return exec
}

// finalize advances the task's bookkeeping after a run through a single
// conditional store update, so a delete or disable issued while the
// executor was running wins: a deleted task is never resurrected and a
// disabled one stays disabled.
func (s *Scheduler) finalize(ctx context.Context, task *Task, exec *Execution) {
	now := time.Now().UTC()
	var terminal TaskStatus
	var next *time.Time
	if task.DoOnlyOnce {
		// Terminal: next_run keeps its expired value, no further firing.
		if exec.Status == ExecutionStatusCompleted {
			terminal = TaskStatusCompleted
		} else {
			terminal = TaskStatusFailed
		}
	} else {
		var err error
		next, err = NextOccurrence(task.Schedule, now, true)
		if err != nil {
			s.logger.Error("compute next run", "task_id", task.ID, "err", err)
		}
	}
	if err := s.store.FinalizeRun(ctx, task.ID, now, next, terminal); err != nil && !errors.Is(err, ErrTaskNotFound) {
		s.logger.Error("finalize run", "task_id", task.ID, "execution_id", exec.ID, "err", err)
	}
}

// AddTask validates, computes the initial next_run, persists, and returns
// the stored task.
func (s *Scheduler) AddTask(ctx context.Context, t Task) (*Task, error) {
	task, err := NewTask(t)
	if err != nil {
		return nil, err
	}
	if task.Enabled && task.Status == TaskStatusPending {
		next, err := NextOccurrence(task.Schedule, time.Now().UTC(), false)
		if err != nil {
			return nil, err
		}
		task.NextRun = next
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info("task added", "task_id", task.ID, "type", task.Type, "schedule", task.Schedule)
	return task, nil
}

// UpdateTask re-validates a mutated task, recomputes next_run against the
// possibly-changed schedule, and persists it.
func (s *Scheduler) UpdateTask(ctx context.Context, task *Task) error {
	task.sanitize()
	if err := task.Validate(); err != nil {
		return err
	}
	if _, err := ParseSchedule(task.Schedule); err != nil {
		return err
	}
	if task.Enabled && task.Status == TaskStatusPending {
		next, err := NextOccurrence(task.Schedule, time.Now().UTC(), task.LastRun != nil)
		if err != nil {
			return err
		}
		task.NextRun = next
	}
	task.Touch()
	return s.store.UpdateTask(ctx, task)
}

// GetTask looks up a single task. Unknown ids yield ErrTaskNotFound.
func (s *Scheduler) GetTask(ctx context.Context, id string) (*Task, error) {
	return s.store.GetTask(ctx, id)
}

// ListTasks returns all tasks.
func (s *Scheduler) ListTasks(ctx context.Context) ([]*Task, error) {
	return s.store.ListTasks(ctx)
}

// EnableTask re-enables a disabled task. next_run is left untouched unless
// it was cleared, in which case a fresh one is computed.
func (s *Scheduler) EnableTask(ctx context.Context, id string) (*Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Enabled = true
	if task.Status == TaskStatusDisabled {
		task.Status = TaskStatusPending
	}
	if task.Status == TaskStatusPending && task.NextRun == nil {
		next, err := NextOccurrence(task.Schedule, time.Now().UTC(), task.LastRun != nil)
		if err == nil {
			task.NextRun = next
		}
	}
	task.Touch()
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DisableTask marks a task disabled. The task keeps its next_run and stays
// in storage; an in-flight run is not cancelled.
func (s *Scheduler) DisableTask(ctx context.Context, id string) (*Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Enabled = false
	if task.Status == TaskStatusPending {
		task.Status = TaskStatusDisabled
	}
	task.Touch()
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task from storage. An in-flight execution finishes
// and is recorded, but the task row stays gone.
func (s *Scheduler) DeleteTask(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task deleted", "task_id", id)
	return nil
}

// RunTaskNow bypasses the due-time check and dispatches immediately,
// subject to the same per-task running gate as the tick path. The call is
// synchronous and returns the closed execution.
func (s *Scheduler) RunTaskNow(ctx context.Context, id string) (*Execution, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Enabled {
		return nil, ErrTaskDisabled
	}
	claimed, err := s.store.ClaimTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// The claim also fails when a disable landed after the enabled
		// check above; re-read so the caller gets the truthful error.
		fresh, err := s.store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if !fresh.Enabled {
			return nil, ErrTaskDisabled
		}
		return nil, ErrTaskAlreadyRunning
	}
	s.inflight.Add(1)
	defer s.inflight.Done()
	return s.execute(ctx, task), nil
}

// ListExecutions returns the execution log for one task, newest first.
func (s *Scheduler) ListExecutions(ctx context.Context, taskID string, limit, offset int) ([]*Execution, error) {
	return s.store.ListExecutions(ctx, taskID, limit, offset)
}
