package core

import (
	"context"
	"fmt"
	"log/slog"
)

// ResultStatus categorises an executor's outcome.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Result is the structured outcome an executor reports: success with data,
// or error with a message. Executors perform all real-world I/O and are
// expected to catch their own faults, though the dispatcher defends
// against violations regardless.
type Result struct {
	Status ResultStatus
	Data   string
	Error  string
}

// Executor carries out one task type's real work.
type Executor interface {
	Execute(ctx context.Context, task *Task) (*Result, error)
}

// Dispatcher routes a task to the executor registered for its type and
// normalises the outcome into an Execution. It is the fault isolation
// boundary: no executor error or panic escapes into the scheduling loop.
type Dispatcher struct {
	executors map[TaskType]Executor
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over a fixed type→executor registry.
func NewDispatcher(executors map[TaskType]Executor, logger *slog.Logger) *Dispatcher {
	reg := make(map[TaskType]Executor, len(executors))
	for t, e := range executors {
		reg[t] = e
	}
	return &Dispatcher{executors: reg, logger: logger}
}

// Dispatch runs the task's executor and returns a closed Execution. It
// never returns nil and never panics past the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, task *Task) *Execution {
	exec := OpenExecution(task.ID)

	executor, ok := d.executors[task.Type]
	if !ok {
		exec.CloseFailure(fmt.Sprintf("no executor registered for task type %q", task.Type))
		d.logger.Error("no executor for task type", "task_id", task.ID, "type", task.Type)
		return exec
	}

	result, err := d.safeExecute(ctx, executor, task)
	switch {
	case err != nil:
		exec.CloseFailure(err.Error())
	case result == nil:
		exec.CloseFailure("executor returned no result")
	case result.Status == ResultSuccess:
		exec.CloseSuccess(result.Data)
	default:
		msg := result.Error
		if msg == "" {
			msg = "executor reported failure"
		}
		exec.CloseFailure(msg)
	}

	if exec.Status == ExecutionStatusFailed {
		d.logger.Warn("task execution failed", "task_id", task.ID, "execution_id", exec.ID, "err", exec.Error)
	} else {
		d.logger.Debug("task execution completed", "task_id", task.ID, "execution_id", exec.ID)
	}
	return exec
}

// safeExecute invokes the executor with panic recovery so that one
// misbehaving executor cannot stop the tick loop.
func (d *Dispatcher) safeExecute(ctx context.Context, executor Executor, task *Task) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return executor.Execute(ctx, task)
}
