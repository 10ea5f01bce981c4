package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned by lookups and mutations on unknown ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskDisabled is returned by RunTaskNow on a disabled task. Run-now
	// on a disabled task is rejected, not silently executed.
	ErrTaskDisabled = errors.New("task is disabled")
	// ErrTaskAlreadyRunning is returned when the per-task running gate is
	// already held.
	ErrTaskAlreadyRunning = errors.New("task is already running")

	// ErrExecutionNotFound is returned by execution lookups on unknown ids.
	ErrExecutionNotFound = errors.New("execution not found")
)

// ValidationError reports a task payload missing a field required by the
// task's type. It is raised before persistence; invalid tasks never reach
// the tick loop.
type ValidationError struct {
	Field string
	Type  TaskType
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required for %s tasks", e.Field, e.Type)
}

// ScheduleParseError reports a malformed schedule expression, surfaced at
// task creation time.
type ScheduleParseError struct {
	Expr string
	Err  error
}

func (e *ScheduleParseError) Error() string {
	return fmt.Sprintf("invalid schedule %q: %v", e.Expr, e.Err)
}

func (e *ScheduleParseError) Unwrap() error {
	return e.Err
}
