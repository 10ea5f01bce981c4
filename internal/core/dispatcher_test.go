package core

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// stubExecutor returns a canned result or error, or panics on demand.
type stubExecutor struct {
	result *Result
	err    error
	panics bool
	calls  int
}

func (s *stubExecutor) Execute(ctx context.Context, task *Task) (*Result, error) {
	s.calls++
	if s.panics {
		panic("stub exploded")
	}
	return s.result, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestDispatchSuccess(t *testing.T) {
	stub := &stubExecutor{result: &Result{Status: ResultSuccess, Data: "hi\n"}}
	d := NewDispatcher(map[TaskType]Executor{TaskTypeShellCommand: stub}, testLogger())

	exec := d.Dispatch(context.Background(), &Task{ID: "task_1", Type: TaskTypeShellCommand})
	if exec == nil {
		t.Fatal("Dispatch returned nil")
	}
	if !exec.Closed() {
		t.Fatal("execution not closed")
	}
	if exec.Status != ExecutionStatusCompleted {
		t.Fatalf("status = %q, want completed", exec.Status)
	}
	if exec.Output != "hi\n" {
		t.Fatalf("output = %q", exec.Output)
	}
	if exec.TaskID != "task_1" {
		t.Fatalf("task id = %q", exec.TaskID)
	}
}

func TestDispatchErrorResult(t *testing.T) {
	stub := &stubExecutor{result: &Result{Status: ResultError, Error: "upstream said no"}}
	d := NewDispatcher(map[TaskType]Executor{TaskTypeAPICall: stub}, testLogger())

	exec := d.Dispatch(context.Background(), &Task{ID: "task_1", Type: TaskTypeAPICall})
	if exec.Status != ExecutionStatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if exec.Error != "upstream said no" {
		t.Fatalf("error = %q", exec.Error)
	}
}

func TestDispatchExecutorError(t *testing.T) {
	stub := &stubExecutor{err: errors.New("dial tcp: refused")}
	d := NewDispatcher(map[TaskType]Executor{TaskTypeAI: stub}, testLogger())

	exec := d.Dispatch(context.Background(), &Task{ID: "task_1", Type: TaskTypeAI})
	if exec.Status != ExecutionStatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if exec.Error != "dial tcp: refused" {
		t.Fatalf("error = %q", exec.Error)
	}
}

func TestDispatchPanicRecovery(t *testing.T) {
	stub := &stubExecutor{panics: true}
	d := NewDispatcher(map[TaskType]Executor{TaskTypeShellCommand: stub}, testLogger())

	exec := d.Dispatch(context.Background(), &Task{ID: "task_1", Type: TaskTypeShellCommand})
	if exec.Status != ExecutionStatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if !strings.Contains(exec.Error, "executor panic") {
		t.Fatalf("error = %q, want panic message", exec.Error)
	}
}

func TestDispatchNilResult(t *testing.T) {
	stub := &stubExecutor{}
	d := NewDispatcher(map[TaskType]Executor{TaskTypeShellCommand: stub}, testLogger())

	exec := d.Dispatch(context.Background(), &Task{ID: "task_1", Type: TaskTypeShellCommand})
	if exec.Status != ExecutionStatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if exec.Error != "executor returned no result" {
		t.Fatalf("error = %q", exec.Error)
	}
}

func TestDispatchNoExecutor(t *testing.T) {
	d := NewDispatcher(map[TaskType]Executor{}, testLogger())

	exec := d.Dispatch(context.Background(), &Task{ID: "task_1", Type: TaskTypeToolCall})
	if exec.Status != ExecutionStatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if !strings.Contains(exec.Error, `no executor registered for task type "tool_call"`) {
		t.Fatalf("error = %q", exec.Error)
	}
}

func TestDispatchErrorResultWithoutMessage(t *testing.T) {
	stub := &stubExecutor{result: &Result{Status: ResultError}}
	d := NewDispatcher(map[TaskType]Executor{TaskTypeShellCommand: stub}, testLogger())

	exec := d.Dispatch(context.Background(), &Task{ID: "task_1", Type: TaskTypeShellCommand})
	if exec.Error != "executor reported failure" {
		t.Fatalf("error = %q", exec.Error)
	}
}
