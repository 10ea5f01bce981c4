package core

import (
	"time"
)

// TaskStatus describes the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusDisabled  TaskStatus = "disabled"
)

// TaskType selects which payload fields a task requires and which executor
// carries it out. The set is closed.
type TaskType string

const (
	TaskTypeShellCommand TaskType = "shell_command"
	TaskTypeAPICall      TaskType = "api_call"
	TaskTypeAI           TaskType = "ai"
	TaskTypeReminder     TaskType = "reminder"
	TaskTypeToolCall     TaskType = "tool_call"
)

// ExecutionStatus describes the state of an individual execution record.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Task is the durable description of a unit of scheduled work. Payload
// fields are type-discriminated: only the fields required by Type are set,
// the rest stay zero.
type Task struct {
	ID       string
	Name     string
	Schedule string
	Type     TaskType

	// shell_command
	Command string

	// api_call
	APIUrl     string
	APIMethod  string
	APIHeaders map[string]string
	APIBody    map[string]any

	// ai
	Prompt string

	// tool_call
	Tool   string
	Method string
	Params map[string]any

	// reminder
	ReminderTitle   string
	ReminderMessage string

	Description string
	Enabled     bool
	DoOnlyOnce  bool
	LastRun     *time.Time
	NextRun     *time.Time
	Status      TaskStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Execution records one run of a task. Once EndTime is set the record is
// immutable.
type Execution struct {
	ID        string
	TaskID    string
	StartTime time.Time
	EndTime   *time.Time
	Status    ExecutionStatus
	Output    string
	Error     string
}

// OpenExecution starts a new execution record for the given task.
func OpenExecution(taskID string) *Execution {
	return &Execution{
		ID:        NewExecutionID(),
		TaskID:    taskID,
		StartTime: time.Now().UTC(),
		Status:    ExecutionStatusRunning,
	}
}

// CloseSuccess finalises the execution with the executor's output.
func (e *Execution) CloseSuccess(output string) {
	if e.EndTime != nil {
		return
	}
	now := time.Now().UTC()
	e.EndTime = &now
	e.Status = ExecutionStatusCompleted
	e.Output = SanitizeText(output)
}

// CloseFailure finalises the execution with an error message.
func (e *Execution) CloseFailure(errMsg string) {
	if e.EndTime != nil {
		return
	}
	now := time.Now().UTC()
	e.EndTime = &now
	e.Status = ExecutionStatusFailed
	e.Error = SanitizeText(errMsg)
}

// Closed reports whether the execution has been finalised.
func (e *Execution) Closed() bool {
	return e.EndTime != nil
}
