package core

import (
	"strings"
	"time"
)

// NewTask builds a task from caller-supplied fields: sanitises free text,
// validates the payload against the task type, checks the schedule
// expression, and assigns identity and audit timestamps. The returned task
// is pending and enabled unless the input said otherwise.
func NewTask(t Task) (*Task, error) {
	task := t
	if task.Type == "" {
		task.Type = TaskTypeShellCommand
	}
	task.sanitize()
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseSchedule(task.Schedule); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = NewTaskID()
	}
	if task.Status == "" {
		task.Status = TaskStatusPending
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	return &task, nil
}

// Validate checks that the fields required by the task's type are present.
func (t *Task) Validate() error {
	switch t.Type {
	case TaskTypeShellCommand:
		if strings.TrimSpace(t.Command) == "" {
			return &ValidationError{Field: "command", Type: t.Type}
		}
	case TaskTypeAPICall:
		if strings.TrimSpace(t.APIUrl) == "" {
			return &ValidationError{Field: "api_url", Type: t.Type}
		}
	case TaskTypeAI:
		if strings.TrimSpace(t.Prompt) == "" {
			return &ValidationError{Field: "prompt", Type: t.Type}
		}
	case TaskTypeReminder:
		if strings.TrimSpace(t.ReminderMessage) == "" {
			return &ValidationError{Field: "reminder_message", Type: t.Type}
		}
	case TaskTypeToolCall:
		if strings.TrimSpace(t.Tool) == "" {
			return &ValidationError{Field: "tool", Type: t.Type}
		}
		if strings.TrimSpace(t.Method) == "" {
			return &ValidationError{Field: "method", Type: t.Type}
		}
	default:
		return &ValidationError{Field: "type", Type: t.Type}
	}
	return nil
}

func (t *Task) sanitize() {
	t.Name = SanitizeText(t.Name)
	t.Command = SanitizeText(t.Command)
	t.Prompt = SanitizeText(t.Prompt)
	t.Description = SanitizeText(t.Description)
	t.ReminderTitle = SanitizeText(t.ReminderTitle)
	t.ReminderMessage = SanitizeText(t.ReminderMessage)
}

// Touch bumps the audit timestamp. Every mutation goes through here before
// being persisted.
func (t *Task) Touch() {
	t.UpdatedAt = time.Now().UTC()
}
