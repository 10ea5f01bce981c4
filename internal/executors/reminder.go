package executors

import (
	"context"
	"fmt"

	"mcpsched/internal/core"
	"mcpsched/internal/notify"
)

// ReminderExecutor delivers reminder tasks through a notifier.
type ReminderExecutor struct {
	notifier notify.Notifier
}

// NewReminderExecutor creates a reminder executor. A nil notifier falls
// back to the no-op delivery so reminders still produce executions.
func NewReminderExecutor(notifier notify.Notifier) *ReminderExecutor {
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}
	return &ReminderExecutor{notifier: notifier}
}

func (e *ReminderExecutor) Execute(ctx context.Context, task *core.Task) (*core.Result, error) {
	title := task.ReminderTitle
	if title == "" {
		title = task.Name
	}
	if title == "" {
		title = "Reminder"
	}
	if err := e.notifier.Send(ctx, title, task.ReminderMessage); err != nil {
		return &core.Result{Status: core.ResultError, Error: fmt.Sprintf("send reminder: %v", err)}, nil
	}
	return &core.Result{Status: core.ResultSuccess, Data: fmt.Sprintf("reminder sent: %s", title)}, nil
}
