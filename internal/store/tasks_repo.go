package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mcpsched/internal/core"
)

// taskPayload is the JSON shape of the type-specific task fields stored in
// the payload column. Only the fields for the task's type are populated.
type taskPayload struct {
	Command         string            `json:"command,omitempty"`
	APIUrl          string            `json:"api_url,omitempty"`
	APIMethod       string            `json:"api_method,omitempty"`
	APIHeaders      map[string]string `json:"api_headers,omitempty"`
	APIBody         map[string]any    `json:"api_body,omitempty"`
	Prompt          string            `json:"prompt,omitempty"`
	Tool            string            `json:"tool,omitempty"`
	Method          string            `json:"method,omitempty"`
	Params          map[string]any    `json:"params,omitempty"`
	ReminderTitle   string            `json:"reminder_title,omitempty"`
	ReminderMessage string            `json:"reminder_message,omitempty"`
}

func marshalPayload(task *core.Task) (string, error) {
	payload := taskPayload{
		Command:         task.Command,
		APIUrl:          task.APIUrl,
		APIMethod:       task.APIMethod,
		APIHeaders:      task.APIHeaders,
		APIBody:         task.APIBody,
		Prompt:          task.Prompt,
		Tool:            task.Tool,
		Method:          task.Method,
		Params:          task.Params,
		ReminderTitle:   task.ReminderTitle,
		ReminderMessage: task.ReminderMessage,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}
	return string(data), nil
}

func unmarshalPayload(task *core.Task, data string) error {
	var payload taskPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %w", err)
	}
	task.Command = payload.Command
	task.APIUrl = payload.APIUrl
	task.APIMethod = payload.APIMethod
	task.APIHeaders = payload.APIHeaders
	task.APIBody = payload.APIBody
	task.Prompt = payload.Prompt
	task.Tool = payload.Tool
	task.Method = payload.Method
	task.Params = payload.Params
	task.ReminderTitle = payload.ReminderTitle
	task.ReminderMessage = payload.ReminderMessage
	return nil
}

func (s *Store) InsertTask(ctx context.Context, task *core.Task) error {
	payload, err := marshalPayload(task)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO tasks (id, name, schedule, type, payload, description, enabled, do_only_once,
			last_run, next_run, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Name, task.Schedule, task.Type, payload, task.Description,
		boolToInt(task.Enabled), boolToInt(task.DoOnlyOnce),
		nullableTime(task.LastRun), nullableTime(task.NextRun), task.Status,
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, task *core.Task) error {
	payload, err := marshalPayload(task)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET name = ?, schedule = ?, type = ?, payload = ?, description = ?, enabled = ?, do_only_once = ?,
			last_run = ?, next_run = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, task.Name, task.Schedule, task.Type, payload, task.Description,
		boolToInt(task.Enabled), boolToInt(task.DoOnlyOnce),
		nullableTime(task.LastRun), nullableTime(task.NextRun), task.Status,
		formatTime(task.UpdatedAt), task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows: %w", err)
	}
	if rows == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, schedule, type, payload, description, enabled, do_only_once,
			last_run, next_run, status, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, schedule, type, payload, description, enabled, do_only_once,
			last_run, next_run, status, created_at, updated_at
		FROM tasks
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*core.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ClaimDueTask atomically marks an enabled, pending, due task as running.
// The single UPDATE is the compare-and-set that keeps two callers from
// both dispatching the same task; re-checking next_run here means a task
// whose schedule was pushed into the future after the tick's scan is not
// fired anyway.
func (s *Store) ClaimDueTask(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, updated_at = ?
		WHERE id = ? AND enabled = 1 AND status = ?
			AND next_run IS NOT NULL AND next_run <= ?
	`, core.TaskStatusRunning, formatTime(now), id, core.TaskStatusPending, formatTime(now))
	if err != nil {
		return false, fmt.Errorf("claim due task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ClaimTask is the run-now claim: any non-running enabled task may be
// taken, including one already in a terminal one-shot status.
func (s *Store) ClaimTask(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, updated_at = ?
		WHERE id = ? AND enabled = 1 AND status <> ?
	`, core.TaskStatusRunning, formatTime(time.Now()), id, core.TaskStatusRunning)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// FinalizeRun records a finished run in one statement. A non-empty
// terminal status marks a one-shot done and leaves next_run at its
// expired value; otherwise next_run is replaced and the status is derived
// from the row's current enabled flag, so an enable/disable issued while
// the executor was running is never overwritten. A deleted task makes the
// UPDATE a no-op and returns ErrTaskNotFound.
func (s *Store) FinalizeRun(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time, terminal core.TaskStatus) error {
	var (
		res sql.Result
		err error
	)
	now := formatTime(time.Now())
	if terminal != "" {
		res, err = s.DB.ExecContext(ctx, `
			UPDATE tasks
			SET last_run = ?, status = ?, updated_at = ?
			WHERE id = ?
		`, formatTime(lastRun), terminal, now, id)
	} else {
		res, err = s.DB.ExecContext(ctx, `
			UPDATE tasks
			SET last_run = ?, next_run = ?,
				status = CASE WHEN enabled = 1 THEN ? ELSE ? END,
				updated_at = ?
			WHERE id = ?
		`, formatTime(lastRun), nullableTime(nextRun),
			core.TaskStatusPending, core.TaskStatusDisabled, now, id)
	}
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*core.Task, error) {
	var (
		id          string
		name        string
		schedule    string
		taskType    string
		payload     string
		description string
		enabled     int
		doOnlyOnce  int
		lastRun     sql.NullString
		nextRun     sql.NullString
		status      string
		createdAt   string
		updatedAt   string
	)
	if err := scanner.Scan(&id, &name, &schedule, &taskType, &payload, &description,
		&enabled, &doOnlyOnce, &lastRun, &nextRun, &status, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task := &core.Task{
		ID:          id,
		Name:        name,
		Schedule:    schedule,
		Type:        core.TaskType(taskType),
		Description: description,
		Enabled:     enabled != 0,
		DoOnlyOnce:  doOnlyOnce != 0,
		Status:      core.TaskStatus(status),
		CreatedAt:   mustParseTime(createdAt),
		UpdatedAt:   mustParseTime(updatedAt),
	}
	if err := unmarshalPayload(task, payload); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		t := mustParseTime(lastRun.String)
		task.LastRun = &t
	}
	if nextRun.Valid {
		t := mustParseTime(nextRun.String)
		task.NextRun = &t
	}
	return task, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
