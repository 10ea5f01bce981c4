package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mcpsched/internal/core"
)

// SaveExecution upserts an execution record. The scheduler saves the
// record once it is closed, but the upsert also tolerates saving an open
// record first and closing it later.
func (s *Store) SaveExecution(ctx context.Context, exec *core.Execution) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO executions (id, task_id, start_time, end_time, status, output, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			end_time = excluded.end_time,
			status = excluded.status,
			output = excluded.output,
			error = excluded.error
	`, exec.ID, exec.TaskID, formatTime(exec.StartTime),
		nullableTime(exec.EndTime), exec.Status, nullableString(exec.Output), nullableString(exec.Error),
		formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*core.Execution, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, task_id, start_time, end_time, status, output, error
		FROM executions WHERE id = ?
	`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrExecutionNotFound
		}
		return nil, err
	}
	return exec, nil
}

func (s *Store) ListExecutions(ctx context.Context, taskID string, limit, offset int) ([]*core.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, task_id, start_time, end_time, status, output, error
		FROM executions
		WHERE task_id = ?
		ORDER BY start_time DESC
		LIMIT ? OFFSET ?
	`, taskID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	var execs []*core.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return execs, nil
}

func scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*core.Execution, error) {
	var (
		id        string
		taskID    string
		startTime string
		endTime   sql.NullString
		status    string
		output    sql.NullString
		errMsg    sql.NullString
	)
	if err := scanner.Scan(&id, &taskID, &startTime, &endTime, &status, &output, &errMsg); err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	exec := &core.Execution{
		ID:        id,
		TaskID:    taskID,
		StartTime: mustParseTime(startTime),
		Status:    core.ExecutionStatus(status),
	}
	if endTime.Valid {
		t := mustParseTime(endTime.String)
		exec.EndTime = &t
	}
	if output.Valid {
		exec.Output = output.String
	}
	if errMsg.Valid {
		exec.Error = errMsg.String
	}
	return exec, nil
}
