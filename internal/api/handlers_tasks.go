package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mcpsched/internal/core"

	"github.com/go-chi/chi/v5"
)

type createTaskRequest struct {
	Name            string            `json:"name"`
	Schedule        string            `json:"schedule"`
	Type            string            `json:"type"`
	Command         string            `json:"command"`
	APIUrl          string            `json:"api_url"`
	APIMethod       string            `json:"api_method"`
	APIHeaders      map[string]string `json:"api_headers"`
	APIBody         map[string]any    `json:"api_body"`
	Prompt          string            `json:"prompt"`
	Tool            string            `json:"tool"`
	Method          string            `json:"method"`
	Params          map[string]any    `json:"params"`
	ReminderTitle   string            `json:"reminder_title"`
	ReminderMessage string            `json:"reminder_message"`
	Description     string            `json:"description"`
	Enabled         *bool             `json:"enabled"`
	DoOnlyOnce      *bool             `json:"do_only_once"`
}

type updateTaskRequest struct {
	Name            *string           `json:"name"`
	Schedule        *string           `json:"schedule"`
	Command         *string           `json:"command"`
	APIUrl          *string           `json:"api_url"`
	APIMethod       *string           `json:"api_method"`
	APIHeaders      map[string]string `json:"api_headers"`
	APIBody         map[string]any    `json:"api_body"`
	Prompt          *string           `json:"prompt"`
	Tool            *string           `json:"tool"`
	Method          *string           `json:"method"`
	Params          map[string]any    `json:"params"`
	ReminderTitle   *string           `json:"reminder_title"`
	ReminderMessage *string           `json:"reminder_message"`
	Description     *string           `json:"description"`
	DoOnlyOnce      *bool             `json:"do_only_once"`
}

type taskResponse struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Schedule        string            `json:"schedule"`
	Type            string            `json:"type"`
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
	Description     string            `json:"description,omitempty"`
	Enabled         bool              `json:"enabled"`
	DoOnlyOnce      bool              `json:"do_only_once"`
	LastRun         *string           `json:"last_run"`
	NextRun         *string           `json:"next_run"`
	Status          string            `json:"status"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Schedule = strings.TrimSpace(req.Schedule)
	if req.Schedule == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "schedule is required")
		return
	}

	taskType := core.TaskType(strings.TrimSpace(req.Type))
	if taskType == "" {
		taskType = core.TaskTypeShellCommand
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	doOnlyOnce := true
	if req.DoOnlyOnce != nil {
		doOnlyOnce = *req.DoOnlyOnce
	}

	task, err := s.scheduler.AddTask(r.Context(), core.Task{
		Name:            req.Name,
		Schedule:        req.Schedule,
		Type:            taskType,
		Command:         req.Command,
		APIUrl:          req.APIUrl,
		APIMethod:       req.APIMethod,
		APIHeaders:      req.APIHeaders,
		APIBody:         req.APIBody,
		Prompt:          req.Prompt,
		Tool:            req.Tool,
		Method:          req.Method,
		Params:          req.Params,
		ReminderTitle:   req.ReminderTitle,
		ReminderMessage: req.ReminderMessage,
		Description:     req.Description,
		Enabled:         enabled,
		DoOnlyOnce:      doOnlyOnce,
	})
	if err != nil {
		writeTaskError(w, s, err, "create task")
		return
	}
	writeJSON(w, http.StatusCreated, taskToResponse(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.scheduler.ListTasks(r.Context())
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}
	res := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.scheduler.GetTask(r.Context(), taskID)
	if err != nil {
		writeTaskError(w, s, err, "get task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.scheduler.GetTask(r.Context(), taskID)
	if err != nil {
		writeTaskError(w, s, err, "get task for update")
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	applyString(&task.Name, req.Name)
	applyString(&task.Schedule, req.Schedule)
	applyString(&task.Command, req.Command)
	applyString(&task.APIUrl, req.APIUrl)
	applyString(&task.APIMethod, req.APIMethod)
	applyString(&task.Prompt, req.Prompt)
	applyString(&task.Tool, req.Tool)
	applyString(&task.Method, req.Method)
	applyString(&task.ReminderTitle, req.ReminderTitle)
	applyString(&task.ReminderMessage, req.ReminderMessage)
	applyString(&task.Description, req.Description)
	if req.APIHeaders != nil {
		task.APIHeaders = req.APIHeaders
	}
	if req.APIBody != nil {
		task.APIBody = req.APIBody
	}
	if req.Params != nil {
		task.Params = req.Params
	}
	if req.DoOnlyOnce != nil {
		task.DoOnlyOnce = *req.DoOnlyOnce
	}

	if err := s.scheduler.UpdateTask(r.Context(), task); err != nil {
		writeTaskError(w, s, err, "update task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.scheduler.DeleteTask(r.Context(), taskID); err != nil {
		writeTaskError(w, s, err, "delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	exec, err := s.scheduler.RunTaskNow(r.Context(), taskID)
	if err != nil {
		writeTaskError(w, s, err, "run task now")
		return
	}
	writeJSON(w, http.StatusOK, executionToResponse(exec))
}

func (s *Server) handleEnableTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.scheduler.EnableTask(r.Context(), taskID)
	if err != nil {
		writeTaskError(w, s, err, "enable task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func (s *Server) handleDisableTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.scheduler.DisableTask(r.Context(), taskID)
	if err != nil {
		writeTaskError(w, s, err, "disable task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

// writeTaskError maps the core error taxonomy to HTTP statuses.
func writeTaskError(w http.ResponseWriter, s *Server, err error, op string) {
	var validationErr *core.ValidationError
	var scheduleErr *core.ScheduleParseError
	switch {
	case errors.Is(err, core.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, core.ErrTaskDisabled):
		writeError(w, http.StatusConflict, "task_disabled", "task is disabled")
	case errors.Is(err, core.ErrTaskAlreadyRunning):
		writeError(w, http.StatusConflict, "conflict", "task is already running")
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.As(err, &scheduleErr):
		writeError(w, http.StatusBadRequest, "invalid_schedule", scheduleErr.Error())
	default:
		s.logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "operation failed")
	}
}

func taskToResponse(task *core.Task) taskResponse {
	var last, next *string
	if task.LastRun != nil {
		formatted := task.LastRun.UTC().Format(time.RFC3339)
		last = &formatted
	}
	if task.NextRun != nil {
		formatted := task.NextRun.UTC().Format(time.RFC3339)
		next = &formatted
	}
	return taskResponse{
		ID:              task.ID,
		Name:            task.Name,
		Schedule:        task.Schedule,
		Type:            string(task.Type),
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
		Description:     task.Description,
		Enabled:         task.Enabled,
		DoOnlyOnce:      task.DoOnlyOnce,
		LastRun:         last,
		NextRun:         next,
		Status:          string(task.Status),
		CreatedAt:       task.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       task.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
