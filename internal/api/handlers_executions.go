package api

import (
	"errors"
	"net/http"
	"time"

	"mcpsched/internal/core"

	"github.com/go-chi/chi/v5"
)

type executionResponse struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	StartTime string  `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Status    string  `json:"status"`
	Output    string  `json:"output,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	exec, err := s.store.GetExecution(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, core.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "execution not found")
		} else {
			s.logger.Error("get execution", "execution_id", executionID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load execution")
		}
		return
	}
	writeJSON(w, http.StatusOK, executionToResponse(exec))
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if _, err := s.scheduler.GetTask(r.Context(), taskID); err != nil {
		writeTaskError(w, s, err, "get task for executions list")
		return
	}

	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	execs, err := s.scheduler.ListExecutions(r.Context(), taskID, limit, offset)
	if err != nil {
		s.logger.Error("list executions", "task_id", taskID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list executions")
		return
	}

	resp := make([]executionResponse, 0, len(execs))
	for _, exec := range execs {
		resp = append(resp, executionToResponse(exec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func executionToResponse(exec *core.Execution) executionResponse {
	var end *string
	if exec.EndTime != nil {
		formatted := exec.EndTime.UTC().Format(time.RFC3339)
		end = &formatted
	}
	return executionResponse{
		ID:        exec.ID,
		TaskID:    exec.TaskID,
		StartTime: exec.StartTime.UTC().Format(time.RFC3339),
		EndTime:   end,
		Status:    string(exec.Status),
		Output:    exec.Output,
		Error:     exec.Error,
	}
}
