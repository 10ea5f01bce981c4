package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mcpsched/internal/core"
	"mcpsched/internal/store"
)

// echoExecutor answers shell tasks with their command string.
type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, task *core.Task) (*core.Result, error) {
	return &core.Result{Status: core.ResultSuccess, Data: task.Command}, nil
}

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.DB.Close() })

	dispatcher := core.NewDispatcher(map[core.TaskType]core.Executor{
		core.TaskTypeShellCommand: echoExecutor{},
	}, logger)
	scheduler := core.NewScheduler(st, dispatcher, logger, time.Hour)

	return NewServer("127.0.0.1:0", authToken, st, scheduler, logger, time.UTC)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func createTask(t *testing.T, s *Server, body map[string]any) taskResponse {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/v1/tasks", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var task taskResponse
	decodeBody(t, rec, &task)
	return task
}

func TestCreateTask(t *testing.T) {
	s := newTestServer(t, "")

	task := createTask(t, s, map[string]any{
		"name":     "hello",
		"schedule": "0 * * * *",
		"command":  "echo hi",
	})
	if !strings.HasPrefix(task.ID, "task_") {
		t.Fatalf("id = %q", task.ID)
	}
	if task.Status != "pending" {
		t.Fatalf("status = %q, want pending", task.Status)
	}
	if !task.Enabled || !task.DoOnlyOnce {
		t.Fatalf("defaults lost: enabled=%t once=%t", task.Enabled, task.DoOnlyOnce)
	}
	if task.NextRun == nil {
		t.Fatal("next_run not set")
	}
}

func TestCreateTaskValidationError(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks", map[string]any{
		"name":     "broken",
		"schedule": "@once",
		"type":     "api_call",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeBody(t, rec, &resp)
	if resp.Error.Code != "validation_error" {
		t.Fatalf("code = %q", resp.Error.Code)
	}
	if resp.Error.Message != "api_url is required for api_call tasks" {
		t.Fatalf("message = %q", resp.Error.Message)
	}
}

func TestCreateTaskBadSchedule(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks", map[string]any{
		"name":     "broken",
		"schedule": "whenever",
		"command":  "echo hi",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_schedule") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodGet, "/v1/tasks/task_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateTask(t *testing.T) {
	s := newTestServer(t, "")
	task := createTask(t, s, map[string]any{
		"name":     "before",
		"schedule": "0 * * * *",
		"command":  "echo hi",
	})

	rec := doJSON(t, s, http.MethodPatch, "/v1/tasks/"+task.ID, map[string]any{
		"name":    "after",
		"command": "echo bye",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var updated taskResponse
	decodeBody(t, rec, &updated)
	if updated.Name != "after" || updated.Command != "echo bye" {
		t.Fatalf("update lost: %+v", updated)
	}
	if updated.Schedule != "0 * * * *" {
		t.Fatalf("untouched field changed: %q", updated.Schedule)
	}
}

func TestDeleteTask(t *testing.T) {
	s := newTestServer(t, "")
	task := createTask(t, s, map[string]any{
		"schedule": "@once",
		"command":  "echo hi",
	})

	rec := doJSON(t, s, http.MethodDelete, "/v1/tasks/"+task.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/v1/tasks/"+task.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", rec.Code)
	}
}

func TestRunTaskNow(t *testing.T) {
	s := newTestServer(t, "")
	task := createTask(t, s, map[string]any{
		"schedule":     "0 * * * *",
		"command":      "echo hi",
		"do_only_once": false,
	})

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks/"+task.ID+"/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var exec executionResponse
	decodeBody(t, rec, &exec)
	if exec.Status != "completed" {
		t.Fatalf("status = %q: %s", exec.Status, exec.Error)
	}
	if exec.Output != "echo hi" {
		t.Fatalf("output = %q", exec.Output)
	}

	// The execution shows up in the task's history and by id.
	rec = doJSON(t, s, http.MethodGet, "/v1/tasks/"+task.ID+"/executions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list executions status = %d", rec.Code)
	}
	var execs []executionResponse
	decodeBody(t, rec, &execs)
	if len(execs) != 1 || execs[0].ID != exec.ID {
		t.Fatalf("executions = %+v", execs)
	}

	rec = doJSON(t, s, http.MethodGet, "/v1/executions/"+exec.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get execution status = %d", rec.Code)
	}
}

func TestRunTaskNowDisabled(t *testing.T) {
	s := newTestServer(t, "")
	task := createTask(t, s, map[string]any{
		"schedule": "@once",
		"command":  "echo hi",
		"enabled":  false,
	})

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks/"+task.ID+"/run", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "task_disabled") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestEnableDisable(t *testing.T) {
	s := newTestServer(t, "")
	task := createTask(t, s, map[string]any{
		"schedule": "0 * * * *",
		"command":  "echo hi",
	})

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks/"+task.ID+"/disable", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d", rec.Code)
	}
	var disabled taskResponse
	decodeBody(t, rec, &disabled)
	if disabled.Enabled || disabled.Status != "disabled" {
		t.Fatalf("disable lost: %+v", disabled)
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/tasks/"+task.ID+"/enable", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("enable status = %d", rec.Code)
	}
	var enabled taskResponse
	decodeBody(t, rec, &enabled)
	if !enabled.Enabled || enabled.Status != "pending" {
		t.Fatalf("enable lost: %+v", enabled)
	}
}

func TestSchedulePreview(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodPost, "/v1/schedule/preview", map[string]any{
		"schedule": "0 9 * * 1-5",
		"count":    3,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp schedulePreviewResponse
	decodeBody(t, rec, &resp)
	if !resp.Valid {
		t.Fatalf("valid = false: %s", resp.Message)
	}
	if len(resp.NextTimes) != 3 {
		t.Fatalf("next_times = %d, want 3", len(resp.NextTimes))
	}
}

func TestSchedulePreviewOnce(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodPost, "/v1/schedule/preview", map[string]any{
		"schedule": "@once",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp schedulePreviewResponse
	decodeBody(t, rec, &resp)
	if !resp.Valid || len(resp.NextTimes) != 1 {
		t.Fatalf("unexpected preview: %+v", resp)
	}
}

func TestSchedulePreviewInvalid(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodPost, "/v1/schedule/preview", map[string]any{
		"schedule": "sometimes",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp schedulePreviewResponse
	decodeBody(t, rec, &resp)
	if resp.Valid {
		t.Fatal("expected valid = false")
	}
	if resp.Message == "" {
		t.Fatal("expected a parse message")
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credentials: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/tasks/", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer token: status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/tasks/?token=sekrit", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("query token: status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/tasks/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want 401", rec.Code)
	}
}
