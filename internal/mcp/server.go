package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mcpsched/internal/core"
	"mcpsched/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	store     *store.Store
	scheduler *core.Scheduler
	logger    *slog.Logger
	location  *time.Location
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(st *store.Store, scheduler *core.Scheduler, logger *slog.Logger, location *time.Location) *MCPServer {
	return &MCPServer{
		store:     st,
		scheduler: scheduler,
		logger:    logger,
		location:  location,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"mcpsched",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Register all tools
	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")

	// Start the stdio server
	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	// task_create
	mcpServer.AddTool(mcp.NewTool("task_create",
		mcp.WithDescription("Create a scheduled task. The schedule is a standard cron expression (5 or 6 fields) or the one-shot marker '@once'"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Task name"),
		),
		mcp.WithString("schedule",
			mcp.Required(),
			mcp.Description("Cron expression, e.g. '0 9 * * 1-5' for weekdays at 9am, or '@once' to fire a single time"),
		),
		mcp.WithString("type",
			mcp.Description("Task type, defaults to shell_command"),
			mcp.Enum("shell_command", "api_call", "ai", "reminder", "tool_call"),
		),
		mcp.WithString("description",
			mcp.Description("Task description (optional)"),
		),
		mcp.WithString("command",
			mcp.Description("Shell command to run (shell_command tasks)"),
		),
		mcp.WithString("api_url",
			mcp.Description("URL to request (api_call tasks)"),
		),
		mcp.WithString("api_method",
			mcp.Description("HTTP method, defaults to GET (api_call tasks)"),
		),
		mcp.WithObject("api_headers",
			mcp.Description("HTTP headers to send (api_call tasks)"),
		),
		mcp.WithObject("api_body",
			mcp.Description("JSON request body (api_call tasks)"),
		),
		mcp.WithString("prompt",
			mcp.Description("Prompt to send to the model (ai tasks)"),
		),
		mcp.WithString("tool",
			mcp.Description("Tool server to invoke (tool_call tasks)"),
		),
		mcp.WithString("method",
			mcp.Description("Tool method to call (tool_call tasks)"),
		),
		mcp.WithObject("params",
			mcp.Description("Tool call arguments (tool_call tasks)"),
		),
		mcp.WithString("reminder_title",
			mcp.Description("Notification title (reminder tasks)"),
		),
		mcp.WithString("reminder_message",
			mcp.Description("Notification body (reminder tasks)"),
		),
		mcp.WithBoolean("enabled",
			mcp.Description("Whether the task is enabled, defaults to true"),
		),
		mcp.WithBoolean("do_only_once",
			mcp.Description("Run once and stop, defaults to true"),
		),
	), s.handleCreateTask)

	// task_list
	mcpServer.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List all scheduled tasks"),
	), s.handleListTasks)

	// task_get
	mcpServer.AddTool(mcp.NewTool("task_get",
		mcp.WithDescription("Get task details"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleGetTask)

	// task_update
	mcpServer.AddTool(mcp.NewTool("task_update",
		mcp.WithDescription("Update a task's configuration"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithString("name",
			mcp.Description("New task name"),
		),
		mcp.WithString("schedule",
			mcp.Description("New cron expression"),
		),
		mcp.WithString("description",
			mcp.Description("New description"),
		),
		mcp.WithString("command",
			mcp.Description("New shell command"),
		),
		mcp.WithString("api_url",
			mcp.Description("New URL"),
		),
		mcp.WithString("prompt",
			mcp.Description("New prompt"),
		),
		mcp.WithString("reminder_message",
			mcp.Description("New notification body"),
		),
	), s.handleUpdateTask)

	// task_delete
	mcpServer.AddTool(mcp.NewTool("task_delete",
		mcp.WithDescription("Delete a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleDeleteTask)

	// task_run
	mcpServer.AddTool(mcp.NewTool("task_run",
		mcp.WithDescription("Run a task immediately, outside its schedule"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleRunTask)

	// task_enable
	mcpServer.AddTool(mcp.NewTool("task_enable",
		mcp.WithDescription("Enable a disabled task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleEnableTask)

	// task_disable
	mcpServer.AddTool(mcp.NewTool("task_disable",
		mcp.WithDescription("Disable a task without deleting it"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleDisableTask)

	// task_executions
	mcpServer.AddTool(mcp.NewTool("task_executions",
		mcp.WithDescription("List the execution history of a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of records to return, defaults to 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListExecutions)

	// schedule_preview
	mcpServer.AddTool(mcp.NewTool("schedule_preview",
		mcp.WithDescription("Preview the upcoming fire times of a cron expression"),
		mcp.WithString("schedule",
			mcp.Required(),
			mcp.Description("Cron expression"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of fire times to return, defaults to 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handleSchedulePreview)

	s.logger.Info("MCP tools registered", "count", 10)
}

// handleCreateTask handles the task_create tool call.
func (s *MCPServer) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enabled := mcp.ParseBoolean(request, "enabled", true)
	doOnlyOnce := mcp.ParseBoolean(request, "do_only_once", true)

	task := core.Task{
		Name:            mcp.ParseString(request, "name", ""),
		Schedule:        mcp.ParseString(request, "schedule", ""),
		Type:            core.TaskType(mcp.ParseString(request, "type", "")),
		Description:     mcp.ParseString(request, "description", ""),
		Command:         mcp.ParseString(request, "command", ""),
		APIUrl:          mcp.ParseString(request, "api_url", ""),
		APIMethod:       mcp.ParseString(request, "api_method", ""),
		APIBody:         mcp.ParseStringMap(request, "api_body", nil),
		Prompt:          mcp.ParseString(request, "prompt", ""),
		Tool:            mcp.ParseString(request, "tool", ""),
		Method:          mcp.ParseString(request, "method", ""),
		Params:          mcp.ParseStringMap(request, "params", nil),
		ReminderTitle:   mcp.ParseString(request, "reminder_title", ""),
		ReminderMessage: mcp.ParseString(request, "reminder_message", ""),
		Enabled:         enabled,
		DoOnlyOnce:      doOnlyOnce,
	}
	if headers := mcp.ParseStringMap(request, "api_headers", nil); len(headers) > 0 {
		task.APIHeaders = make(map[string]string, len(headers))
		for k, v := range headers {
			task.APIHeaders[k] = fmt.Sprint(v)
		}
	}

	created, err := s.scheduler.AddTask(ctx, task)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}

	s.logger.Info("task created", "task_id", created.ID, "schedule", created.Schedule, "type", created.Type)

	return mcp.NewToolResultText(fmt.Sprintf("Task created\nID: %s\nType: %s\nNext run: %s",
		created.ID,
		created.Type,
		formatTimePtr(created.NextRun, s.location),
	)), nil
}

// handleListTasks handles the task_list tool call.
func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.scheduler.ListTasks(ctx)
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}

	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	result := fmt.Sprintf("Found %d tasks:\n\n", len(tasks))
	for _, t := range tasks {
		result += fmt.Sprintf("%s (%s)\n", t.ID, t.Status)
		result += fmt.Sprintf("  Name: %s\n", t.Name)
		result += fmt.Sprintf("  Type: %s\n", t.Type)
		result += fmt.Sprintf("  Schedule: %s\n", t.Schedule)
		if t.NextRun != nil {
			result += fmt.Sprintf("  Next run: %s\n", formatTimePtr(t.NextRun, s.location))
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

// handleGetTask handles the task_get tool call.
func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.scheduler.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get task: %v", err)), nil
	}

	result := fmt.Sprintf("Task ID: %s\n", task.ID)
	result += fmt.Sprintf("Name: %s\n", task.Name)
	result += fmt.Sprintf("Type: %s\n", task.Type)
	result += fmt.Sprintf("Status: %s\n", task.Status)
	result += fmt.Sprintf("Schedule: %s\n", task.Schedule)
	result += fmt.Sprintf("Enabled: %t\n", task.Enabled)
	result += fmt.Sprintf("Run once: %t\n", task.DoOnlyOnce)
	if task.Description != "" {
		result += fmt.Sprintf("Description: %s\n", task.Description)
	}
	switch task.Type {
	case core.TaskTypeShellCommand:
		result += fmt.Sprintf("Command: %s\n", task.Command)
	case core.TaskTypeAPICall:
		result += fmt.Sprintf("URL: %s %s\n", task.APIMethod, task.APIUrl)
	case core.TaskTypeAI:
		result += fmt.Sprintf("Prompt: %s\n", truncateString(task.Prompt, 80))
	case core.TaskTypeToolCall:
		result += fmt.Sprintf("Tool: %s/%s\n", task.Tool, task.Method)
	case core.TaskTypeReminder:
		result += fmt.Sprintf("Message: %s\n", task.ReminderMessage)
	}
	if task.LastRun != nil {
		result += fmt.Sprintf("Last run: %s\n", formatTimePtr(task.LastRun, s.location))
	}
	if task.NextRun != nil {
		result += fmt.Sprintf("Next run: %s\n", formatTimePtr(task.NextRun, s.location))
	}
	result += fmt.Sprintf("Created: %s\n", task.CreatedAt.In(s.location).Format("2006-01-02 15:04:05"))

	return mcp.NewToolResultText(result), nil
}

// handleUpdateTask handles the task_update tool call.
func (s *MCPServer) handleUpdateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.scheduler.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get task: %v", err)), nil
	}

	if name := mcp.ParseString(request, "name", ""); name != "" {
		task.Name = name
	}
	if schedule := mcp.ParseString(request, "schedule", ""); schedule != "" {
		task.Schedule = schedule
	}
	if description := mcp.ParseString(request, "description", ""); description != "" {
		task.Description = description
	}
	if command := mcp.ParseString(request, "command", ""); command != "" {
		task.Command = command
	}
	if apiURL := mcp.ParseString(request, "api_url", ""); apiURL != "" {
		task.APIUrl = apiURL
	}
	if prompt := mcp.ParseString(request, "prompt", ""); prompt != "" {
		task.Prompt = prompt
	}
	if message := mcp.ParseString(request, "reminder_message", ""); message != "" {
		task.ReminderMessage = message
	}

	if err := s.scheduler.UpdateTask(ctx, task); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task updated: %s\nNext run: %s", task.ID, formatTimePtr(task.NextRun, s.location))), nil
}

// handleDeleteTask handles the task_delete tool call.
func (s *MCPServer) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	if err := s.scheduler.DeleteTask(ctx, taskID); err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task deleted: %s", taskID)), nil
}

// handleRunTask handles the task_run tool call.
func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	exec, err := s.scheduler.RunTaskNow(ctx, taskID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrTaskNotFound):
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		case errors.Is(err, core.ErrTaskDisabled):
			return mcp.NewToolResultError(fmt.Sprintf("task is disabled: %s", taskID)), nil
		case errors.Is(err, core.ErrTaskAlreadyRunning):
			return mcp.NewToolResultError(fmt.Sprintf("task is already running: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to run task: %v", err)), nil
	}

	result := fmt.Sprintf("Task executed\nTask ID: %s\nExecution ID: %s\nStatus: %s\n", taskID, exec.ID, exec.Status)
	if exec.Output != "" {
		result += fmt.Sprintf("Output: %s\n", truncateString(exec.Output, 500))
	}
	if exec.Error != "" {
		result += fmt.Sprintf("Error: %s\n", exec.Error)
	}

	return mcp.NewToolResultText(result), nil
}

// handleEnableTask handles the task_enable tool call.
func (s *MCPServer) handleEnableTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.scheduler.EnableTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to enable task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task enabled: %s\nNext run: %s", task.ID, formatTimePtr(task.NextRun, s.location))), nil
}

// handleDisableTask handles the task_disable tool call.
func (s *MCPServer) handleDisableTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.scheduler.DisableTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to disable task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task disabled: %s", task.ID)), nil
}

// handleListExecutions handles the task_executions tool call.
func (s *MCPServer) handleListExecutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	execs, err := s.scheduler.ListExecutions(ctx, taskID, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list executions: %v", err)), nil
	}

	if len(execs) == 0 {
		return mcp.NewToolResultText("No executions recorded for this task"), nil
	}

	result := fmt.Sprintf("Found %d executions:\n\n", len(execs))
	for _, e := range execs {
		result += fmt.Sprintf("Execution ID: %s\n", e.ID)
		result += fmt.Sprintf("  Status: %s\n", e.Status)
		result += fmt.Sprintf("  Started: %s\n", e.StartTime.In(s.location).Format("2006-01-02 15:04:05"))
		if e.EndTime != nil {
			result += fmt.Sprintf("  Ended: %s\n", formatTimePtr(e.EndTime, s.location))
		}
		if e.Output != "" {
			result += fmt.Sprintf("  Output: %s\n", truncateString(e.Output, 120))
		}
		if e.Error != "" {
			result += fmt.Sprintf("  Error: %s\n", e.Error)
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

// handleSchedulePreview handles the schedule_preview tool call.
func (s *MCPServer) handleSchedulePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr := mcp.ParseString(request, "schedule", "")

	schedule, err := core.ParseSchedule(expr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", err)), nil
	}

	now := time.Now().In(s.location)
	if schedule == nil {
		return mcp.NewToolResultText(fmt.Sprintf("Schedule: %s\nOne-shot, fires immediately and only once", expr)), nil
	}

	count := int(mcp.ParseFloat64(request, "count", 5))
	nextTimes := core.NextOccurrences(schedule, now, count)

	result := fmt.Sprintf("Schedule: %s\n", expr)
	result += fmt.Sprintf("Timezone: %s\n\n", s.location)
	result += "Upcoming fire times:\n"
	for i, t := range nextTimes {
		result += fmt.Sprintf("  %d. %s\n", i+1, t.Format("2006-01-02 15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

// Helper functions

func formatTimePtr(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
