// Package executors holds the concrete executor bodies, one per task
// type. They perform all real-world I/O and report structured results;
// faults are returned as error-shaped results, never raised into the
// scheduling loop.
package executors

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"mcpsched/internal/core"
)

// ShellExecutor runs shell_command tasks through the platform shell.
type ShellExecutor struct {
	timeout time.Duration
}

// NewShellExecutor creates a shell executor. A non-positive timeout means
// no deadline beyond the caller's context.
func NewShellExecutor(timeout time.Duration) *ShellExecutor {
	return &ShellExecutor{timeout: timeout}
}

func (e *ShellExecutor) Execute(ctx context.Context, task *core.Task) (*core.Result, error) {
	cmdCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := commandForShell(cmdCtx, task.Command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		msg := err.Error()
		if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
			msg += ": " + trimmed
		}
		return &core.Result{Status: core.ResultError, Error: msg}, nil
	}
	return &core.Result{Status: core.ResultSuccess, Data: string(output)}, nil
}

func commandForShell(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command) // #nosec G204
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command) // #nosec G204
}
