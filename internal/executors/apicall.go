package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mcpsched/internal/core"
)

// maxResponseBytes caps how much of an API response is captured into the
// execution record.
const maxResponseBytes = 64 * 1024

// APICallExecutor performs api_call tasks over an injected HTTP client.
type APICallExecutor struct {
	client *http.Client
}

// NewAPICallExecutor creates an API executor. A nil client gets a default
// one with a 30s timeout.
func NewAPICallExecutor(client *http.Client) *APICallExecutor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &APICallExecutor{client: client}
}

func (e *APICallExecutor) Execute(ctx context.Context, task *core.Task) (*core.Result, error) {
	method := strings.ToUpper(strings.TrimSpace(task.APIMethod))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(task.APIBody) > 0 {
		data, err := json.Marshal(task.APIBody)
		if err != nil {
			return &core.Result{Status: core.ResultError, Error: fmt.Sprintf("encode request body: %v", err)}, nil
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, task.APIUrl, body)
	if err != nil {
		return &core.Result{Status: core.ResultError, Error: fmt.Sprintf("build request: %v", err)}, nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range task.APIHeaders {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &core.Result{Status: core.ResultError, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &core.Result{Status: core.ResultError, Error: fmt.Sprintf("read response: %v", err)}, nil
	}

	if resp.StatusCode >= 400 {
		return &core.Result{
			Status: core.ResultError,
			Error:  fmt.Sprintf("api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}, nil
	}
	return &core.Result{Status: core.ResultSuccess, Data: string(data)}, nil
}
