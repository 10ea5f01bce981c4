package executors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"mcpsched/internal/core"
)

// AIExecutor runs ai tasks against a local Ollama instance.
type AIExecutor struct {
	client *api.Client
	model  string
}

// NewAIExecutor creates an AI executor talking to the given Ollama base
// URL with the given default model.
func NewAIExecutor(baseURL, model string, httpClient *http.Client) (*AIExecutor, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AIExecutor{
		client: api.NewClient(parsed, httpClient),
		model:  model,
	}, nil
}

func (e *AIExecutor) Execute(ctx context.Context, task *core.Task) (*core.Result, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  e.model,
		Prompt: task.Prompt,
		Stream: &stream,
	}

	var response strings.Builder
	err := e.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return &core.Result{Status: core.ResultError, Error: fmt.Sprintf("ollama generate: %v", err)}, nil
	}
	return &core.Result{Status: core.ResultSuccess, Data: response.String()}, nil
}
