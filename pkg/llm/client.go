// Package llm wraps the chat-completion API used by the summarization
// pipeline, with optional schema-constrained JSON responses.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Request is one system+user prompt pair. When Schema is set, the
// completion is constrained to schema-valid JSON named SchemaName.
type Request struct {
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

// Caller issues chat completions. The pipeline depends on this
// interface so tests can substitute a canned model.
type Caller interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Model returns the model name, used as a metric and span label.
	Model() string
}

// CallError marks a completion failure: transport errors, empty
// responses, or malformed schema output. The owning job's retry policy
// decides whether the whole pipeline re-runs.
type CallError struct {
	Stage string
	Err   error
}

func (e *CallError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("llm call failed (%s): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("llm call failed: %v", e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Config holds the completion endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds each completion HTTP request. Zero keeps the SDK
	// default.
	Timeout time.Duration
}

// Client calls a chat-completion endpoint.
type Client struct {
	client openai.Client
	model  string
}

// NewClient builds a client for the configured endpoint. An empty base
// URL targets the default API host.
func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Model returns the configured model name, for metric labels.
func (c *Client) Model() string { return c.model }

// Complete issues one chat completion and returns the raw message
// content. Schema-constrained requests return the JSON string as-is;
// decoding stays with the caller, which knows the target type.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}

	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.SchemaName,
					Strict: openai.Bool(true),
					Schema: req.Schema,
				},
			},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &CallError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CallError{Err: fmt.Errorf("completion returned no choices")}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &CallError{Err: fmt.Errorf("completion returned empty content")}
	}
	return content, nil
}
