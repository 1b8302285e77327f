// Package chatcompletions holds the OpenAI-compatible chat-completions
// request shape sent to the upstream provider. Streaming response chunks are
// not modeled here; the provider reads them field-by-field from raw JSON.
package chatcompletions

import (
	"encoding/json"
	"fmt"
)

// Error follows the OpenAI-compatible error envelope returned by upstream
// chat-completions endpoints.
type Error struct {
	Inner struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`

	statusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("(%d) %s", e.statusCode, e.Inner.Message)
}

func (e *Error) Type() string {
	switch e.statusCode / 100 {
	case 4:
		if e.statusCode == 429 {
			return "overloaded_error"
		}
		return "invalid_request_error"
	case 5:
		return "internal_server_error"
	default:
		return "unknown_error"
	}
}

func (e *Error) Message() string              { return e.Inner.Message }
func (e *Error) Source() string               { return "upstream" }
func (e *Error) StatusCode() int              { return e.statusCode }
func (e *Error) SetStatusCode(statusCode int) { e.statusCode = statusCode }

type Request struct {
	Model         string         `json:"model"`
	Messages      []*Message     `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   float64        `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Tools         []*Tool        `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"`
	Stream        bool           `json:"stream"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []*ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Function *ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Tool struct {
	Type     string        `json:"type"`
	Function *ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitzero"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
)
