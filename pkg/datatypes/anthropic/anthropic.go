// Package anthropic holds the target wire protocol: the Messages request and
// response shapes, the streaming event union, and an aggregator that folds a
// streamed event sequence back into a single Message.
//
// reference: https://docs.anthropic.com/en/api/messages
package anthropic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	HeaderAPIKey  = "x-api-key"
	HeaderVersion = "anthropic-version"
)

const (
	ErrorContentType = "error"
)

const (
	InvalidRequestError = "invalid_request_error"
	AuthenticationError = "authentication_error"
	PermissionError     = "permission_error"
	NotFoundError       = "not_found_error"
	RequestTooLarge     = "request_too_large"
	RateLimitError      = "rate_limit_error"
	APIError            = "api_error"
	OverloadedError     = "overloaded_error"
)

type Error struct {
	ContentType string      `json:"type"`
	Inner       *InnerError `json:"error"`

	statusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type(), e.Message())
}

func (e *Error) Type() string                 { return e.Inner.Type }
func (e *Error) Message() string              { return e.Inner.Message }
func (e *Error) Source() string               { return "anthropic" }
func (e *Error) StatusCode() int              { return e.statusCode }
func (e *Error) SetStatusCode(statusCode int) { e.statusCode = statusCode }

type InnerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StreamError is the payload of an `error` SSE event.
type StreamError struct {
	ErrType    string `json:"type"`
	ErrMessage string `json:"message"`
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type(), e.Message())
}

func (e *StreamError) Type() string    { return e.ErrType }
func (e *StreamError) Message() string { return e.ErrMessage }

// GenerateMessageRequest is the inbound /v1/messages request body.
type GenerateMessageRequest struct {
	System        MessageContents `json:"system,omitempty"`
	Model         string          `json:"model"`
	Messages      []*Message      `json:"messages"`
	MaxTokens     int             `json:"max_tokens"`
	Metadata      *Metadata       `json:"metadata,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Thinking      *Thinking       `json:"thinking,omitempty"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Tools         []*Tool         `json:"tools,omitempty"`
	Temperature   float64         `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
}

type Message struct {
	ID           string          `json:"id,omitempty"`
	Type         MessageType     `json:"type,omitempty"`
	Role         MessageRole     `json:"role"`
	Content      MessageContents `json:"content"`
	Model        string          `json:"model,omitempty"`
	StopReason   *StopReason     `json:"stop_reason,omitempty"`
	StopSequence *string         `json:"stop_sequence,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
}

type MessageType string

const (
	MessageTypeMessage MessageType = "message"
)

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonRefusal      StopReason = "refusal"
)

type MessageContentType string

const (
	MessageContentTypeText       MessageContentType = "text"
	MessageContentTypeImage      MessageContentType = "image"
	MessageContentTypeToolUse    MessageContentType = "tool_use"
	MessageContentTypeToolResult MessageContentType = "tool_result"
	MessageContentTypeThinking   MessageContentType = "thinking"
)

type MessageContents []*MessageContent

func (mc MessageContents) MarshalJSON() ([]byte, error) {
	if mc == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]*MessageContent(mc))
}

// UnmarshalJSON accepts both the array form and the bare-string shorthand the
// API allows for system prompts and user messages.
func (mc *MessageContents) UnmarshalJSON(data []byte) error {
	for _, b := range data {
		switch b {
		case ' ', '\r', '\n', '\t':
		case '[':
			var contents []*MessageContent
			if err := json.Unmarshal(data, &contents); err != nil {
				return err
			}
			*mc = contents
			return nil
		case '"':
			var content string
			if err := json.Unmarshal(data, &content); err != nil {
				return err
			}
			*mc = append(*mc, &MessageContent{
				Type: MessageContentTypeText,
				Text: content,
			})
			return nil
		default:
			return errors.New("message content should be a string or an array")
		}
	}
	return errors.New("empty message content")
}

type MessageContent struct {
	Type      MessageContentType    `json:"type"`
	Text      string                `json:"text,omitempty"`
	Source    *MessageContentSource `json:"source,omitempty"`
	Thinking  string                `json:"thinking,omitempty"`
	ID        string                `json:"id,omitempty"`
	Name      string                `json:"name,omitempty"`
	Input     json.RawMessage       `json:"input,omitempty"`
	ToolUseID string                `json:"tool_use_id,omitempty"`
	IsError   bool                  `json:"is_error,omitempty"`
	Content   MessageContents       `json:"content,omitempty"`
}

type MessageContentSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type MessageContentDeltaType string

const (
	MessageContentDeltaTypeTextDelta      MessageContentDeltaType = "text_delta"
	MessageContentDeltaTypeInputJSONDelta MessageContentDeltaType = "input_json_delta"
	MessageContentDeltaTypeThinkingDelta  MessageContentDeltaType = "thinking_delta"
)

type MessageContentDelta struct {
	Type        MessageContentDeltaType `json:"type"`
	Text        string                  `json:"text,omitempty"`
	PartialJSON string                  `json:"partial_json,omitempty"`
	Thinking    string                  `json:"thinking,omitempty"`
}

type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

type Thinking struct {
	Type         ThinkingType `json:"type"`
	BudgetTokens int          `json:"budget_tokens,omitempty"`
}

type ThinkingType string

const (
	ThinkingTypeEnabled  ThinkingType = "enabled"
	ThinkingTypeDisabled ThinkingType = "disabled"
)

type ToolChoice struct {
	Type                   ToolChoiceType `json:"type"`
	Name                   string         `json:"name,omitempty"`
	DisableParallelToolUse bool           `json:"disable_parallel_tool_use,omitempty"`
}

type ToolChoiceType string

const (
	ToolChoiceTypeTool ToolChoiceType = "tool"
	ToolChoiceTypeAuto ToolChoiceType = "auto"
	ToolChoiceTypeNone ToolChoiceType = "none"
	ToolChoiceTypeAny  ToolChoiceType = "any"
)

type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitzero"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Usage is the token accounting object rendered on message_start and
// message_delta. Cache counters appear on the wire only when non-zero.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens,omitzero"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens,omitzero"`
}

type EventType string

const (
	EventTypePing              EventType = "ping"
	EventTypeError             EventType = "error"
	EventTypeMessageStart      EventType = "message_start"
	EventTypeMessageDelta      EventType = "message_delta"
	EventTypeMessageStop       EventType = "message_stop"
	EventTypeContentBlockStart EventType = "content_block_start"
	EventTypeContentBlockDelta EventType = "content_block_delta"
	EventTypeContentBlockStop  EventType = "content_block_stop"
)

type Event interface {
	EventType() EventType
}

var (
	_ Event = (*EventPing)(nil)
	_ Event = (*EventError)(nil)
	_ Event = (*EventMessageStart)(nil)
	_ Event = (*EventMessageDelta)(nil)
	_ Event = (*EventMessageStop)(nil)
	_ Event = (*EventContentBlockStart)(nil)
	_ Event = (*EventContentBlockDelta)(nil)
	_ Event = (*EventContentBlockStop)(nil)
)

type (
	EventPing struct {
		Type EventType `json:"type"`
	}
	EventError struct {
		Type  EventType    `json:"type"`
		Error *StreamError `json:"error"`
	}
	EventMessageStart struct {
		Type    EventType `json:"type"`
		Message *Message  `json:"message"`
	}
	EventMessageDelta struct {
		Type  EventType `json:"type"`
		Delta *Message  `json:"delta"`
		Usage *Usage    `json:"usage"`
	}
	EventMessageStop struct {
		Type EventType `json:"type"`
	}
	EventContentBlockStart struct {
		Type         EventType       `json:"type"`
		Index        int             `json:"index"`
		ContentBlock *MessageContent `json:"content_block"`
	}
	EventContentBlockDelta struct {
		Type  EventType            `json:"type"`
		Index int                  `json:"index"`
		Delta *MessageContentDelta `json:"delta"`
	}
	EventContentBlockStop struct {
		Type  EventType `json:"type"`
		Index int       `json:"index"`
	}
)

func (event EventPing) EventType() EventType              { return EventTypePing }
func (event EventError) EventType() EventType             { return EventTypeError }
func (event EventMessageStart) EventType() EventType      { return EventTypeMessageStart }
func (event EventMessageDelta) EventType() EventType      { return EventTypeMessageDelta }
func (event EventMessageStop) EventType() EventType       { return EventTypeMessageStop }
func (event EventContentBlockStart) EventType() EventType { return EventTypeContentBlockStart }
func (event EventContentBlockDelta) EventType() EventType { return EventTypeContentBlockDelta }
func (event EventContentBlockStop) EventType() EventType  { return EventTypeContentBlockStop }

// NewMessageBuilder returns a builder that folds a streamed event sequence
// into the equivalent non-streaming Message.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{
		message: &Message{
			Type:  MessageTypeMessage,
			Role:  MessageRoleAssistant,
			Usage: &Usage{},
		},
	}
}

type MessageBuilder struct {
	message     *Message
	textBuilder strings.Builder
	jsonBuilder bytes.Buffer
}

// Message returns the aggregated message. It is a plain read of accumulated
// state; calling it repeatedly after the stream completed yields the same
// result.
func (builder *MessageBuilder) Message() *Message {
	return builder.message
}

// Add folds one streamed event into the accumulated message. Events must be
// added in emission order; content_block_stop finalizes the pending text,
// thinking, or tool-input buffer for its block.
func (builder *MessageBuilder) Add(event Event) error {
	switch e := event.(type) {
	case *EventError:
		if e.Error != nil {
			return &Error{
				ContentType: ErrorContentType,
				Inner:       &InnerError{Type: e.Error.ErrType, Message: e.Error.ErrMessage},
			}
		}
	case *EventMessageStart:
		if e.Message != nil {
			builder.message.ID = e.Message.ID
			builder.message.Model = e.Message.Model
			if e.Message.Usage != nil {
				builder.message.Usage.InputTokens = e.Message.Usage.InputTokens
			}
		}
	case *EventMessageDelta:
		if e.Delta != nil {
			builder.message.StopSequence = e.Delta.StopSequence
			builder.message.StopReason = e.Delta.StopReason
		}
		if e.Usage != nil {
			if e.Usage.InputTokens > 0 {
				builder.message.Usage.InputTokens = e.Usage.InputTokens
			}
			if e.Usage.OutputTokens > 0 {
				builder.message.Usage.OutputTokens = e.Usage.OutputTokens
			}
			if e.Usage.CacheReadInputTokens > 0 {
				builder.message.Usage.CacheReadInputTokens = e.Usage.CacheReadInputTokens
			}
		}
	case *EventContentBlockStart:
		if e.ContentBlock != nil {
			for e.Index >= len(builder.message.Content) {
				builder.message.Content = append(builder.message.Content, &MessageContent{})
			}
			content := builder.message.Content[e.Index]
			content.Type = e.ContentBlock.Type
			if content.Type == MessageContentTypeToolUse {
				content.ID = e.ContentBlock.ID
				content.Name = e.ContentBlock.Name
			}
		}
	case *EventContentBlockDelta:
		if e.Delta != nil {
			switch e.Delta.Type {
			case MessageContentDeltaTypeTextDelta:
				builder.textBuilder.WriteString(e.Delta.Text)
			case MessageContentDeltaTypeThinkingDelta:
				builder.textBuilder.WriteString(e.Delta.Thinking)
			case MessageContentDeltaTypeInputJSONDelta:
				builder.jsonBuilder.WriteString(e.Delta.PartialJSON)
			}
		}
	case *EventContentBlockStop:
		if e.Index >= len(builder.message.Content) {
			return nil
		}
		switch content := builder.message.Content[e.Index]; content.Type {
		case MessageContentTypeText:
			content.Text = builder.textBuilder.String()
			builder.textBuilder.Reset()
		case MessageContentTypeThinking:
			content.Thinking = builder.textBuilder.String()
			builder.textBuilder.Reset()
		case MessageContentTypeToolUse:
			if builder.jsonBuilder.Len() == 0 {
				// Tools without parameters stream no input fragments at all;
				// the aggregated block still needs a valid empty object.
				content.Input = json.RawMessage("{}")
			} else {
				var inputObject map[string]any
				decoder := json.NewDecoder(&builder.jsonBuilder)
				decoder.UseNumber()
				if err := decoder.Decode(&inputObject); err != nil {
					return fmt.Errorf("invalid tool_use json input: %w", err)
				}
				encoded, err := json.Marshal(inputObject)
				if err != nil {
					return err
				}
				content.Input = json.RawMessage(encoded)
				builder.jsonBuilder.Reset()
			}
		}
	}
	return nil
}
