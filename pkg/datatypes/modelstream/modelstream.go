// Package modelstream defines the provider-agnostic event contract produced by
// the upstream generation engine. Events form a closed union so that every
// consumer handles each kind through a single exhaustive type switch.
package modelstream

import (
	"encoding/json"
	"iter"
)

// Stream is a finite sequence of generation events. A non-nil error terminates
// the sequence; no further events follow it.
type Stream = iter.Seq2[Event, error]

type EventType string

const (
	EventTypeTextStart      EventType = "text-start"
	EventTypeTextDelta      EventType = "text-delta"
	EventTypeTextEnd        EventType = "text-end"
	EventTypeReasoningStart EventType = "reasoning-start"
	EventTypeReasoningDelta EventType = "reasoning-delta"
	EventTypeReasoningEnd   EventType = "reasoning-end"
	EventTypeToolCall       EventType = "tool-call"
	EventTypeFinish         EventType = "finish"
	EventTypeError          EventType = "error"
)

type Event interface {
	StreamEventType() EventType
}

var (
	_ Event = (*EventTextStart)(nil)
	_ Event = (*EventTextDelta)(nil)
	_ Event = (*EventTextEnd)(nil)
	_ Event = (*EventReasoningStart)(nil)
	_ Event = (*EventReasoningDelta)(nil)
	_ Event = (*EventReasoningEnd)(nil)
	_ Event = (*EventToolCall)(nil)
	_ Event = (*EventFinish)(nil)
	_ Event = (*EventError)(nil)
)

type (
	EventTextStart struct {
		ID string `json:"id"`
	}
	EventTextDelta struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	EventTextEnd struct {
		ID string `json:"id"`
	}
	EventReasoningStart struct {
		ID string `json:"id"`
	}
	EventReasoningDelta struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	EventReasoningEnd struct {
		ID string `json:"id"`
	}
	EventToolCall struct {
		ToolCallID string          `json:"toolCallId"`
		ToolName   string          `json:"toolName"`
		Input      json.RawMessage `json:"input"`
	}
	EventFinish struct {
		FinishReason FinishReason `json:"finishReason"`
		TotalUsage   *TotalUsage  `json:"totalUsage"`
	}
	EventError struct {
		Err error `json:"-"`
	}
)

func (EventTextStart) StreamEventType() EventType      { return EventTypeTextStart }
func (EventTextDelta) StreamEventType() EventType      { return EventTypeTextDelta }
func (EventTextEnd) StreamEventType() EventType        { return EventTypeTextEnd }
func (EventReasoningStart) StreamEventType() EventType { return EventTypeReasoningStart }
func (EventReasoningDelta) StreamEventType() EventType { return EventTypeReasoningDelta }
func (EventReasoningEnd) StreamEventType() EventType   { return EventTypeReasoningEnd }
func (EventToolCall) StreamEventType() EventType       { return EventTypeToolCall }
func (EventFinish) StreamEventType() EventType         { return EventTypeFinish }
func (EventError) StreamEventType() EventType          { return EventTypeError }

// FinishReason is the upstream vocabulary for why generation stopped.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool-calls"
	FinishReasonContentFilter FinishReason = "content-filter"
	FinishReasonError         FinishReason = "error"
	FinishReasonUnknown       FinishReason = "unknown"
)

// TotalUsage carries the upstream token accounting reported at finish time.
// CachedInputTokens is zero when the provider reports no cache activity.
type TotalUsage struct {
	InputTokens       int64 `json:"inputTokens"`
	OutputTokens      int64 `json:"outputTokens"`
	CachedInputTokens int64 `json:"cachedInputTokens,omitzero"`
}

// Of adapts a fixed event slice into a Stream. Intended for tests and for
// callers that buffer a full turn before replaying it.
func Of(events ...Event) Stream {
	return func(yield func(Event, error) bool) {
		for _, event := range events {
			if !yield(event, nil) {
				return
			}
		}
	}
}
