// Package adapter translates the upstream generation-event stream into the
// Anthropic Messages streaming protocol. One StreamAdapter instance handles
// exactly one generation turn; all state is owned by that instance and no
// synchronization is required.
package adapter

import (
	"encoding/json"
	"errors"

	"github.com/samber/lo"

	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/anthropic"
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/modelstream"
	"github.com/eastwind-labs/anthropic-bridge/pkg/utils"
)

// ErrUpstreamFailure reports an upstream error event that carried no cause.
var ErrUpstreamFailure = errors.New("upstream stream reported an error")

// Emit receives each target-protocol event as it is produced. It is invoked
// synchronously and is expected not to block.
type Emit func(event anthropic.Event)

type Option func(*StreamAdapter)

// WithMessageID sets a caller-known message id instead of a generated one.
func WithMessageID(id string) Option {
	return func(sa *StreamAdapter) {
		sa.messageID = id
	}
}

// WithInputTokens pre-seeds the input-token count reported on message_start.
// Seeds are additive; see UsageAccumulator.
func WithInputTokens(inputTokens int64) Option {
	return func(sa *StreamAdapter) {
		sa.usage.AddInputTokens(inputTokens)
	}
}

// New constructs an adapter for a single generation turn. The emit callback
// may be nil when only the aggregated non-streaming response is wanted.
func New(model string, emit Emit, options ...Option) *StreamAdapter {
	sa := &StreamAdapter{
		model:     model,
		emit:      emit,
		openIndex: -1,
		builder:   anthropic.NewMessageBuilder(),
	}
	for _, applyOption := range options {
		applyOption(sa)
	}
	if sa.messageID == "" {
		sa.messageID = utils.GenerateID("msg")
	}
	return sa
}

// StreamAdapter is the protocol state machine. ProcessStream is intended to be
// called exactly once per instance.
type StreamAdapter struct {
	messageID string
	model     string
	emit      Emit
	usage     UsageAccumulator

	// Block lifecycle state. At most one block is open at the wire level;
	// indices increase monotonically and are never reused.
	nextIndex int
	openIndex int
	openType  anthropic.MessageContentType
	openID    string

	seenToolCalls map[string]struct{}

	finished     bool
	finishReason modelstream.FinishReason
	done         bool

	builder    *anthropic.MessageBuilder
	builderErr error
}

// MessageID returns the id carried by message_start (msg_-prefixed when
// generated).
func (sa *StreamAdapter) MessageID() string { return sa.messageID }

// AddInputTokens pre-seeds additional input tokens before the stream starts,
// e.g. fixed estimates for content the upstream tokenizer never sees.
func (sa *StreamAdapter) AddInputTokens(inputTokens int64) {
	sa.usage.AddInputTokens(inputTokens)
}

// ProcessStream consumes the upstream event sequence and drives emission.
// message_start is emitted before the first upstream event is read, so even an
// empty sequence produces a well-formed envelope. An upstream error event or
// iterator error aborts the turn: ProcessStream returns that error and emits
// nothing further (no message_stop).
func (sa *StreamAdapter) ProcessStream(stream modelstream.Stream) error {
	sa.emitEvent(&anthropic.EventMessageStart{
		Type: anthropic.EventTypeMessageStart,
		Message: &anthropic.Message{
			ID:    sa.messageID,
			Type:  anthropic.MessageTypeMessage,
			Role:  anthropic.MessageRoleAssistant,
			Model: sa.model,
			Usage: &anthropic.Usage{
				InputTokens:  sa.usage.InputTokens(),
				OutputTokens: 0,
			},
		},
	})
	for event, err := range stream {
		if err != nil {
			return err
		}
		switch e := event.(type) {
		case *modelstream.EventTextStart:
			// Text blocks open lazily on the first non-empty delta, so
			// providers that announce ids for ultimately empty segments never
			// produce a spurious empty text block.
		case *modelstream.EventTextDelta:
			sa.handleTextDelta(e)
		case *modelstream.EventTextEnd:
			sa.handleBlockEnd(e.ID, anthropic.MessageContentTypeText)
		case *modelstream.EventReasoningStart:
			sa.startBlock(anthropic.MessageContentTypeThinking, e.ID, &anthropic.MessageContent{
				Type: anthropic.MessageContentTypeThinking,
			})
		case *modelstream.EventReasoningDelta:
			sa.handleReasoningDelta(e)
		case *modelstream.EventReasoningEnd:
			sa.handleBlockEnd(e.ID, anthropic.MessageContentTypeThinking)
		case *modelstream.EventToolCall:
			sa.handleToolCall(e)
		case *modelstream.EventFinish:
			sa.handleFinish(e)
		case *modelstream.EventError:
			if e.Err != nil {
				return e.Err
			}
			return ErrUpstreamFailure
		}
		if sa.done {
			break
		}
	}
	if !sa.done {
		sa.finalize()
	}
	return sa.builderErr
}

// BuildNonStreamingResponse returns the aggregated message equivalent to the
// full streamed sequence. Valid only after ProcessStream returned nil; it is a
// pure read and may be called any number of times.
func (sa *StreamAdapter) BuildNonStreamingResponse() *anthropic.Message {
	return sa.builder.Message()
}

func (sa *StreamAdapter) handleTextDelta(e *modelstream.EventTextDelta) {
	// Zero-length deltas neither open a block nor produce an event.
	if e.Text == "" {
		return
	}
	if sa.openIndex < 0 || sa.openType != anthropic.MessageContentTypeText || sa.openID != e.ID {
		sa.startBlock(anthropic.MessageContentTypeText, e.ID, &anthropic.MessageContent{
			Type: anthropic.MessageContentTypeText,
		})
	}
	sa.emitEvent(&anthropic.EventContentBlockDelta{
		Type:  anthropic.EventTypeContentBlockDelta,
		Index: sa.openIndex,
		Delta: &anthropic.MessageContentDelta{
			Type: anthropic.MessageContentDeltaTypeTextDelta,
			Text: e.Text,
		},
	})
}

func (sa *StreamAdapter) handleReasoningDelta(e *modelstream.EventReasoningDelta) {
	if e.Text == "" {
		return
	}
	if sa.openIndex < 0 || sa.openType != anthropic.MessageContentTypeThinking || sa.openID != e.ID {
		sa.startBlock(anthropic.MessageContentTypeThinking, e.ID, &anthropic.MessageContent{
			Type: anthropic.MessageContentTypeThinking,
		})
	}
	sa.emitEvent(&anthropic.EventContentBlockDelta{
		Type:  anthropic.EventTypeContentBlockDelta,
		Index: sa.openIndex,
		Delta: &anthropic.MessageContentDelta{
			Type:     anthropic.MessageContentDeltaTypeThinkingDelta,
			Thinking: e.Text,
		},
	})
}

// handleBlockEnd closes the open block when the end event actually refers to
// it. Redundant end events for unknown or already-closed ids are no-ops:
// upstream producers are allowed to emit them.
func (sa *StreamAdapter) handleBlockEnd(id string, contentType anthropic.MessageContentType) {
	if sa.openIndex >= 0 && sa.openType == contentType && sa.openID == id {
		sa.closeOpenBlock()
	}
}

func (sa *StreamAdapter) handleToolCall(e *modelstream.EventToolCall) {
	if sa.seenToolCalls == nil {
		sa.seenToolCalls = make(map[string]struct{})
	}
	// A duplicate tool-call signal for an id that already opened a block must
	// not produce a second content_block_start.
	if _, duplicate := sa.seenToolCalls[e.ToolCallID]; duplicate {
		return
	}
	sa.seenToolCalls[e.ToolCallID] = struct{}{}
	sa.startBlock(anthropic.MessageContentTypeToolUse, e.ToolCallID, &anthropic.MessageContent{
		Type:  anthropic.MessageContentTypeToolUse,
		ID:    e.ToolCallID,
		Name:  e.ToolName,
		Input: json.RawMessage("{}"),
	})
	partialJSON := string(e.Input)
	if partialJSON == "" {
		partialJSON = "{}"
	}
	sa.emitEvent(&anthropic.EventContentBlockDelta{
		Type:  anthropic.EventTypeContentBlockDelta,
		Index: sa.openIndex,
		Delta: &anthropic.MessageContentDelta{
			Type:        anthropic.MessageContentDeltaTypeInputJSONDelta,
			PartialJSON: partialJSON,
		},
	})
	// The tool block stays open; it closes at the next block transition or at
	// stream end.
}

func (sa *StreamAdapter) handleFinish(e *modelstream.EventFinish) {
	// Some providers report the finish reason more than once; only the first
	// one counts.
	if !sa.finished {
		sa.finished = true
		sa.finishReason = e.FinishReason
		sa.usage.ApplyTotal(e.TotalUsage)
	}
	sa.finalize()
	sa.done = true
}

func (sa *StreamAdapter) startBlock(contentType anthropic.MessageContentType, id string, contentBlock *anthropic.MessageContent) {
	sa.closeOpenBlock()
	sa.openIndex = sa.nextIndex
	sa.nextIndex++
	sa.openType = contentType
	sa.openID = id
	sa.emitEvent(&anthropic.EventContentBlockStart{
		Type:         anthropic.EventTypeContentBlockStart,
		Index:        sa.openIndex,
		ContentBlock: contentBlock,
	})
}

func (sa *StreamAdapter) closeOpenBlock() {
	if sa.openIndex < 0 {
		return
	}
	sa.emitEvent(&anthropic.EventContentBlockStop{
		Type:  anthropic.EventTypeContentBlockStop,
		Index: sa.openIndex,
	})
	sa.openIndex = -1
	sa.openID = ""
	sa.openType = ""
}

// finalize flushes any still-open block and emits the terminal
// message_delta/message_stop pair. Without a finish event the stop reason is
// left null and the usage snapshot carries whatever was accumulated.
func (sa *StreamAdapter) finalize() {
	sa.closeOpenBlock()
	delta := &anthropic.Message{}
	if sa.finished {
		delta.StopReason = lo.ToPtr(ConvertFinishReasonToStopReason(sa.finishReason))
	}
	sa.emitEvent(&anthropic.EventMessageDelta{
		Type:  anthropic.EventTypeMessageDelta,
		Delta: delta,
		Usage: sa.usage.Snapshot(),
	})
	sa.emitEvent(&anthropic.EventMessageStop{Type: anthropic.EventTypeMessageStop})
}

func (sa *StreamAdapter) emitEvent(event anthropic.Event) {
	if sa.emit != nil {
		sa.emit(event)
	}
	if err := sa.builder.Add(event); err != nil && sa.builderErr == nil {
		sa.builderErr = err
	}
}
