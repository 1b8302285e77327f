package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/chatcompletions"
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/modelstream"
	"github.com/eastwind-labs/anthropic-bridge/pkg/utils"
)

func makeDataIterator(r io.ReadCloser) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		defer r.Close()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var isDataChunk bool
			line, isDataChunk = bytes.CutPrefix(line, []byte("data:"))
			if !isDataChunk {
				continue
			}
			line = bytes.TrimSpace(line)
			if bytes.EqualFold(line, []byte("[DONE]")) {
				return
			}
			var data json.RawMessage
			if err := json.Unmarshal(line, &data); err != nil {
				yield(nil, err)
				return
			}
			if !yield(data, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// makeModelStream converts the upstream SSE chunk sequence into generation
// events. Tool-call fragments are accumulated across chunks and surface as
// single complete tool-call events once the upstream stream ends; the finish
// event is always last so it can carry the usage totals from the final chunk.
func makeModelStream(r io.ReadCloser) modelstream.Stream {
	dataIterator := makeDataIterator(r)
	return func(yield func(modelstream.Event, error) bool) {
		converter := newChunkConverter()
		for data, err := range dataIterator {
			if err != nil {
				yield(nil, err)
				return
			}
			var upstreamErr *chatcompletions.Error
			if err := json.Unmarshal(data, &upstreamErr); err == nil && upstreamErr.Inner.Message != "" {
				yield(&modelstream.EventError{Err: upstreamErr}, nil)
				return
			}
			for _, event := range converter.feed(data) {
				if !yield(event, nil) {
					return
				}
			}
		}
		for _, event := range converter.finish() {
			if !yield(event, nil) {
				return
			}
		}
	}
}

type chunkConverter struct {
	textID       string
	reasoningID  string
	toolCalls    map[int64]*toolCallBuilder
	toolOrder    []int64
	finishReason modelstream.FinishReason
	usage        *modelstream.TotalUsage
}

type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

func newChunkConverter() *chunkConverter {
	return &chunkConverter{
		toolCalls: make(map[int64]*toolCallBuilder),
	}
}

func (c *chunkConverter) feed(data []byte) (events []modelstream.Event) {
	chunk := gjson.ParseBytes(data)
	delta := chunk.Get("choices.0.delta")
	if reasoning := deltaReasoning(delta); reasoning.Type == gjson.String && reasoning.Str != "" {
		events = append(events, c.closeText()...)
		if c.reasoningID == "" {
			c.reasoningID = utils.GenerateID("rsn")
			events = append(events, &modelstream.EventReasoningStart{ID: c.reasoningID})
		}
		events = append(events, &modelstream.EventReasoningDelta{ID: c.reasoningID, Text: reasoning.Str})
	}
	if content := delta.Get("content"); content.Type == gjson.String && content.Str != "" {
		events = append(events, c.closeReasoning()...)
		if c.textID == "" {
			c.textID = utils.GenerateID("txt")
			events = append(events, &modelstream.EventTextStart{ID: c.textID})
		}
		events = append(events, &modelstream.EventTextDelta{ID: c.textID, Text: content.Str})
	}
	for _, toolCall := range delta.Get("tool_calls").Array() {
		index := toolCall.Get("index").Int()
		builder, ok := c.toolCalls[index]
		if !ok {
			builder = new(toolCallBuilder)
			c.toolCalls[index] = builder
			c.toolOrder = append(c.toolOrder, index)
		}
		if id := toolCall.Get("id").Str; id != "" {
			builder.id = id
		}
		if name := toolCall.Get("function.name").Str; name != "" {
			builder.name = name
		}
		builder.args.WriteString(toolCall.Get("function.arguments").Str)
	}
	if finish := chunk.Get("choices.0.finish_reason"); finish.Type == gjson.String && finish.Str != "" {
		c.finishReason = convertFinishReason(finish.Str)
	}
	if usage := chunk.Get("usage"); usage.IsObject() {
		c.usage = &modelstream.TotalUsage{
			InputTokens:       usage.Get("prompt_tokens").Int(),
			OutputTokens:      usage.Get("completion_tokens").Int(),
			CachedInputTokens: usage.Get("prompt_tokens_details.cached_tokens").Int(),
		}
	}
	return events
}

// deltaReasoning reads the reasoning delta field; providers disagree on its
// name, "reasoning_content" and "reasoning" both occur in the wild.
func deltaReasoning(delta gjson.Result) gjson.Result {
	if reasoning := delta.Get("reasoning_content"); reasoning.Exists() {
		return reasoning
	}
	return delta.Get("reasoning")
}

func (c *chunkConverter) finish() (events []modelstream.Event) {
	events = append(events, c.closeReasoning()...)
	events = append(events, c.closeText()...)
	for _, index := range c.toolOrder {
		builder := c.toolCalls[index]
		input := builder.args.String()
		if input == "" {
			input = "{}"
		}
		events = append(events, &modelstream.EventToolCall{
			ToolCallID: builder.id,
			ToolName:   builder.name,
			Input:      json.RawMessage(input),
		})
	}
	finishReason := c.finishReason
	if finishReason == "" {
		finishReason = modelstream.FinishReasonUnknown
	}
	events = append(events, &modelstream.EventFinish{
		FinishReason: finishReason,
		TotalUsage:   c.usage,
	})
	return events
}

func (c *chunkConverter) closeText() []modelstream.Event {
	if c.textID == "" {
		return nil
	}
	event := &modelstream.EventTextEnd{ID: c.textID}
	c.textID = ""
	return []modelstream.Event{event}
}

func (c *chunkConverter) closeReasoning() []modelstream.Event {
	if c.reasoningID == "" {
		return nil
	}
	event := &modelstream.EventReasoningEnd{ID: c.reasoningID}
	c.reasoningID = ""
	return []modelstream.Event{event}
}

func convertFinishReason(finishReason string) modelstream.FinishReason {
	switch chatcompletions.FinishReason(finishReason) {
	case chatcompletions.FinishReasonStop:
		return modelstream.FinishReasonStop
	case chatcompletions.FinishReasonLength:
		return modelstream.FinishReasonLength
	case chatcompletions.FinishReasonToolCalls:
		return modelstream.FinishReasonToolCalls
	case chatcompletions.FinishReasonContentFilter:
		return modelstream.FinishReasonContentFilter
	default:
		return modelstream.FinishReasonUnknown
	}
}

type Error interface {
	error

	Type() string
	Message() string
	Source() string

	StatusCode() int
	SetStatusCode(int)
}

func ParseError(err error) (e Error, is bool) {
	return e, errors.As(err, &e)
}

func parseError[E Error](r *http.Response) error {
	defer r.Body.Close()
	var e E
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if utils.IsContentType(r.Header, "application/json") {
		if err = json.Unmarshal(body, &e); err != nil {
			return err
		}
		e.SetStatusCode(r.StatusCode)
		return e
	} else {
		return errors.New(string(body))
	}
}
