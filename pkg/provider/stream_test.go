package provider

import (
	"io"
	"strings"
	"testing"

	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/modelstream"
)

func runModelStream(t *testing.T, body string) []modelstream.Event {
	t.Helper()
	var events []modelstream.Event
	for event, err := range makeModelStream(io.NopCloser(strings.NewReader(body))) {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func eventTypes(events []modelstream.Event) []modelstream.EventType {
	types := make([]modelstream.EventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.StreamEventType())
	}
	return types
}

func TestMakeModelStream_Text(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"role":"assistant","content":"Hello"}}]}`,
		``,
		`data: {"choices":[{"index":0,"delta":{"content":" world"}}]}`,
		``,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		``,
		`data: {"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"prompt_tokens_details":{"cached_tokens":2}}}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	events := runModelStream(t, body)
	want := []modelstream.EventType{
		modelstream.EventTypeTextStart,
		modelstream.EventTypeTextDelta,
		modelstream.EventTypeTextDelta,
		modelstream.EventTypeTextEnd,
		modelstream.EventTypeFinish,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	start := events[0].(*modelstream.EventTextStart)
	if !strings.HasPrefix(start.ID, "txt_") {
		t.Errorf("text segment id should carry txt_ prefix, got %q", start.ID)
	}
	first := events[1].(*modelstream.EventTextDelta)
	second := events[2].(*modelstream.EventTextDelta)
	if first.ID != start.ID || second.ID != start.ID {
		t.Error("all deltas of a segment must share the segment id")
	}
	if first.Text != "Hello" || second.Text != " world" {
		t.Errorf("unexpected delta texts %q, %q", first.Text, second.Text)
	}
	end := events[3].(*modelstream.EventTextEnd)
	if end.ID != start.ID {
		t.Error("text end must reference the open segment")
	}
	finish := events[4].(*modelstream.EventFinish)
	if finish.FinishReason != modelstream.FinishReasonStop {
		t.Errorf("unexpected finish reason %q", finish.FinishReason)
	}
	if finish.TotalUsage == nil {
		t.Fatal("expected usage on finish event")
	}
	if finish.TotalUsage.InputTokens != 10 || finish.TotalUsage.OutputTokens != 5 || finish.TotalUsage.CachedInputTokens != 2 {
		t.Errorf("unexpected usage %+v", finish.TotalUsage)
	}
}

func TestMakeModelStream_ReasoningThenText(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"reasoning_content":"thinking"}}]}`,
		``,
		`data: {"choices":[{"index":0,"delta":{"content":"answer"}}]}`,
		``,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	got := eventTypes(runModelStream(t, body))
	want := []modelstream.EventType{
		modelstream.EventTypeReasoningStart,
		modelstream.EventTypeReasoningDelta,
		modelstream.EventTypeReasoningEnd,
		modelstream.EventTypeTextStart,
		modelstream.EventTypeTextDelta,
		modelstream.EventTypeTextEnd,
		modelstream.EventTypeFinish,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMakeModelStream_ReasoningFieldVariant(t *testing.T) {
	// Some providers name the field "reasoning" instead of "reasoning_content".
	body := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"reasoning":"hmm"}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	events := runModelStream(t, body)
	if len(events) < 2 || events[0].StreamEventType() != modelstream.EventTypeReasoningStart {
		t.Fatalf("expected reasoning events, got %v", eventTypes(events))
	}
	delta := events[1].(*modelstream.EventReasoningDelta)
	if delta.Text != "hmm" {
		t.Errorf("unexpected reasoning delta %q", delta.Text)
	}
}

func TestMakeModelStream_ToolCallFragments(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`,
		``,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`,
		``,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Paris\"}"}}]}}]}`,
		``,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	events := runModelStream(t, body)
	got := eventTypes(events)
	want := []modelstream.EventType{
		modelstream.EventTypeToolCall,
		modelstream.EventTypeFinish,
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}

	toolCall := events[0].(*modelstream.EventToolCall)
	if toolCall.ToolCallID != "call_1" || toolCall.ToolName != "get_weather" {
		t.Errorf("unexpected tool call identity: %+v", toolCall)
	}
	if string(toolCall.Input) != `{"city":"Paris"}` {
		t.Errorf("fragments should concatenate into complete input, got %s", toolCall.Input)
	}
	finish := events[1].(*modelstream.EventFinish)
	if finish.FinishReason != modelstream.FinishReasonToolCalls {
		t.Errorf("unexpected finish reason %q", finish.FinishReason)
	}
}

func TestMakeModelStream_ToolCallWithoutArguments(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"list_files"}}]}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	events := runModelStream(t, body)
	toolCall := events[0].(*modelstream.EventToolCall)
	if string(toolCall.Input) != "{}" {
		t.Errorf("argument-less tool call should carry {}, got %s", toolCall.Input)
	}
}

func TestMakeModelStream_ParallelToolCalls(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"a","arguments":"{}"}},{"index":1,"id":"call_2","function":{"name":"b","arguments":"{}"}}]}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	events := runModelStream(t, body)
	var ids []string
	for _, event := range events {
		if toolCall, isToolCall := event.(*modelstream.EventToolCall); isToolCall {
			ids = append(ids, toolCall.ToolCallID)
		}
	}
	if len(ids) != 2 || ids[0] != "call_1" || ids[1] != "call_2" {
		t.Errorf("expected tool calls in index order, got %v", ids)
	}
}

func TestMakeModelStream_InlineError(t *testing.T) {
	body := strings.Join([]string{
		`data: {"error":{"message":"upstream exploded","type":"server_error"}}`,
		``,
	}, "\n")

	events := runModelStream(t, body)
	if len(events) != 1 {
		t.Fatalf("expected single error event, got %v", eventTypes(events))
	}
	errorEvent, isError := events[0].(*modelstream.EventError)
	if !isError {
		t.Fatalf("expected error event, got %T", events[0])
	}
	if errorEvent.Err == nil || !strings.Contains(errorEvent.Err.Error(), "upstream exploded") {
		t.Errorf("unexpected error %v", errorEvent.Err)
	}
}

func TestMakeModelStream_MalformedChunk(t *testing.T) {
	body := strings.Join([]string{
		`data: {not json`,
		``,
	}, "\n")

	var streamErr error
	for _, err := range makeModelStream(io.NopCloser(strings.NewReader(body))) {
		if err != nil {
			streamErr = err
			break
		}
	}
	if streamErr == nil {
		t.Fatal("expected error for malformed chunk")
	}
}

func TestMakeModelStream_FinishWithoutReason(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"content":"hi"}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	events := runModelStream(t, body)
	finish := events[len(events)-1].(*modelstream.EventFinish)
	if finish.FinishReason != modelstream.FinishReasonUnknown {
		t.Errorf("missing finish_reason should map to unknown, got %q", finish.FinishReason)
	}
	if finish.TotalUsage != nil {
		t.Errorf("no usage chunk means nil usage, got %+v", finish.TotalUsage)
	}
}

func TestConvertFinishReason(t *testing.T) {
	tests := []struct {
		in   string
		want modelstream.FinishReason
	}{
		{"stop", modelstream.FinishReasonStop},
		{"length", modelstream.FinishReasonLength},
		{"tool_calls", modelstream.FinishReasonToolCalls},
		{"content_filter", modelstream.FinishReasonContentFilter},
		{"something_else", modelstream.FinishReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := convertFinishReason(tt.in); got != tt.want {
				t.Errorf("convertFinishReason(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMakeDataIterator_IgnoresNonDataLines(t *testing.T) {
	body := strings.Join([]string{
		`: keep-alive comment`,
		`event: chunk`,
		`data: {"value":1}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	var count int
	for data, err := range makeDataIterator(io.NopCloser(strings.NewReader(body))) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"value":1}` {
			t.Errorf("unexpected data %s", data)
		}
		count++
	}
	if count != 1 {
		t.Errorf("expected 1 data chunk, got %d", count)
	}
}
