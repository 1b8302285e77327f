package modelstream

import (
	"testing"
)

func TestOf(t *testing.T) {
	events := []Event{
		&EventTextStart{ID: "txt_1"},
		&EventTextDelta{ID: "txt_1", Text: "hello"},
		&EventTextEnd{ID: "txt_1"},
		&EventFinish{FinishReason: FinishReasonStop},
	}

	var got []Event
	for event, err := range Of(events...) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, event)
	}
	if len(got) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(got))
	}
	for i := range got {
		if got[i] != events[i] {
			t.Errorf("event %d: got %v, want %v", i, got[i], events[i])
		}
	}
}

func TestOf_EarlyStop(t *testing.T) {
	var seen int
	for range Of(
		&EventTextDelta{ID: "txt_1", Text: "a"},
		&EventTextDelta{ID: "txt_1", Text: "b"},
		&EventTextDelta{ID: "txt_1", Text: "c"},
	) {
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Errorf("expected iteration to stop after 2 events, saw %d", seen)
	}
}

func TestStreamEventTypes(t *testing.T) {
	tests := []struct {
		event Event
		want  EventType
	}{
		{&EventTextStart{}, EventTypeTextStart},
		{&EventTextDelta{}, EventTypeTextDelta},
		{&EventTextEnd{}, EventTypeTextEnd},
		{&EventReasoningStart{}, EventTypeReasoningStart},
		{&EventReasoningDelta{}, EventTypeReasoningDelta},
		{&EventReasoningEnd{}, EventTypeReasoningEnd},
		{&EventToolCall{}, EventTypeToolCall},
		{&EventFinish{}, EventTypeFinish},
		{&EventError{}, EventTypeError},
	}
	for _, tt := range tests {
		if got := tt.event.StreamEventType(); got != tt.want {
			t.Errorf("%T.StreamEventType() = %q, want %q", tt.event, got, tt.want)
		}
	}
}
