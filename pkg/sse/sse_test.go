package sse

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/anthropic"
)

func TestFormatEvent(t *testing.T) {
	event := &anthropic.EventMessageStop{Type: anthropic.EventTypeMessageStop}
	frame := FormatEvent(event)

	if !strings.HasSuffix(frame, "\n\n") {
		t.Errorf("frame must end with a blank line, got %q", frame)
	}
	lines := strings.Split(strings.TrimSuffix(frame, "\n\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected event line + single data line, got %d lines", len(lines))
	}
	if lines[0] != "event: message_stop" {
		t.Errorf("unexpected event line %q", lines[0])
	}
	payload, isData := strings.CutPrefix(lines[1], "data: ")
	if !isData {
		t.Fatalf("expected data line, got %q", lines[1])
	}
	var decoded struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("data payload is not valid JSON: %v", err)
	}
	if decoded.Type != "message_stop" {
		t.Errorf("payload type %q does not match event line", decoded.Type)
	}
}

func TestFormatEvent_SingleDataLine(t *testing.T) {
	// Payload content must never be split across data lines, whatever it
	// contains.
	event := &anthropic.EventContentBlockDelta{
		Type:  anthropic.EventTypeContentBlockDelta,
		Index: 0,
		Delta: &anthropic.MessageContentDelta{
			Type: anthropic.MessageContentDeltaTypeTextDelta,
			Text: "line one\nline two",
		},
	}
	frame := FormatEvent(event)
	if strings.Count(frame, "data: ") != 1 {
		t.Errorf("expected exactly one data line, got %q", frame)
	}
}

func TestFormatDone(t *testing.T) {
	if FormatDone() != "data: [DONE]\n\n" {
		t.Errorf("unexpected done frame %q", FormatDone())
	}
}

func TestWriter(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf)

	if err := w.WriteEvent(&anthropic.EventPing{Type: anthropic.EventTypePing}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := w.WriteError(&anthropic.StreamError{ErrType: anthropic.APIError, ErrMessage: "boom"}); err != nil {
		t.Fatalf("WriteError: %v", err)
	}
	if err := w.WriteDone(); err != nil {
		t.Fatalf("WriteDone: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "event: ping\n") {
		t.Errorf("missing ping frame in %q", out)
	}
	if !strings.Contains(out, "event: error\n") {
		t.Errorf("missing error frame in %q", out)
	}
	if !strings.Contains(out, `"message":"boom"`) {
		t.Errorf("missing error payload in %q", out)
	}
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Errorf("missing done sentinel in %q", out)
	}
}
