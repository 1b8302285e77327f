// Package sse renders target-protocol events as Server-Sent-Events frames.
package sse

import (
	"fmt"
	"io"
	"net/http"

	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/anthropic"
	"github.com/eastwind-labs/anthropic-bridge/pkg/utils"
)

// FormatEvent renders one event as an SSE frame: an `event:` line, a single
// `data:` line holding the whole JSON payload, and a blank-line terminator.
// Payloads are never split across multiple data lines.
func FormatEvent(event anthropic.Event) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType(), utils.JSONEncodeString(event))
}

// FormatDone renders the transport-level end-of-stream sentinel. It is
// distinct from the protocol's own message_stop event and is appended by the
// HTTP layer, not by the stream adapter.
func FormatDone() string {
	return "data: [DONE]\n\n"
}

// NewWriter wraps an HTTP response writer for SSE emission. When the
// underlying writer supports flushing, each frame is flushed immediately.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if flusher, isFlusher := w.(http.Flusher); isFlusher {
		sw.flusher = flusher
	}
	return sw
}

type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func (sw *Writer) WriteEvent(event anthropic.Event) error {
	return sw.write(FormatEvent(event))
}

// WriteError frames a stream-level error event. The SSE stream is never
// repaired after this; it is the last frame the caller should write.
func (sw *Writer) WriteError(streamErr *anthropic.StreamError) error {
	return sw.write(fmt.Sprintf("event: %s\ndata: %s\n\n", anthropic.EventTypeError, utils.JSONEncodeString(streamErr)))
}

func (sw *Writer) WriteDone() error {
	return sw.write(FormatDone())
}

func (sw *Writer) write(frame string) error {
	if _, err := io.WriteString(sw.w, frame); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}
