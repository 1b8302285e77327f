package utils

import (
	"net/http"
	"strings"
	"testing"
)

type encPayload struct {
	Model string `json:"model"`
	N     int    `json:"n"`
}

func TestJSONEncode_Success(t *testing.T) {
	got, err := JSONEncode(encPayload{Model: "gpt-4o", N: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "{\"model\":\"gpt-4o\",\"n\":3}" {
		t.Fatalf("unexpected json: %s", got)
	}
}

func TestJSONEncode_Error(t *testing.T) {
	if _, err := JSONEncode(make(chan int)); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestJSONEncodeString_Success(t *testing.T) {
	got := JSONEncodeString(encPayload{Model: "qwen-max", N: 1})
	if got != "{\"model\":\"qwen-max\",\"n\":1}" {
		t.Fatalf("unexpected json: %s", got)
	}
}

func TestJSONEncodeString_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic, got none")
		}
	}()
	_ = JSONEncodeString(func() {})
}

func TestIsContentType(t *testing.T) {
	h := http.Header{"Content-Type": []string{"text/event-stream; charset=utf-8"}}
	if !IsContentType(h, "text/event-stream") {
		t.Fatalf("expected true for text/event-stream with charset")
	}
	if IsContentType(h, "application/json") {
		t.Fatalf("expected false for application/json")
	}
	h = http.Header{"Content-Type": []string{"application/json ; charset=utf-8"}}
	if !IsContentType(h, "application/json") {
		t.Fatalf("expected true for media type with space before params")
	}
	h = http.Header{}
	if IsContentType(h, "application/json") {
		t.Fatalf("expected false when header missing")
	}
}

func TestGenerateID(t *testing.T) {
	id := GenerateID("msg")
	if !strings.HasPrefix(id, "msg_") {
		t.Fatalf("expected msg_ prefix, got %s", id)
	}
	hexPart := strings.TrimPrefix(id, "msg_")
	if len(hexPart) != 24 {
		t.Fatalf("expected 24 hex characters, got %d", len(hexPart))
	}
	for _, c := range hexPart {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("unexpected character %q in id %s", c, id)
		}
	}
	if GenerateID("msg") == id {
		t.Fatalf("expected distinct ids across calls")
	}
}
