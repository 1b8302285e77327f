// Package snapshot records per-request traces for offline inspection and
// replay.
package snapshot

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/anthropic"
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/chatcompletions"
)

type Recorder interface {
	io.Closer
	Record(snapshot *Snapshot) error
}

func NopRecorder() Recorder {
	return nopRecorder{}
}

type nopRecorder struct{}

func (nopRecorder) Close() error                    { return nil }
func (nopRecorder) Record(snapshot *Snapshot) error { return nil }

type Snapshot struct {
	RequestTime       time.Time                         `json:"request_time"`
	FinishTime        time.Time                         `json:"finish_time"`
	Version           string                            `json:"version"`
	RequestID         string                            `json:"request_id"`
	StatusCode        int                               `json:"status_code"`
	Profile           string                            `json:"profile,omitempty"`
	Config            *Config                           `json:"config,omitempty"`
	Error             *Error                            `json:"error,omitempty"`
	AnthropicRequest  *anthropic.GenerateMessageRequest `json:"anthropic_request,omitempty"`
	AnthropicResponse *anthropic.Message                `json:"anthropic_response,omitempty"`
	UpstreamRequest   *chatcompletions.Request          `json:"upstream_request,omitempty"`
	RequestHeader     Header                            `json:"request_header,omitempty"`
	ResponseHeader    Header                            `json:"response_header,omitempty"`
}

type Error struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Config mirrors the profile options in effect for the request, minus
// secrets.
type Config struct {
	BaseURL string         `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	Options *OptionsConfig `yaml:"options" json:"options" mapstructure:"options"`
}

type OptionsConfig struct {
	Models           map[string]string `yaml:"models" json:"models" mapstructure:"models"`
	MinMaxTokens     int               `yaml:"min_max_tokens" json:"min_max_tokens" mapstructure:"min_max_tokens"`
	ImageInputTokens int64             `yaml:"image_input_tokens" json:"image_input_tokens" mapstructure:"image_input_tokens"`
}

type Header http.Header

func (h Header) MarshalJSON() ([]byte, error) {
	x := make(map[string]any, len(h))
	for k, vv := range h {
		switch len(vv) {
		case 0:
			continue
		case 1:
			x[k] = vv[0]
		default:
			x[k] = vv
		}
	}
	return json.Marshal(x)
}
