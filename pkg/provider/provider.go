// Package provider implements the HTTP client for upstream OpenAI-compatible
// chat-completions endpoints and converts their SSE chunks into the
// provider-agnostic event stream.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/chatcompletions"
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/modelstream"
	"github.com/eastwind-labs/anthropic-bridge/pkg/profile"
	"github.com/eastwind-labs/anthropic-bridge/pkg/utils"
)

const chatCompletionsPath = "/v1/chat/completions"

// maxAttempts bounds transport-level retries; HTTP error responses are never
// retried.
const maxAttempts = 3

type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// StreamChatCompletion sends req to the upstream endpoint configured in the
// context profile and returns the resulting event stream. The returned stream
// owns the response body and closes it when fully consumed or abandoned.
func (c *Client) StreamChatCompletion(
	ctx context.Context,
	req *chatcompletions.Request,
	opts ...RequestOption,
) (modelstream.Stream, http.Header, error) {
	prof, _ := profile.FromContext(ctx)
	upstream := prof.GetUpstream()
	response, err := c.do(ctx, upstream, req, opts)
	if err != nil {
		return nil, nil, err
	}
	if response.StatusCode/100 != 2 {
		return nil, response.Header, parseError[*chatcompletions.Error](response)
	}
	if !utils.IsContentType(response.Header, "text/event-stream") {
		response.Body.Close()
		return nil, response.Header, fmt.Errorf("unexpected Content-Type: %s", response.Header.Get("Content-Type"))
	}
	return makeModelStream(response.Body), response.Header, nil
}

func (c *Client) do(
	ctx context.Context,
	upstream *profile.UpstreamConfig,
	req *chatcompletions.Request,
	opts []RequestOption,
) (response *http.Response, err error) {
	body, err := utils.JSONEncode(req)
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var request *http.Request
		request, err = http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			upstream.GetBaseURL()+chatCompletionsPath,
			strings.NewReader(body),
		)
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		if apiKey := upstream.GetAPIKey(); apiKey != "" {
			request.Header.Set("Authorization", "Bearer "+apiKey)
		}
		for _, opt := range opts {
			opt(request)
		}
		response, err = c.httpClient.Do(request)
		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, err
}
