package adapter

import (
	"context"
	"strings"

	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/anthropic"
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/chatcompletions"
	"github.com/eastwind-labs/anthropic-bridge/pkg/profile"
)

// ConvertAnthropicRequestToChatRequest converts an inbound Messages request
// into the upstream chat-completions shape. The upstream request always
// streams with usage reporting enabled.
//
// Image blocks cannot be forwarded on this transport; they are stripped, and
// each contributes a fixed input-token estimate that the caller should seed
// into the stream adapter so the turn's usage stays plausible. Estimates are
// additive across blocks.
func ConvertAnthropicRequestToChatRequest(
	ctx context.Context,
	src *anthropic.GenerateMessageRequest,
) (dst *chatcompletions.Request, estimatedInputTokens int64) {
	prof, _ := profile.FromContext(ctx)
	imageTokens := prof.GetOptions().GetImageInputTokens()
	maxTokens := src.MaxTokens
	if minMaxTokens := prof.GetOptions().GetMinMaxTokens(); minMaxTokens > 0 && maxTokens < minMaxTokens {
		maxTokens = minMaxTokens
	}
	dst = &chatcompletions.Request{
		Model:         src.Model,
		MaxTokens:     maxTokens,
		Temperature:   src.Temperature,
		TopP:          src.TopP,
		Stream:        true,
		StreamOptions: &chatcompletions.StreamOptions{IncludeUsage: true},
	}
	if targetModel, ok := prof.GetOptions().GetModels()[dst.Model]; ok {
		dst.Model = targetModel
	}
	if len(src.StopSequences) > 0 {
		dst.Stop = src.StopSequences
	}
	if srcToolChoice := src.ToolChoice; srcToolChoice != nil {
		switch srcToolChoice.Type {
		case anthropic.ToolChoiceTypeTool:
			dst.ToolChoice = &chatcompletions.Tool{
				Type:     "function",
				Function: &chatcompletions.ToolFunction{Name: srcToolChoice.Name},
			}
		case anthropic.ToolChoiceTypeAuto:
			dst.ToolChoice = "auto"
		case anthropic.ToolChoiceTypeNone:
			dst.ToolChoice = "none"
		case anthropic.ToolChoiceTypeAny:
			dst.ToolChoice = "required"
		}
	}
	if len(src.Tools) > 0 {
		dst.Tools = make([]*chatcompletions.Tool, 0, len(src.Tools))
		for _, srcTool := range src.Tools {
			dst.Tools = append(dst.Tools, &chatcompletions.Tool{
				Type: "function",
				Function: &chatcompletions.ToolFunction{
					Name:        srcTool.Name,
					Description: srcTool.Description,
					Parameters:  srcTool.InputSchema,
				},
			})
		}
	}
	dstMessages := make([]*chatcompletions.Message, 0, len(src.Messages)+1)
	if len(src.System) > 0 {
		var systemText strings.Builder
		for _, systemContent := range src.System {
			if systemContent.Type == anthropic.MessageContentTypeText && systemContent.Text != "" {
				if systemText.Len() > 0 {
					systemText.WriteString("\n\n")
				}
				systemText.WriteString(systemContent.Text)
			}
		}
		if systemText.Len() > 0 {
			dstMessages = append(dstMessages, &chatcompletions.Message{
				Role:    chatcompletions.RoleSystem,
				Content: systemText.String(),
			})
		}
	}
	for _, srcMessage := range src.Messages {
		var (
			text      strings.Builder
			toolCalls []*chatcompletions.ToolCall
		)
		for _, srcContent := range srcMessage.Content {
			switch srcContent.Type {
			case anthropic.MessageContentTypeText:
				text.WriteString(srcContent.Text)
			case anthropic.MessageContentTypeImage:
				estimatedInputTokens += imageTokens
			case anthropic.MessageContentTypeThinking:
				// Prior-turn thinking is not replayed upstream; providers regard
				// assistant reasoning as write-only history.
			case anthropic.MessageContentTypeToolUse:
				toolCalls = append(toolCalls, &chatcompletions.ToolCall{
					ID:   srcContent.ID,
					Type: "function",
					Function: &chatcompletions.ToolCallFunction{
						Name:      srcContent.Name,
						Arguments: string(srcContent.Input),
					},
				})
			case anthropic.MessageContentTypeToolResult:
				resultText, resultImages := flattenToolResult(srcContent.Content)
				estimatedInputTokens += resultImages * imageTokens
				dstMessages = append(dstMessages, &chatcompletions.Message{
					Role:       chatcompletions.RoleTool,
					ToolCallID: srcContent.ToolUseID,
					Content:    resultText,
				})
			}
		}
		if text.Len() == 0 && len(toolCalls) == 0 {
			continue
		}
		dstMessage := &chatcompletions.Message{Content: text.String()}
		switch srcMessage.Role {
		case anthropic.MessageRoleUser:
			dstMessage.Role = chatcompletions.RoleUser
		case anthropic.MessageRoleAssistant:
			dstMessage.Role = chatcompletions.RoleAssistant
			dstMessage.ToolCalls = toolCalls
		}
		dstMessages = append(dstMessages, dstMessage)
	}
	dst.Messages = dstMessages
	return dst, estimatedInputTokens
}

func flattenToolResult(src anthropic.MessageContents) (text string, images int64) {
	var builder strings.Builder
	for _, srcContent := range src {
		switch srcContent.Type {
		case anthropic.MessageContentTypeText:
			builder.WriteString(srcContent.Text)
		case anthropic.MessageContentTypeImage:
			images++
		}
	}
	return builder.String(), images
}
