package adapter

import (
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/anthropic"
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/modelstream"
)

// ConvertFinishReasonToStopReason maps the upstream finish-reason vocabulary
// to the target protocol's stop reasons. The mapping is total: anything
// outside the known vocabulary falls back to end_turn so a surprising
// upstream value can never fail the turn.
func ConvertFinishReasonToStopReason(finishReason modelstream.FinishReason) (stopReason anthropic.StopReason) {
	switch finishReason {
	case modelstream.FinishReasonStop:
		stopReason = anthropic.StopReasonEndTurn
	case modelstream.FinishReasonLength:
		stopReason = anthropic.StopReasonMaxTokens
	case modelstream.FinishReasonToolCalls:
		stopReason = anthropic.StopReasonToolUse
	case modelstream.FinishReasonContentFilter:
		stopReason = anthropic.StopReasonRefusal
	default:
		stopReason = anthropic.StopReasonEndTurn
	}
	return stopReason
}
