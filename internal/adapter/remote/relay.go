package remote

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/armin976/noema-gateway/internal/core/domain"
)

// cloudReply is the best-effort shape of a relay host's single blob answer.
// Hosts reply with a complete chat completion; anything that does not parse
// as one is treated as plain text.
type cloudReply struct {
	Choices []struct {
		Message struct {
			Content   string          `json:"content"`
			ToolCalls []chunkToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chunkUsage `json:"usage"`
}

// runCloudExchange sends the whole request through the store-and-forward
// relay channel and replays the single reply as a token stream: text, then
// any tool calls, then one Done. There is no incremental delivery on this
// path.
func runCloudExchange(ctx context.Context, state *clientState, backend domain.RemoteBackend, input ChatInput, emit emitFunc) {
	if state.relay == nil {
		emit(Token{Kind: TokenError, Err: domain.NewHTTPStatusError(502, []byte("no relay channel configured"))})
		return
	}

	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	payload, err := buildRequestBody(backend, input, endpointKindChat)
	if err != nil {
		emit(Token{Kind: TokenError, Err: err})
		return
	}

	reply, err := state.relay.Exchange(ctx, backend.Relay.DeviceID, conversationID, payload)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		emit(Token{Kind: TokenError, Err: err})
		return
	}

	replayCloudReply(reply, emit)
}

// replayCloudReply normalises the blob into the same token sequence a live
// stream would have produced.
func replayCloudReply(reply string, emit emitFunc) {
	var parsed cloudReply
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil || len(parsed.Choices) == 0 {
		if reply != "" {
			if !emit(Token{Kind: TokenText, Text: reply}) {
				return
			}
		}
		emit(Token{Kind: TokenDone, FinishReason: "stop"})
		return
	}

	choice := parsed.Choices[0]
	if choice.Message.Content != "" {
		if !emit(Token{Kind: TokenText, Text: choice.Message.Content}) {
			return
		}
	}

	acc := NewAccumulator()
	for i, tc := range choice.Message.ToolCalls {
		frag := Fragment{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: string(tc.Function.Arguments),
			Replace:   true,
		}
		if call, changed := acc.Apply(IndexKey(i), frag); changed {
			c := call
			if !emit(Token{Kind: TokenToolCall, ToolCall: &c}) {
				return
			}
		}
	}

	reason := choice.FinishReason
	if reason == "" {
		if len(choice.Message.ToolCalls) > 0 {
			reason = "tool_calls"
		} else {
			reason = "stop"
		}
	}
	emit(Token{Kind: TokenDone, FinishReason: reason, Usage: usageOf(parsed.Usage)})
}
