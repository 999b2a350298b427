package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/armin976/noema-gateway/internal/core/domain"
)

// TokenKind tags the variants of a stream Token.
type TokenKind int

const (
	TokenText TokenKind = iota
	TokenToolCall
	TokenDone
	TokenError
)

// Token is one normalised unit delivered to a stream consumer. Exactly one
// payload field is meaningful per kind; Done carries the finish reason and
// any usage the backend reported.
type Token struct {
	Kind         TokenKind
	Text         string
	ToolCall     *domain.ToolCall
	FinishReason string
	Usage        *domain.Usage
	Err          error
}

// emitFunc delivers a token to the consumer. A false return means the
// consumer is gone and decoding should stop silently.
type emitFunc func(Token) bool

// flexibleArgs accepts tool-call arguments as either a JSON-encoded string
// (OpenAI) or an inline object (Ollama), normalising both to raw JSON text.
type flexibleArgs string

func (f *flexibleArgs) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleArgs(s)
		return nil
	}
	*f = flexibleArgs(data)
	return nil
}

type chunkToolCall struct {
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string       `json:"name,omitempty"`
		Arguments flexibleArgs `json:"arguments,omitempty"`
	} `json:"function"`
}

type chunkMessage struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []chunkToolCall `json:"tool_calls,omitempty"`
}

type chunkChoice struct {
	Delta        *chunkMessage `json:"delta,omitempty"`
	Message      *chunkMessage `json:"message,omitempty"`
	Text         string        `json:"text,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

type chunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// streamChunk is the union of every stream payload shape the gateway
// understands: OpenAI chunked choices, Ollama NDJSON messages, and
// responses-style typed events.
type streamChunk struct {
	Choices []chunkChoice `json:"choices,omitempty"`
	Usage   *chunkUsage   `json:"usage,omitempty"`

	// Ollama NDJSON shape
	Message    *chunkMessage `json:"message,omitempty"`
	Done       bool          `json:"done,omitempty"`
	DoneReason string        `json:"done_reason,omitempty"`

	// Responses-style event shape
	Type      string `json:"type,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	Delta     string `json:"delta,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Item      *struct {
		Type   string `json:"type,omitempty"`
		ID     string `json:"id,omitempty"`
		CallID string `json:"call_id,omitempty"`
		Name   string `json:"name,omitempty"`
	} `json:"item,omitempty"`
}

// streamDecoder walks a stream body line by line and normalises every
// dialect into Tokens. SSE "data:" frames and bare NDJSON lines are both
// accepted, so one loop serves OpenAI-style and Ollama-style servers.
type streamDecoder struct {
	accumulator *Accumulator
	toolsSeen   bool
	finished    bool
}

func newStreamDecoder() *streamDecoder {
	return &streamDecoder{accumulator: NewAccumulator()}
}

// run consumes body until end of stream, an explicit terminator, or consumer
// departure. Context cancellation is silent: the consumer asked to stop, so
// nothing further is emitted. A body read that fails before the stream
// terminates is returned rather than emitted, so the caller can decide
// whether another transport gets a turn.
func (d *streamDecoder) run(ctx context.Context, body io.Reader, emit emitFunc) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		payload := line
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			payload = strings.TrimSpace(after)
		}

		if payload == "[DONE]" {
			d.finish(emit, "", nil)
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Non-JSON noise between frames is skipped, not fatal
			continue
		}

		if !d.apply(chunk, emit) {
			return nil
		}
		if d.finished {
			return nil
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}

	// Stream ended without an explicit terminator; flush what we have
	if ctx.Err() == nil {
		d.finish(emit, "", nil)
	}
	return nil
}

// apply dispatches one decoded chunk. Returns false when the consumer is gone.
func (d *streamDecoder) apply(chunk streamChunk, emit emitFunc) bool {
	if chunk.Type != "" {
		return d.applyEvent(chunk, emit)
	}
	if chunk.Message != nil || chunk.Done {
		return d.applyOllama(chunk, emit)
	}
	return d.applyChoices(chunk, emit)
}

func (d *streamDecoder) applyChoices(chunk streamChunk, emit emitFunc) bool {
	for _, choice := range chunk.Choices {
		msg := choice.Delta
		replace := false
		if msg == nil && choice.Message != nil {
			msg = choice.Message
			replace = true
		}

		if msg != nil {
			if msg.Content != "" {
				if !emit(Token{Kind: TokenText, Text: msg.Content}) {
					return false
				}
			}
			if !d.applyToolCalls(msg.ToolCalls, replace, emit) {
				return false
			}
		}

		if choice.Text != "" {
			if !emit(Token{Kind: TokenText, Text: choice.Text}) {
				return false
			}
		}

		if choice.FinishReason != "" {
			d.finish(emit, choice.FinishReason, usageOf(chunk.Usage))
			return true
		}
	}
	return true
}

func (d *streamDecoder) applyOllama(chunk streamChunk, emit emitFunc) bool {
	if chunk.Message != nil {
		if chunk.Message.Content != "" {
			if !emit(Token{Kind: TokenText, Text: chunk.Message.Content}) {
				return false
			}
		}
		// Ollama delivers each tool call whole, never fragmented
		if !d.applyToolCalls(chunk.Message.ToolCalls, true, emit) {
			return false
		}
	}
	if chunk.Done {
		reason := chunk.DoneReason
		if d.toolsSeen && reason == "" {
			reason = "tool_calls"
		}
		d.finish(emit, reason, usageOf(chunk.Usage))
	}
	return true
}

func (d *streamDecoder) applyEvent(chunk streamChunk, emit emitFunc) bool {
	switch chunk.Type {
	case "response.output_text.delta":
		if chunk.Delta != "" {
			return emit(Token{Kind: TokenText, Text: chunk.Delta})
		}
	case "response.output_item.added", "response.output_item.done":
		if chunk.Item != nil && chunk.Item.Type == "function_call" {
			frag := Fragment{ID: chunk.Item.CallID, Name: chunk.Item.Name}
			return d.applyFragment(ItemKey(itemIDOf(chunk)), frag, emit)
		}
	case "response.function_call_arguments.delta":
		frag := Fragment{Arguments: chunk.Delta}
		return d.applyFragment(ItemKey(chunk.ItemID), frag, emit)
	case "response.function_call_arguments.done":
		frag := Fragment{Arguments: chunk.Arguments, Replace: true}
		return d.applyFragment(ItemKey(chunk.ItemID), frag, emit)
	case "response.completed", "response.done":
		reason := ""
		if d.toolsSeen {
			reason = "tool_calls"
		}
		d.finish(emit, reason, usageOf(chunk.Usage))
	}
	return true
}

func itemIDOf(chunk streamChunk) string {
	if chunk.ItemID != "" {
		return chunk.ItemID
	}
	if chunk.Item != nil {
		return chunk.Item.ID
	}
	return ""
}

func (d *streamDecoder) applyToolCalls(calls []chunkToolCall, replace bool, emit emitFunc) bool {
	for i, tc := range calls {
		index := i
		if tc.Index != nil {
			index = *tc.Index
		}
		frag := Fragment{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: string(tc.Function.Arguments),
			Replace:   replace,
		}
		if !d.applyFragment(IndexKey(index), frag, emit) {
			return false
		}
	}
	return true
}

func (d *streamDecoder) applyFragment(key string, frag Fragment, emit emitFunc) bool {
	d.toolsSeen = true
	call, changed := d.accumulator.Apply(key, frag)
	if !changed {
		return true
	}
	c := call
	return emit(Token{Kind: TokenToolCall, ToolCall: &c})
}

// finish flushes the accumulator's final invocations, then emits the single
// terminal Done token. Idempotent: repeated terminators are absorbed.
func (d *streamDecoder) finish(emit emitFunc, reason string, usage *domain.Usage) {
	if d.finished {
		return
	}
	d.finished = true

	for _, call := range d.accumulator.Finalize() {
		c := call
		if !emit(Token{Kind: TokenToolCall, ToolCall: &c}) {
			return
		}
	}

	if reason == "" {
		if d.toolsSeen {
			reason = "tool_calls"
		} else {
			reason = "stop"
		}
	}
	emit(Token{Kind: TokenDone, FinishReason: reason, Usage: usage})
}

func usageOf(u *chunkUsage) *domain.Usage {
	if u == nil {
		return nil
	}
	usage := domain.NewUsage(u.PromptTokens, u.CompletionTokens)
	return &usage
}
