package remote

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, body string) []Token {
	t.Helper()

	var tokens []Token
	err := newStreamDecoder().run(context.Background(), strings.NewReader(body), func(tok Token) bool {
		tokens = append(tokens, tok)
		return true
	})
	require.NoError(t, err)
	return tokens
}

func textOf(tokens []Token) string {
	var b strings.Builder
	for _, tok := range tokens {
		if tok.Kind == TokenText {
			b.WriteString(tok.Text)
		}
	}
	return b.String()
}

func lastToken(t *testing.T, tokens []Token) Token {
	t.Helper()
	require.NotEmpty(t, tokens)
	return tokens[len(tokens)-1]
}

func TestDecode_OpenAIDeltas(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		``,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":2}}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	tokens := decodeAll(t, body)
	assert.Equal(t, "Hello", textOf(tokens))

	done := lastToken(t, tokens)
	require.Equal(t, TokenDone, done.Kind)
	assert.Equal(t, "stop", done.FinishReason)
	require.NotNil(t, done.Usage)
	assert.Equal(t, 4, done.Usage.PromptTokens)
	assert.Equal(t, 2, done.Usage.CompletionTokens)
	assert.Equal(t, 6, done.Usage.TotalTokens)
}

func TestDecode_OpenAIFragmentedToolCall(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	tokens := decodeAll(t, body)

	var finalCall Token
	for _, tok := range tokens {
		if tok.Kind == TokenToolCall {
			finalCall = tok
		}
	}
	require.NotNil(t, finalCall.ToolCall)
	assert.Equal(t, "call_1", finalCall.ToolCall.ID)
	assert.Equal(t, "lookup", finalCall.ToolCall.Name)
	require.True(t, finalCall.ToolCall.Arguments.IsParsed())
	assert.Equal(t, map[string]any{"q": "x"}, finalCall.ToolCall.Arguments.Value())

	done := lastToken(t, tokens)
	require.Equal(t, TokenDone, done.Kind)
	assert.Equal(t, "tool_calls", done.FinishReason)
}

func TestDecode_OllamaNDJSON(t *testing.T) {
	body := strings.Join([]string{
		`{"message":{"role":"assistant","content":"Hi "},"done":false}`,
		`{"message":{"role":"assistant","content":"there"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
	}, "\n")

	tokens := decodeAll(t, body)
	assert.Equal(t, "Hi there", textOf(tokens))

	done := lastToken(t, tokens)
	require.Equal(t, TokenDone, done.Kind)
	assert.Equal(t, "stop", done.FinishReason)
}

func TestDecode_OllamaToolCallWithObjectArguments(t *testing.T) {
	body := strings.Join([]string{
		`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"weather","arguments":{"city":"Perth"}}}]},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true}`,
	}, "\n")

	tokens := decodeAll(t, body)

	var call Token
	for _, tok := range tokens {
		if tok.Kind == TokenToolCall {
			call = tok
		}
	}
	require.NotNil(t, call.ToolCall)
	assert.Equal(t, "weather", call.ToolCall.Name)
	assert.Equal(t, map[string]any{"city": "Perth"}, call.ToolCall.Arguments.Value())

	done := lastToken(t, tokens)
	require.Equal(t, TokenDone, done.Kind)
	assert.Equal(t, "tool_calls", done.FinishReason)
}

func TestDecode_ResponsesEvents(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"response.output_text.delta","delta":"Sure, "}`,
		``,
		`data: {"type":"response.output_item.added","item":{"type":"function_call","id":"item_1","call_id":"call_9","name":"fetch"}}`,
		``,
		`data: {"type":"response.function_call_arguments.delta","item_id":"item_1","delta":"{\"url\":"}`,
		``,
		`data: {"type":"response.function_call_arguments.done","item_id":"item_1","arguments":"{\"url\":\"https://e.com\"}"}`,
		``,
		`data: {"type":"response.completed"}`,
		``,
	}, "\n")

	tokens := decodeAll(t, body)
	assert.Equal(t, "Sure, ", textOf(tokens))

	var call Token
	for _, tok := range tokens {
		if tok.Kind == TokenToolCall {
			call = tok
		}
	}
	require.NotNil(t, call.ToolCall)
	assert.Equal(t, "call_9", call.ToolCall.ID)
	assert.Equal(t, "fetch", call.ToolCall.Name)
	assert.Equal(t, map[string]any{"url": "https://e.com"}, call.ToolCall.Arguments.Value())

	done := lastToken(t, tokens)
	require.Equal(t, TokenDone, done.Kind)
	assert.Equal(t, "tool_calls", done.FinishReason)
}

func TestDecode_EndOfStreamWithoutTerminatorStillCompletes(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"partial"}}]}` + "\n"

	tokens := decodeAll(t, body)
	assert.Equal(t, "partial", textOf(tokens))

	done := lastToken(t, tokens)
	require.Equal(t, TokenDone, done.Kind)
	assert.Equal(t, "stop", done.FinishReason)
}

func TestDecode_SkipsCommentsAndNoise(t *testing.T) {
	body := strings.Join([]string{
		`: keep-alive`,
		`this is not json`,
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		`data: [DONE]`,
	}, "\n")

	tokens := decodeAll(t, body)
	assert.Equal(t, "ok", textOf(tokens))
	assert.Equal(t, TokenDone, lastToken(t, tokens).Kind)
}

func TestDecode_CancelledContextEmitsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var tokens []Token
	err := newStreamDecoder().run(ctx, strings.NewReader(`data: {"choices":[{"delta":{"content":"x"}}]}`+"\n"), func(tok Token) bool {
		tokens = append(tokens, tok)
		return true
	})

	require.NoError(t, err)
	assert.Empty(t, tokens, "cancellation must be silent")
}

func TestDecode_BodyReadFailureIsReturnedNotEmitted(t *testing.T) {
	boom := errors.New("connection reset")
	body := io.MultiReader(
		strings.NewReader(`data: {"choices":[{"delta":{"content":"part"}}]}`+"\n"),
		iotest.ErrReader(boom),
	)

	var tokens []Token
	err := newStreamDecoder().run(context.Background(), body, func(tok Token) bool {
		tokens = append(tokens, tok)
		return true
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, "part", textOf(tokens))
	for _, tok := range tokens {
		assert.NotEqual(t, TokenError, tok.Kind, "the caller owns the failure, not the stream")
		assert.NotEqual(t, TokenDone, tok.Kind, "a broken stream must not look complete")
	}
}
