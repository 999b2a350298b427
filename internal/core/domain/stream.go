package domain

// StreamEventKind tags the StreamEvent union.
type StreamEventKind int

const (
	// StreamDelta carries an incremental text fragment.
	StreamDelta StreamEventKind = iota
	// StreamCompletion carries the terminal result; it is the last event of
	// a well-formed stream.
	StreamCompletion
)

// GenerationResult is the terminal outcome of one generation.
type GenerationResult struct {
	Text             string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// StreamEvent is the engine-boundary streaming union: either a text delta or
// the completion result. Exactly one of the payload fields is meaningful,
// selected by Kind.
type StreamEvent struct {
	Kind   StreamEventKind
	Delta  string
	Result *GenerationResult
}

func DeltaEvent(text string) StreamEvent {
	return StreamEvent{Kind: StreamDelta, Delta: text}
}

func CompletionEvent(result *GenerationResult) StreamEvent {
	return StreamEvent{Kind: StreamCompletion, Result: result}
}
