package ports

import (
	"context"

	"github.com/armin976/noema-gateway/internal/core/domain"
)

// InferenceEngine is the boundary to whatever actually generates tokens.
// The embedded server's handlers call it and never look behind it.
//
// Streaming methods return a receive-only channel that yields zero or more
// delta events followed by exactly one completion event, then closes. The
// channel also closes (without a completion event) when ctx is cancelled.
type InferenceEngine interface {
	ModelSnapshots(ctx context.Context) ([]domain.ModelSnapshot, error)

	PerformChat(ctx context.Context, req domain.ChatCompletionRequest) (*domain.GenerationResult, error)
	StreamChat(ctx context.Context, req domain.ChatCompletionRequest) (<-chan domain.StreamEvent, error)

	PerformTextCompletion(ctx context.Context, req domain.TextCompletionRequest) (*domain.GenerationResult, error)
	StreamTextCompletion(ctx context.Context, req domain.TextCompletionRequest) (<-chan domain.StreamEvent, error)

	PerformResponse(ctx context.Context, req domain.ResponsesRequest) (*domain.GenerationResult, error)
	StreamResponse(ctx context.Context, req domain.ResponsesRequest) (<-chan domain.StreamEvent, error)
}
