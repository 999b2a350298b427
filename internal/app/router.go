package app

import (
	"context"
	"fmt"
	"time"

	"github.com/armin976/noema-gateway/internal/adapter/remote"
	"github.com/armin976/noema-gateway/internal/core/domain"
	"github.com/armin976/noema-gateway/internal/core/ports"
)

// backendRoute pairs a configured remote backend with its chat client.
type backendRoute struct {
	backend domain.RemoteBackend
	client  *remote.Client
}

// engineRouter is the engine the server actually sees: requests naming a
// model owned by a remote backend are forwarded through that backend's chat
// client, everything else goes to the local engine. Model ownership is
// declared by each backend's default and custom model IDs.
type engineRouter struct {
	local  ports.InferenceEngine
	routes map[string]*backendRoute
}

var _ ports.InferenceEngine = (*engineRouter)(nil)

func newEngineRouter(local ports.InferenceEngine, routes []*backendRoute) *engineRouter {
	byModel := make(map[string]*backendRoute)
	for _, route := range routes {
		if route.backend.DefaultModel != "" {
			byModel[route.backend.DefaultModel] = route
		}
		for _, id := range route.backend.CustomModelIDs {
			byModel[id] = route
		}
	}
	return &engineRouter{local: local, routes: byModel}
}

// ModelSnapshots merges the local engine's models with every remote
// backend's declared models. A local engine failure is fatal only when no
// remote backend can answer either.
func (e *engineRouter) ModelSnapshots(ctx context.Context) ([]domain.ModelSnapshot, error) {
	snapshots, err := e.local.ModelSnapshots(ctx)
	if err != nil && len(e.routes) == 0 {
		return nil, err
	}

	seen := make(map[string]bool, len(snapshots))
	for _, s := range snapshots {
		seen[s.ID] = true
	}
	for id, route := range e.routes {
		if seen[id] {
			continue
		}
		seen[id] = true
		snapshots = append(snapshots, domain.ModelSnapshot{
			ID:      id,
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: route.backend.Name,
		})
	}
	return snapshots, nil
}

func (e *engineRouter) PerformChat(ctx context.Context, req domain.ChatCompletionRequest) (*domain.GenerationResult, error) {
	if route, ok := e.routes[req.Model]; ok {
		return collectTokens(ctx, route.client.Open(ctx, remote.ChatInput{
			Model:    req.Model,
			Messages: req.Messages,
			Sampling: req.SamplingParams,
		}))
	}
	return e.local.PerformChat(ctx, req)
}

func (e *engineRouter) StreamChat(ctx context.Context, req domain.ChatCompletionRequest) (<-chan domain.StreamEvent, error) {
	if route, ok := e.routes[req.Model]; ok {
		return adaptTokens(ctx, route.client.Open(ctx, remote.ChatInput{
			Model:    req.Model,
			Messages: req.Messages,
			Sampling: req.SamplingParams,
		})), nil
	}
	return e.local.StreamChat(ctx, req)
}

func (e *engineRouter) PerformTextCompletion(ctx context.Context, req domain.TextCompletionRequest) (*domain.GenerationResult, error) {
	if route, ok := e.routes[req.Model]; ok {
		return collectTokens(ctx, route.client.Open(ctx, textCompletionInput(req)))
	}
	return e.local.PerformTextCompletion(ctx, req)
}

func (e *engineRouter) StreamTextCompletion(ctx context.Context, req domain.TextCompletionRequest) (<-chan domain.StreamEvent, error) {
	if route, ok := e.routes[req.Model]; ok {
		return adaptTokens(ctx, route.client.Open(ctx, textCompletionInput(req))), nil
	}
	return e.local.StreamTextCompletion(ctx, req)
}

func (e *engineRouter) PerformResponse(ctx context.Context, req domain.ResponsesRequest) (*domain.GenerationResult, error) {
	if route, ok := e.routes[req.Model]; ok {
		return collectTokens(ctx, route.client.Open(ctx, remote.ChatInput{
			Model:    req.Model,
			Messages: []domain.Message{req.Input},
			Sampling: req.SamplingParams,
		}))
	}
	return e.local.PerformResponse(ctx, req)
}

func (e *engineRouter) StreamResponse(ctx context.Context, req domain.ResponsesRequest) (<-chan domain.StreamEvent, error) {
	if route, ok := e.routes[req.Model]; ok {
		return adaptTokens(ctx, route.client.Open(ctx, remote.ChatInput{
			Model:    req.Model,
			Messages: []domain.Message{req.Input},
			Sampling: req.SamplingParams,
		})), nil
	}
	return e.local.StreamResponse(ctx, req)
}

func textCompletionInput(req domain.TextCompletionRequest) remote.ChatInput {
	prompt := req.Prompt.Joined()
	return remote.ChatInput{
		Model:    req.Model,
		Messages: []domain.Message{{Role: "user", Content: prompt}},
		Prompt:   prompt,
		Sampling: req.SamplingParams,
	}
}

// adaptTokens bridges a remote token stream onto the engine boundary.
func adaptTokens(ctx context.Context, tokens <-chan remote.Token) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)

		var text string
		for tok := range tokens {
			switch tok.Kind {
			case remote.TokenText:
				text += tok.Text
				select {
				case events <- domain.DeltaEvent(tok.Text):
				case <-ctx.Done():
					return
				}
			case remote.TokenDone:
				result := &domain.GenerationResult{Text: text, FinishReason: tok.FinishReason}
				if tok.Usage != nil {
					result.PromptTokens = tok.Usage.PromptTokens
					result.CompletionTokens = tok.Usage.CompletionTokens
				}
				select {
				case events <- domain.CompletionEvent(result):
				case <-ctx.Done():
				}
				return
			case remote.TokenError:
				// No error variant at this boundary; truncate the stream
				return
			}
		}
	}()

	return events
}

func collectTokens(ctx context.Context, tokens <-chan remote.Token) (*domain.GenerationResult, error) {
	var text string
	for tok := range tokens {
		switch tok.Kind {
		case remote.TokenText:
			text += tok.Text
		case remote.TokenDone:
			result := &domain.GenerationResult{Text: text, FinishReason: tok.FinishReason}
			if tok.Usage != nil {
				result.PromptTokens = tok.Usage.PromptTokens
				result.CompletionTokens = tok.Usage.CompletionTokens
			}
			return result, nil
		case remote.TokenError:
			return nil, tok.Err
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("remote stream ended without completion")
}
