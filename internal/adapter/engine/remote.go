package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/armin976/noema-gateway/internal/adapter/remote"
	"github.com/armin976/noema-gateway/internal/config"
	"github.com/armin976/noema-gateway/internal/core/domain"
	"github.com/armin976/noema-gateway/internal/core/ports"
	"github.com/armin976/noema-gateway/internal/logger"
	"github.com/armin976/noema-gateway/internal/util"
)

// Remote fronts an OpenAI-compatible inference server as the gateway's
// engine. Each call opens its own stream, so concurrent requests never
// interfere.
type Remote struct {
	cfg        config.EngineConfig
	backend    domain.RemoteBackend
	httpClient *http.Client
	logger     *logger.StyledLogger
}

var _ ports.InferenceEngine = (*Remote)(nil)

func NewRemote(cfg config.EngineConfig, lg *logger.StyledLogger) *Remote {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Remote{
		cfg: cfg,
		backend: domain.RemoteBackend{
			Name:       "engine",
			Type:       domain.EndpointOpenAI,
			BaseURL:    cfg.BaseURL,
			AuthHeader: cfg.AuthHeader,
		},
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
		logger: lg,
	}
}

// ModelSnapshots lists the upstream's models, falling back to the single
// configured model when the upstream has no listing endpoint.
func (r *Remote) ModelSnapshots(ctx context.Context) ([]domain.ModelSnapshot, error) {
	url := util.ResolveURLPath(util.NormaliseBaseURL(r.cfg.BaseURL), "v1/models")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if r.cfg.AuthHeader != "" {
		req.Header.Set("Authorization", r.cfg.AuthHeader)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return r.fallbackSnapshots(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return r.fallbackSnapshots(), nil
	}

	var list domain.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode model listing: %w", err)
	}
	if len(list.Data) == 0 {
		return r.fallbackSnapshots(), nil
	}
	return list.Data, nil
}

func (r *Remote) fallbackSnapshots() []domain.ModelSnapshot {
	if r.cfg.Model == "" {
		return nil
	}
	return []domain.ModelSnapshot{{
		ID:      r.cfg.Model,
		Object:  "model",
		Created: time.Now().Unix(),
		OwnedBy: "noema",
	}}
}

func (r *Remote) PerformChat(ctx context.Context, req domain.ChatCompletionRequest) (*domain.GenerationResult, error) {
	return r.collect(ctx, chatInput(req))
}

func (r *Remote) StreamChat(ctx context.Context, req domain.ChatCompletionRequest) (<-chan domain.StreamEvent, error) {
	return r.stream(ctx, chatInput(req)), nil
}

func (r *Remote) PerformTextCompletion(ctx context.Context, req domain.TextCompletionRequest) (*domain.GenerationResult, error) {
	return r.collect(ctx, textInput(req))
}

func (r *Remote) StreamTextCompletion(ctx context.Context, req domain.TextCompletionRequest) (<-chan domain.StreamEvent, error) {
	return r.stream(ctx, textInput(req)), nil
}

func (r *Remote) PerformResponse(ctx context.Context, req domain.ResponsesRequest) (*domain.GenerationResult, error) {
	return r.collect(ctx, responsesInput(req))
}

func (r *Remote) StreamResponse(ctx context.Context, req domain.ResponsesRequest) (<-chan domain.StreamEvent, error) {
	return r.stream(ctx, responsesInput(req)), nil
}

func chatInput(req domain.ChatCompletionRequest) remote.ChatInput {
	return remote.ChatInput{
		Model:    req.Model,
		Messages: req.Messages,
		Sampling: req.SamplingParams,
	}
}

func textInput(req domain.TextCompletionRequest) remote.ChatInput {
	// The upstream speaks chat; a bare prompt rides as a single user turn
	return remote.ChatInput{
		Model:    req.Model,
		Messages: []domain.Message{{Role: "user", Content: req.Prompt.Joined()}},
		Prompt:   req.Prompt.Joined(),
		Sampling: req.SamplingParams,
	}
}

func responsesInput(req domain.ResponsesRequest) remote.ChatInput {
	return remote.ChatInput{
		Model:    req.Model,
		Messages: []domain.Message{req.Input},
		Sampling: req.SamplingParams,
	}
}

// stream adapts the upstream token stream to the engine boundary: deltas
// while text arrives, then exactly one completion. A cancelled context or an
// upstream error closes the channel without a completion event.
func (r *Remote) stream(ctx context.Context, input remote.ChatInput) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)

		tokens := remote.OpenStream(ctx, r.httpClient, r.backend, domain.Direct(), remote.Identity{}, input)

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
				result := &domain.GenerationResult{
					Text:         text,
					FinishReason: tok.FinishReason,
				}
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
				if r.logger != nil && ctx.Err() == nil {
					r.logger.Error("Engine stream failed", "error", tok.Err)
				}
				return
			}
		}
	}()

	return events
}

// collect drains a stream into a single result for non-streaming callers.
func (r *Remote) collect(ctx context.Context, input remote.ChatInput) (*domain.GenerationResult, error) {
	tokens := remote.OpenStream(ctx, r.httpClient, r.backend, domain.Direct(), remote.Identity{}, input)

	var text string
	for tok := range tokens {
		switch tok.Kind {
		case remote.TokenText:
			text += tok.Text
		case remote.TokenDone:
			result := &domain.GenerationResult{
				Text:         text,
				FinishReason: tok.FinishReason,
			}
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
	return nil, fmt.Errorf("engine stream ended without completion")
}
