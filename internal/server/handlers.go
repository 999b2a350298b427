package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/armin976/noema-gateway/internal/core/domain"
)

const imageRejectionMessage = "Image input is not supported"

func (s *Server) handleHealth(w *responseWriter) {
	_ = w.writeJSON(200, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(ctx context.Context, w *responseWriter) {
	snapshots, err := s.engine.ModelSnapshots(ctx)
	if err != nil {
		s.logger.Error("Failed to list models", "error", err)
		_ = w.writeError(500, "Failed to list models")
		return
	}

	data := make([]domain.ModelSnapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		snap.Object = "model"
		data = append(data, snap)
	}

	_ = w.writeJSON(200, domain.ModelList{Object: "list", Data: data})
}

func (s *Server) handleChatCompletions(ctx context.Context, w *responseWriter, req *httpRequest) {
	var chatReq domain.ChatCompletionRequest
	if err := json.Unmarshal(req.Body, &chatReq); err != nil {
		_ = w.writeError(400, "Invalid JSON body")
		return
	}

	for _, msg := range chatReq.Messages {
		if containsImageContent(msg.Content) {
			_ = w.writeError(400, imageRejectionMessage)
			return
		}
	}

	if err := s.resolveModel(ctx, chatReq.Model); err != nil {
		_ = w.writeError(404, "Unknown model: "+chatReq.Model)
		return
	}

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	if !chatReq.Stream {
		result, err := s.engine.PerformChat(ctx, chatReq)
		if err != nil {
			s.logger.Error("Chat completion failed", "error", err)
			_ = w.writeError(500, "Generation failed")
			return
		}
		_ = w.writeJSON(200, domain.ChatCompletionResponse{
			ID:      id,
			Object:  "chat.completion",
			Created: created,
			Model:   chatReq.Model,
			Choices: []domain.ChatChoice{{
				Message:      domain.Message{Role: "assistant", Content: result.Text},
				FinishReason: finishReasonOf(result),
			}},
			Usage: domain.NewUsage(result.PromptTokens, result.CompletionTokens),
		})
		return
	}

	events, err := s.engine.StreamChat(ctx, chatReq)
	if err != nil {
		s.logger.Error("Chat stream failed to start", "error", err)
		_ = w.writeError(500, "Generation failed")
		return
	}

	s.streamEvents(ctx, w, events, func(delta string, finish *string) any {
		choice := domain.ChatChunkChoice{FinishReason: finish}
		if finish == nil {
			choice.Delta = domain.ChatDelta{Content: delta}
		}
		return domain.ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   chatReq.Model,
			Choices: []domain.ChatChunkChoice{choice},
		}
	})
}

func (s *Server) handleTextCompletions(ctx context.Context, w *responseWriter, req *httpRequest) {
	var textReq domain.TextCompletionRequest
	if err := json.Unmarshal(req.Body, &textReq); err != nil {
		_ = w.writeError(400, "Invalid JSON body")
		return
	}

	if containsImageContent(textReq.Prompt.Joined()) {
		_ = w.writeError(400, imageRejectionMessage)
		return
	}

	if err := s.resolveModel(ctx, textReq.Model); err != nil {
		_ = w.writeError(404, "Unknown model: "+textReq.Model)
		return
	}

	id := "cmpl-" + uuid.NewString()
	created := time.Now().Unix()

	if !textReq.Stream {
		result, err := s.engine.PerformTextCompletion(ctx, textReq)
		if err != nil {
			s.logger.Error("Text completion failed", "error", err)
			_ = w.writeError(500, "Generation failed")
			return
		}
		_ = w.writeJSON(200, domain.TextCompletionResponse{
			ID:      id,
			Object:  "text_completion",
			Created: created,
			Model:   textReq.Model,
			Choices: []domain.TextChoice{{
				Text:         result.Text,
				FinishReason: finishReasonOf(result),
			}},
			Usage: domain.NewUsage(result.PromptTokens, result.CompletionTokens),
		})
		return
	}

	events, err := s.engine.StreamTextCompletion(ctx, textReq)
	if err != nil {
		s.logger.Error("Text completion stream failed to start", "error", err)
		_ = w.writeError(500, "Generation failed")
		return
	}

	s.streamEvents(ctx, w, events, func(delta string, finish *string) any {
		choice := domain.TextChunkChoice{Text: delta, FinishReason: finish}
		return domain.TextCompletionChunk{
			ID:      id,
			Object:  "text_completion",
			Created: created,
			Model:   textReq.Model,
			Choices: []domain.TextChunkChoice{choice},
		}
	})
}

func (s *Server) handleResponses(ctx context.Context, w *responseWriter, req *httpRequest) {
	var respReq domain.ResponsesRequest
	if err := json.Unmarshal(req.Body, &respReq); err != nil {
		_ = w.writeError(400, "Invalid JSON body")
		return
	}

	if containsImageContent(respReq.Input.Content) {
		_ = w.writeError(400, imageRejectionMessage)
		return
	}

	if err := s.resolveModel(ctx, respReq.Model); err != nil {
		_ = w.writeError(404, "Unknown model: "+respReq.Model)
		return
	}

	id := "resp-" + uuid.NewString()
	created := time.Now().Unix()

	result, err := s.engine.PerformResponse(ctx, respReq)
	if err != nil {
		s.logger.Error("Responses request failed", "error", err)
		_ = w.writeError(500, "Generation failed")
		return
	}

	_ = w.writeJSON(200, domain.ResponsesResponse{
		ID:      id,
		Object:  "responses",
		Created: created,
		Model:   respReq.Model,
		Output:  []domain.Message{{Role: "assistant", Content: result.Text}},
		Usage:   domain.NewUsage(result.PromptTokens, result.CompletionTokens),
	})
}

// streamEvents drains the engine's event channel onto the socket as SSE
// frames, ending with the [DONE] sentinel. Cancellation stops the stream
// silently.
func (s *Server) streamEvents(ctx context.Context, w *responseWriter, events <-chan domain.StreamEvent, frame func(delta string, finish *string) any) {
	if err := w.beginSSE(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				_ = w.writeSSEDone()
				return
			}
			switch event.Kind {
			case domain.StreamDelta:
				if err := w.writeSSEData(frame(event.Delta, nil)); err != nil {
					return
				}
			case domain.StreamCompletion:
				finish := finishReasonOf(event.Result)
				if err := w.writeSSEData(frame("", &finish)); err != nil {
					return
				}
				_ = w.writeSSEDone()
				return
			}
		}
	}
}

// resolveModel checks the requested model against the engine's catalogue,
// wrapping domain.ErrUnknownModel when nothing matches.
func (s *Server) resolveModel(ctx context.Context, model string) error {
	if model == "" {
		return fmt.Errorf("%w: no model named", domain.ErrUnknownModel)
	}
	snapshots, err := s.engine.ModelSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrUnknownModel, model)
	}
	for _, snap := range snapshots {
		if snap.ID == model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrUnknownModel, model)
}

func finishReasonOf(result *domain.GenerationResult) string {
	if result == nil || result.FinishReason == "" {
		return "stop"
	}
	return result.FinishReason
}

// containsImageContent detects multimodal payloads this server refuses:
// markdown image syntax, raw image tags, image_url fields and base64 image
// data URIs.
func containsImageContent(content string) bool {
	if content == "" {
		return false
	}
	if strings.Contains(content, "data:image/") {
		return true
	}
	if strings.Contains(content, "image_url") {
		return true
	}
	if strings.Contains(content, "<img") {
		return true
	}
	if i := strings.Index(content, "!["); i >= 0 && strings.Contains(content[i:], "](") {
		return true
	}
	return false
}
