package remote

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/armin976/noema-gateway/internal/core/domain"
	"github.com/armin976/noema-gateway/internal/util"
)

// Identity is the advisory client identity sent to relay hosts.
type Identity struct {
	ID       string
	Name     string
	Model    string
	Platform string
	SSID     string
}

const defaultKeepAlive = "5m"

// ChatInput is the caller-facing request for one remote stream.
type ChatInput struct {
	Model      string
	Messages   []domain.Message
	Prompt     string
	Sampling   domain.SamplingParams
	Tools      []map[string]any
	ToolChoice any
	// ConversationID keys cloud-relay exchanges; assigned when empty.
	ConversationID string
}

// endpointKind distinguishes conversational endpoints from legacy prompt
// endpoints; tool-call handling is only enabled for chat endpoints.
type endpointKind int

const (
	endpointKindChat endpointKind = iota
	endpointKindCompletion
)

// inferEndpointKind treats a URL as a chat endpoint when its path contains
// or ends with a /chat segment.
func inferEndpointKind(url string) endpointKind {
	path := url
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
	}
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[i:]
	} else {
		path = "/"
	}
	if strings.Contains(path, "/chat/") || strings.HasSuffix(path, "/chat") {
		return endpointKindChat
	}
	return endpointKindCompletion
}

// requestURL resolves the concrete URL for a backend and, for relays, the
// chosen transport's base.
func requestURL(backend domain.RemoteBackend, decision domain.TransportDecision) string {
	switch backend.Type {
	case domain.EndpointOllama:
		return util.ResolveURLPath(util.NormaliseBaseURL(backend.BaseURL), "api/chat")
	case domain.EndpointRelayLAN, domain.EndpointRelayCloud:
		if decision.Kind == domain.TransportLAN && backend.Relay.LANURL != "" {
			return util.ResolveURLPath(util.NormaliseBaseURL(backend.Relay.LANURL), "v1/chat/completions")
		}
		return ""
	default:
		base := util.NormaliseBaseURL(backend.BaseURL)
		// Custom endpoints may already name a completions path
		if strings.Contains(base, "/completions") {
			return base
		}
		return util.ResolveURLPath(base, "v1/chat/completions")
	}
}

// buildRequestBody constructs the outbound JSON body for the backend's
// dialect. Tool definitions are attached only when the endpoint is
// conversational.
func buildRequestBody(backend domain.RemoteBackend, input ChatInput, kind endpointKind) ([]byte, error) {
	if backend.Type == domain.EndpointOllama {
		return buildOllamaBody(input)
	}
	return buildOpenAIBody(input, kind)
}

func buildOpenAIBody(input ChatInput, kind endpointKind) ([]byte, error) {
	body := map[string]any{
		"model":  input.Model,
		"stream": true,
	}

	if kind == endpointKindChat {
		body["messages"] = input.Messages
		if len(input.Tools) > 0 {
			body["tools"] = input.Tools
			if input.ToolChoice != nil {
				body["tool_choice"] = input.ToolChoice
			}
		}
	} else {
		body["prompt"] = input.Prompt
	}

	applySampling(body, input.Sampling)
	return json.Marshal(body)
}

// buildOllamaBody nests sampling parameters under Ollama's options object
// and pins keep_alive so the remote model stays resident between turns.
func buildOllamaBody(input ChatInput) ([]byte, error) {
	options := map[string]any{}
	s := input.Sampling
	if s.Temperature != nil {
		options["temperature"] = *s.Temperature
	}
	if s.TopP != nil {
		options["top_p"] = *s.TopP
	}
	if s.TopK != nil {
		options["top_k"] = *s.TopK
	}
	if s.MaxTokens != nil {
		options["num_predict"] = *s.MaxTokens
	}
	if len(s.Stop) > 0 {
		options["stop"] = s.Stop
	}
	if s.PresencePenalty != nil {
		options["presence_penalty"] = *s.PresencePenalty
	}
	if s.FrequencyPenalty != nil {
		options["frequency_penalty"] = *s.FrequencyPenalty
	}
	if s.Seed != nil {
		options["seed"] = *s.Seed
	}

	body := map[string]any{
		"model":      input.Model,
		"messages":   input.Messages,
		"stream":     true,
		"keep_alive": defaultKeepAlive,
	}
	if len(options) > 0 {
		body["options"] = options
	}
	if len(input.Tools) > 0 {
		body["tools"] = input.Tools
	}

	return json.Marshal(body)
}

func applySampling(body map[string]any, s domain.SamplingParams) {
	if s.Temperature != nil {
		body["temperature"] = *s.Temperature
	}
	if s.TopP != nil {
		body["top_p"] = *s.TopP
	}
	if s.TopK != nil {
		body["top_k"] = *s.TopK
	}
	if s.MaxTokens != nil {
		body["max_tokens"] = *s.MaxTokens
	}
	if len(s.Stop) > 0 {
		body["stop"] = s.Stop
	}
	if s.PresencePenalty != nil {
		body["presence_penalty"] = *s.PresencePenalty
	}
	if s.FrequencyPenalty != nil {
		body["frequency_penalty"] = *s.FrequencyPenalty
	}
	if s.Seed != nil {
		body["seed"] = *s.Seed
	}
}

// applyHeaders stamps auth plus, for LAN relay calls, the advisory
// X-Noema-* identity headers.
func applyHeaders(req *http.Request, backend domain.RemoteBackend, decision domain.TransportDecision, identity Identity) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	if backend.AuthHeader != "" {
		req.Header.Set("Authorization", backend.AuthHeader)
	}

	if backend.Type.IsRelay() && decision.Kind == domain.TransportLAN {
		if backend.Relay.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+backend.Relay.AuthToken)
		}
		req.Header.Set("X-Noema-Transport", "lan")
		req.Header.Set("X-Noema-Client-ID", identity.ID)
		req.Header.Set("X-Noema-Client-Name", identity.Name)
		req.Header.Set("X-Noema-Client-Model", identity.Model)
		req.Header.Set("X-Noema-Client-Platform", identity.Platform)
		if decision.NetworkName != "" {
			req.Header.Set("X-Noema-Client-SSID", decision.NetworkName)
		} else if identity.SSID != "" {
			req.Header.Set("X-Noema-Client-SSID", identity.SSID)
		}
		req.Header.Set("X-Noema-Relay-Device", backend.Relay.DeviceID)
	}
}
