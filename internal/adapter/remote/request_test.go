package remote

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armin976/noema-gateway/internal/core/domain"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	return decoded
}

func TestInferEndpointKind(t *testing.T) {
	assert.Equal(t, endpointKindChat, inferEndpointKind("http://h/v1/chat/completions"))
	assert.Equal(t, endpointKindChat, inferEndpointKind("http://h/api/chat"))
	assert.Equal(t, endpointKindCompletion, inferEndpointKind("http://h/v1/completions"))
	assert.Equal(t, endpointKindCompletion, inferEndpointKind("http://h"))
}

func TestRequestURL(t *testing.T) {
	t.Run("openai appends chat completions", func(t *testing.T) {
		backend := domain.RemoteBackend{Type: domain.EndpointOpenAI, BaseURL: "http://host:1234"}
		assert.Equal(t, "http://host:1234/v1/chat/completions", requestURL(backend, domain.Direct()))
	})

	t.Run("ollama uses api chat", func(t *testing.T) {
		backend := domain.RemoteBackend{Type: domain.EndpointOllama, BaseURL: "http://host:11434/"}
		assert.Equal(t, "http://host:11434/api/chat", requestURL(backend, domain.Direct()))
	})

	t.Run("relay lan uses advertised url", func(t *testing.T) {
		backend := domain.RemoteBackend{
			Type:  domain.EndpointRelayLAN,
			Relay: domain.RelayMetadata{LANURL: "http://192.168.1.5:8889"},
		}
		assert.Equal(t, "http://192.168.1.5:8889/v1/chat/completions", requestURL(backend, domain.LAN("Home")))
	})

	t.Run("relay without lan url has no http address", func(t *testing.T) {
		backend := domain.RemoteBackend{Type: domain.EndpointRelayCloud}
		assert.Equal(t, "", requestURL(backend, domain.CloudRelay()))
	})
}

func TestBuildOpenAIBody_Chat(t *testing.T) {
	input := ChatInput{
		Model:    "gpt-thing",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
		Sampling: domain.SamplingParams{
			Temperature: floatPtr(0.7),
			MaxTokens:   intPtr(256),
			Stop:        []string{"###"},
		},
		Tools:      []map[string]any{{"type": "function"}},
		ToolChoice: "auto",
	}

	body, err := buildOpenAIBody(input, endpointKindChat)
	require.NoError(t, err)
	decoded := decodeBody(t, body)

	assert.Equal(t, "gpt-thing", decoded["model"])
	assert.Equal(t, true, decoded["stream"])
	assert.Equal(t, 0.7, decoded["temperature"])
	assert.Equal(t, float64(256), decoded["max_tokens"])
	assert.Contains(t, decoded, "messages")
	assert.Contains(t, decoded, "tools")
	assert.Equal(t, "auto", decoded["tool_choice"])
	assert.NotContains(t, decoded, "prompt")
}

func TestBuildOpenAIBody_CompletionDropsTools(t *testing.T) {
	input := ChatInput{
		Model:  "gpt-thing",
		Prompt: "finish this",
		Tools:  []map[string]any{{"type": "function"}},
	}

	body, err := buildOpenAIBody(input, endpointKindCompletion)
	require.NoError(t, err)
	decoded := decodeBody(t, body)

	assert.Equal(t, "finish this", decoded["prompt"])
	assert.NotContains(t, decoded, "messages")
	assert.NotContains(t, decoded, "tools", "tool definitions only travel on chat endpoints")
	assert.NotContains(t, decoded, "tool_choice")
}

func TestBuildOllamaBody(t *testing.T) {
	input := ChatInput{
		Model:    "llama3",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
		Sampling: domain.SamplingParams{
			Temperature: floatPtr(0.2),
			TopK:        intPtr(40),
			MaxTokens:   intPtr(128),
		},
	}

	body, err := buildOllamaBody(input)
	require.NoError(t, err)
	decoded := decodeBody(t, body)

	assert.Equal(t, "llama3", decoded["model"])
	assert.Equal(t, true, decoded["stream"])
	assert.Equal(t, defaultKeepAlive, decoded["keep_alive"])

	options, ok := decoded["options"].(map[string]any)
	require.True(t, ok, "sampling must nest under options")
	assert.Equal(t, 0.2, options["temperature"])
	assert.Equal(t, float64(40), options["top_k"])
	assert.Equal(t, float64(128), options["num_predict"])
	assert.NotContains(t, decoded, "temperature", "no top-level sampling in the ollama dialect")
}

func TestApplyHeaders_LANRelay(t *testing.T) {
	backend := domain.RemoteBackend{
		Name: "phone",
		Type: domain.EndpointRelayLAN,
		Relay: domain.RelayMetadata{
			DeviceID:  "device-7",
			AuthToken: "relay-token",
			LANURL:    "http://192.168.1.5:8889",
		},
	}
	identity := Identity{ID: "client-1", Name: "Desk", Model: "mac", Platform: "darwin"}

	req, err := http.NewRequest(http.MethodPost, "http://192.168.1.5:8889/v1/chat/completions", nil)
	require.NoError(t, err)

	applyHeaders(req, backend, domain.LAN("HomeNet"), identity)

	assert.Equal(t, "Bearer relay-token", req.Header.Get("Authorization"))
	assert.Equal(t, "lan", req.Header.Get("X-Noema-Transport"))
	assert.Equal(t, "client-1", req.Header.Get("X-Noema-Client-ID"))
	assert.Equal(t, "Desk", req.Header.Get("X-Noema-Client-Name"))
	assert.Equal(t, "HomeNet", req.Header.Get("X-Noema-Client-SSID"))
	assert.Equal(t, "device-7", req.Header.Get("X-Noema-Relay-Device"))
}

func TestApplyHeaders_DirectBackend(t *testing.T) {
	backend := domain.RemoteBackend{
		Type:       domain.EndpointOpenAI,
		AuthHeader: "Bearer sk-123",
	}

	req, err := http.NewRequest(http.MethodPost, "http://host/v1/chat/completions", nil)
	require.NoError(t, err)

	applyHeaders(req, backend, domain.Direct(), Identity{ID: "client-1"})

	assert.Equal(t, "Bearer sk-123", req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("X-Noema-Transport"), "identity headers are relay-only")
}
