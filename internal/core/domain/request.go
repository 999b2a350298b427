package domain

import (
	"encoding/json"
	"fmt"
)

// Message is a single conversational turn in the OpenAI wire shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingParams carries the generation knobs shared by every request shape.
// Pointers distinguish "absent" from zero so backends keep their own defaults.
type SamplingParams struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
}

// ChatCompletionRequest is the normalised /v1/chat/completions payload.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
	User     string    `json:"user,omitempty"`
	SamplingParams
}

// Prompt accepts either a bare string or a list of strings, as OpenAI's
// legacy completions endpoint does.
type Prompt []string

func (p *Prompt) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = Prompt{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*p = Prompt(many)
		return nil
	}

	return fmt.Errorf("prompt must be a string or an array of strings")
}

func (p Prompt) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(p[0])
	}
	return json.Marshal([]string(p))
}

// Joined flattens a multi-part prompt into the single string fed to the engine.
func (p Prompt) Joined() string {
	switch len(p) {
	case 0:
		return ""
	case 1:
		return p[0]
	default:
		out := p[0]
		for _, part := range p[1:] {
			out += "\n" + part
		}
		return out
	}
}

// TextCompletionRequest is the normalised /v1/completions payload.
type TextCompletionRequest struct {
	Model  string `json:"model"`
	Prompt Prompt `json:"prompt"`
	Stream bool   `json:"stream,omitempty"`
	User   string `json:"user,omitempty"`
	SamplingParams
}

// ResponsesRequest is the /api/v0/responses payload.
type ResponsesRequest struct {
	Model              string  `json:"model"`
	Input              Message `json:"input"`
	PreviousResponseID string  `json:"previous_response_id,omitempty"`
	Stream             bool    `json:"stream,omitempty"`
	User               string  `json:"user,omitempty"`
	SamplingParams
}
