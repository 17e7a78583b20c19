package llm

import (
	"encoding/json"
)

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Stream           bool      `json:"stream,omitempty"`
}

// contextWindow returns the messages a request carries: the leading run of
// system messages, then the trailing messages of the rest of the history. A
// window of 0 keeps only the most recent message.
func (c *Conversation) contextWindow() []Message {
	lead := 0
	for lead < len(c.messages) && c.messages[lead].Role == RoleSystem {
		lead++
	}
	rest := c.messages[lead:]

	n := c.contextMessages
	if n == 0 {
		n = 1
	}
	start := len(rest) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, 0, lead+len(rest)-start)
	out = append(out, c.messages[:lead]...)
	out = append(out, rest[start:]...)
	return out
}

func (c *Conversation) buildRequest(stream bool) chatRequest {
	return chatRequest{
		Model:            c.model,
		Messages:         c.contextWindow(),
		Temperature:      c.temperature,
		TopP:             c.topP,
		PresencePenalty:  c.presencePenalty,
		FrequencyPenalty: c.frequencyPenalty,
		MaxTokens:        c.maxTokens,
		Stream:           stream,
	}
}

// RequestBody returns the JSON payload Complete (stream false) or
// CompleteStream (stream true) would send. It does not modify c.
func (c *Conversation) RequestBody(stream bool) ([]byte, error) {
	body, err := c.requestBody(stream)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Conversation) requestBody(stream bool) ([]byte, *Error) {
	body, err := json.Marshal(c.buildRequest(stream))
	if err != nil {
		return nil, wrapError(OutOfMemory, err, "marshal request")
	}
	return body, nil
}
