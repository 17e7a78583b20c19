// Package llm implements a conversation-oriented client for OpenAI-compatible
// chat completion endpoints.
//
// A Conversation owns an ordered message history and the generation settings
// sent with every request. Complete issues a buffered request and CompleteStream
// decodes a server-sent event stream, delivering each text delta to a
// StreamHandler as it arrives. The outcome of the most recent request is kept on
// the conversation and can be read back with LastError.
//
// A Conversation is not safe for concurrent use.
package llm

import "net/http"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage holds the token counters reported by the last successful completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamHandler receives each content delta of a streamed completion, in
// arrival order. Returning an error aborts the transfer.
type StreamHandler func(delta string) error

// HTTPClient is the transport used for every request. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
