package llm

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation is a message history together with the settings used to send
// it to a chat completion endpoint.
type Conversation struct {
	id         string
	credential string
	httpClient HTTPClient

	model            string
	baseURL          string
	temperature      float64
	topP             float64
	presencePenalty  float64
	frequencyPenalty float64
	maxTokens        int
	streaming        bool
	contextMessages  int
	maxRetries       int
	retryDelay       time.Duration

	messages  []Message
	lastReply string
	usage     Usage
	lastErr   ErrorState
}

// New creates a conversation with default settings. An empty credential falls
// back to DefaultCredential and an empty model to DefaultModel.
func New(credential, model string) (*Conversation, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		credential = DefaultCredential()
	}
	if credential == "" {
		return nil, newError(InvalidArgument, "credential is required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &Conversation{
		id:              uuid.NewString(),
		credential:      credential,
		httpClient:      &http.Client{},
		model:           model,
		baseURL:         DefaultBaseURL,
		temperature:     DefaultTemperature,
		topP:            DefaultTopP,
		streaming:       true,
		contextMessages: DefaultContextMessages,
		maxRetries:      DefaultMaxRetries,
		retryDelay:      DefaultRetryDelay,
	}, nil
}

// ID identifies the conversation in logs and history stores.
func (c *Conversation) ID() string { return c.id }

// SetHTTPClient replaces the transport. nil restores a plain *http.Client.
func (c *Conversation) SetHTTPClient(client HTTPClient) {
	if client == nil {
		client = &http.Client{}
	}
	c.httpClient = client
}

func (c *Conversation) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return newError(InvalidArgument, "model is required")
	}
	c.model = model
	return nil
}

func (c *Conversation) Model() string { return c.model }

// SetTemperature accepts values in [0, 2].
func (c *Conversation) SetTemperature(v float64) error {
	if !(v >= 0 && v <= 2) {
		return newError(InvalidArgument, "temperature %v out of range [0, 2]", v)
	}
	c.temperature = v
	return nil
}

func (c *Conversation) Temperature() float64 { return c.temperature }

// SetTopP accepts values in (0, 1].
func (c *Conversation) SetTopP(v float64) error {
	if !(v > 0 && v <= 1) {
		return newError(InvalidArgument, "top_p %v out of range (0, 1]", v)
	}
	c.topP = v
	return nil
}

func (c *Conversation) TopP() float64 { return c.topP }

// SetPresencePenalty accepts values in [-2, 2].
func (c *Conversation) SetPresencePenalty(v float64) error {
	if !(v >= -2 && v <= 2) {
		return newError(InvalidArgument, "presence_penalty %v out of range [-2, 2]", v)
	}
	c.presencePenalty = v
	return nil
}

func (c *Conversation) PresencePenalty() float64 { return c.presencePenalty }

// SetFrequencyPenalty accepts values in [-2, 2].
func (c *Conversation) SetFrequencyPenalty(v float64) error {
	if !(v >= -2 && v <= 2) {
		return newError(InvalidArgument, "frequency_penalty %v out of range [-2, 2]", v)
	}
	c.frequencyPenalty = v
	return nil
}

func (c *Conversation) FrequencyPenalty() float64 { return c.frequencyPenalty }

// SetMaxTokens limits the completion length. 0 means no limit.
func (c *Conversation) SetMaxTokens(n int) error {
	if n < 0 {
		return newError(InvalidArgument, "max_tokens %d must not be negative", n)
	}
	c.maxTokens = n
	return nil
}

func (c *Conversation) MaxTokens() int { return c.maxTokens }

// SetBaseURL points the conversation at another OpenAI-compatible server.
func (c *Conversation) SetBaseURL(baseURL string) error {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return newError(InvalidArgument, "base url is required")
	}
	c.baseURL = baseURL
	return nil
}

func (c *Conversation) BaseURL() string { return c.baseURL }

// SetStreaming selects the mode used by Send.
func (c *Conversation) SetStreaming(on bool) { c.streaming = on }

func (c *Conversation) Streaming() bool { return c.streaming }

// SetContextMessages sets how many trailing messages a request carries.
// 0 sends only the most recent message.
func (c *Conversation) SetContextMessages(n int) error {
	if n < 0 {
		return newError(InvalidArgument, "context messages %d must not be negative", n)
	}
	c.contextMessages = n
	return nil
}

func (c *Conversation) ContextMessages() int { return c.contextMessages }

// SetRetryConfig sets how many times a request that never reached the server
// is retried, and the pause between attempts.
func (c *Conversation) SetRetryConfig(maxRetries int, delay time.Duration) error {
	if maxRetries < 0 || delay < 0 {
		return newError(InvalidArgument, "retry config must not be negative")
	}
	c.maxRetries = maxRetries
	c.retryDelay = delay
	return nil
}

func (c *Conversation) MaxRetries() int { return c.maxRetries }

func (c *Conversation) RetryDelay() time.Duration { return c.retryDelay }

// CopySettings copies the configuration of src into dst. Messages, replies,
// usage and errors are left alone, as are the credential and transport.
func CopySettings(dst, src *Conversation) error {
	if dst == nil || src == nil {
		return newError(InvalidArgument, "both conversations are required")
	}
	dst.model = src.model
	dst.baseURL = src.baseURL
	dst.temperature = src.temperature
	dst.topP = src.topP
	dst.presencePenalty = src.presencePenalty
	dst.frequencyPenalty = src.frequencyPenalty
	dst.maxTokens = src.maxTokens
	dst.streaming = src.streaming
	dst.contextMessages = src.contextMessages
	dst.maxRetries = src.maxRetries
	dst.retryDelay = src.retryDelay
	return nil
}

// LastReply returns the text of the last successful completion.
func (c *Conversation) LastReply() string { return c.lastReply }

// Usage returns the token counters of the last successful completion.
func (c *Conversation) Usage() Usage { return c.usage }

// Reset clears messages, last reply, usage and error but keeps the settings.
func (c *Conversation) Reset() {
	c.Clear()
	c.lastReply = ""
	c.usage = Usage{}
	c.ClearError()
}
