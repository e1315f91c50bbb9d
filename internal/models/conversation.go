package models

import (
	"math"
	"slices"
	"sync"

	goopenai "github.com/sashabaranov/go-openai"
)

// Conversation is an append-only, chronologically ordered log of messages for one endpoint. It is
// seeded with a single system message and only ever grows; there is no eviction, so the context
// sent upstream grows with every turn.
//
// Writes come from the turn in flight only, but readers such as page rendering may run
// concurrently, so access is guarded.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// RequestParams holds the sampling fields of a completions request.
type RequestParams struct {
	Model       string
	Temperature float32
	// MaxTokens of -1 asks the server for an unbounded completion.
	MaxTokens int
}

// DefaultRequestParams returns the parameters both endpoints are called with unless configured
// otherwise.
func DefaultRequestParams() RequestParams {
	return RequestParams{
		Model:       "phi-4",
		Temperature: 0.7,
		MaxTokens:   -1,
	}
}

// NewConversation creates a conversation holding only the given system prompt.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []Message{{Role: RoleSystem, Content: systemPrompt}},
	}
}

// AppendUser appends a user message.
func (c *Conversation) AppendUser(text string) {
	c.append(Message{Role: RoleUser, Content: text})
}

// AppendAssistant appends the complete text of a finished response. It is called once per
// completed turn.
func (c *Conversation) AppendAssistant(text string) {
	c.append(Message{Role: RoleAssistant, Content: text})
}

func (c *Conversation) append(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

// Messages returns a copy of the log in order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.messages)
}

// Len returns the number of messages, including the system message.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// RequestPayload builds the streaming chat-completions request body for the current history.
//
// A zero temperature is sent as the smallest positive float32, since the request type omits a zero
// value and the server would substitute its own default. A zero MaxTokens is omitted.
func (c *Conversation) RequestPayload(params RequestParams) goopenai.ChatCompletionRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := make([]goopenai.ChatCompletionMessage, len(c.messages))
	for i, m := range c.messages {
		msgs[i] = goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	temperature := params.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return goopenai.ChatCompletionRequest{
		Model:       params.Model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   params.MaxTokens,
		Stream:      true,
	}
}
