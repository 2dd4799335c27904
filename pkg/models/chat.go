package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role indicates the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FinishReason explains why a completion ended.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishError  FinishReason = "error"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the normalized inbound request. Model names the backend that
// should produce the answer ("codex", "gemini", ...); an empty value falls back
// to the configured default backend.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// Validate checks the request against the boundary contract.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range r.Messages {
		if strings.TrimSpace(string(m.Role)) == "" {
			return fmt.Errorf("messages[%d]: role is required", i)
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1")
	}
	return nil
}

// ChatResponseChoice is one candidate answer.
type ChatResponseChoice struct {
	Index        int          `json:"index"`
	Message      ChatMessage  `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Usage reports token consumption. For CLI backends the counts are estimated
// at one token per three characters; hosted backends report real counts when
// their API supplies them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the normalized result in OpenAI chat-completion shape.
type ChatResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []ChatResponseChoice `json:"choices"`
	Usage   *Usage               `json:"usage,omitempty"`
}

// NewResponseID returns an identifier like "chatcmpl-1a2b3c4d5e6f".
func NewResponseID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewChatResponse builds a single-choice response for the given backend.
func NewChatResponse(model, content string, reason FinishReason, usage *Usage) *ChatResponse {
	return &ChatResponse{
		ID:      NewResponseID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatResponseChoice{
			{
				Index:        0,
				Message:      ChatMessage{Role: RoleAssistant, Content: content},
				FinishReason: reason,
			},
		},
		Usage: usage,
	}
}

// Content returns the first choice's text, or "" when there is none.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ModelInfo describes one registered backend in OpenAI model-list shape.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
}

// ModelList is the /v1/models response body.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// NewModelList wraps backend identifiers in the list shape.
func NewModelList(ids []string) *ModelList {
	now := time.Now().Unix()
	list := &ModelList{Object: "list", Data: make([]ModelInfo, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, ModelInfo{ID: id, Object: "model", Created: now})
	}
	return list
}
