package providers

import (
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/relay/pkg/models"
)

// FormatPrompt flattens a conversation into the labeled-turn form the CLI
// backends consume on stdin:
//
//	System: You are terse.
//
//	User: What is Go?
//
//	Assistant: A programming language.
//
// Turns with unrecognized roles are skipped.
func FormatPrompt(messages []models.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			parts = append(parts, "System: "+msg.Content)
		case models.RoleUser:
			parts = append(parts, "User: "+msg.Content)
		case models.RoleAssistant:
			parts = append(parts, "Assistant: "+msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// EstimateTokens approximates token usage at one token per three characters.
// CLI backends have no tokenizer access, so this conservative figure stands
// in for real counts.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 3
}

// EstimateUsage builds a Usage from prompt and completion text.
func EstimateUsage(prompt, completion string) *models.Usage {
	p := EstimateTokens(prompt)
	c := EstimateTokens(completion)
	return &models.Usage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
	}
}
