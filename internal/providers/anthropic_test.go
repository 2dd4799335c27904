package providers

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haasonsaas/relay/pkg/models"
)

func TestSystemPrompt(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.ChatMessage
		want     string
	}{
		{
			name: "single system turn",
			messages: []models.ChatMessage{
				{Role: models.RoleSystem, Content: "You are terse."},
				{Role: models.RoleUser, Content: "hi"},
			},
			want: "You are terse.",
		},
		{
			name: "multiple system turns joined",
			messages: []models.ChatMessage{
				{Role: models.RoleSystem, Content: "First rule."},
				{Role: models.RoleUser, Content: "hi"},
				{Role: models.RoleSystem, Content: "Second rule."},
			},
			want: "First rule.\n\nSecond rule.",
		},
		{
			name: "no system turn",
			messages: []models.ChatMessage{
				{Role: models.RoleUser, Content: "hi"},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := systemPrompt(tt.messages); got != tt.want {
				t.Errorf("systemPrompt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnthropicMessages(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: "You are terse."},
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: "Hi there"},
		{Role: "tool", Content: "ignored"},
		{Role: models.RoleUser, Content: "Bye"},
	}

	got := anthropicMessages(messages)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (system and unknown roles excluded)", len(got))
	}
	wantRoles := []anthropic.MessageParamRole{
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
		anthropic.MessageParamRoleUser,
	}
	for i, want := range wantRoles {
		if got[i].Role != want {
			t.Errorf("messages[%d].Role = %q, want %q", i, got[i].Role, want)
		}
	}
}

func TestAnthropicText(t *testing.T) {
	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Hello "},
			{Type: "tool_use"},
			{Type: "text", Text: "world"},
		},
	}
	if got := anthropicText(msg); got != "Hello world" {
		t.Errorf("anthropicText = %q", got)
	}

	if got := anthropicText(&anthropic.Message{}); got != "" {
		t.Errorf("anthropicText(empty) = %q, want empty", got)
	}
}
