package providers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/pkg/models"
)

const anthropicDefaultMaxTokens = 4096

// anthropicBackend calls the hosted Anthropic messages API. System turns
// move into the dedicated system field; user and assistant turns keep their
// roles. Token counts come from the API.
type anthropicBackend struct {
	name    string
	model   string
	timeout time.Duration
	client  anthropic.Client
	logger  *slog.Logger
}

func newAnthropicBackend(bc config.BackendConfig, opts Options) *anthropicBackend {
	options := []option.RequestOption{option.WithAPIKey(bc.APIKey)}
	if bc.BaseURL != "" {
		options = append(options, option.WithBaseURL(bc.BaseURL))
	}
	return &anthropicBackend{
		name:    config.BackendAnthropic,
		model:   bc.Model,
		timeout: bc.Timeout,
		client:  anthropic.NewClient(options...),
		logger:  opts.Logger.With("component", "providers", "backend", config.BackendAnthropic),
	}
}

func (b *anthropicBackend) Name() string  { return b.name }
func (b *anthropicBackend) Model() string { return b.model }

// Execute asks the API for a complete answer in one round trip.
func (b *anthropicBackend) Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		Messages:  anthropicMessages(req.Messages),
		MaxTokens: int64(maxTokens),
	}
	if system := systemPrompt(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: system,
			},
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	b.logger.Info("calling anthropic API", "model", b.model)

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, hostedError(b.name, b.timeout, err)
	}

	content := anthropicText(msg)
	if content == "" {
		return nil, NewExecutionError(b.name, "backend produced no output", nil)
	}

	usage := &models.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	reason := models.FinishStop
	if msg.StopReason == anthropic.StopReasonMaxTokens {
		reason = models.FinishLength
	}
	return models.NewChatResponse(b.name, content, reason, usage), nil
}

// anthropicMessages converts user and assistant turns. System turns are
// excluded here and carried in the request's system field instead.
func anthropicMessages(messages []models.ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

// systemPrompt joins the system turns of a conversation.
func systemPrompt(messages []models.ChatMessage) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// anthropicText concatenates the text blocks of a message.
func anthropicText(msg *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
