package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/stream"
	"github.com/haasonsaas/relay/pkg/models"
)

// openaiBackend calls the hosted OpenAI chat-completions API. Unlike the
// CLI backends it forwards the conversation with roles intact and reports
// the API's real token counts. It is the one backend that streams natively.
type openaiBackend struct {
	name    string
	model   string
	timeout time.Duration
	client  *openai.Client
	logger  *slog.Logger
}

func newOpenAIBackend(bc config.BackendConfig, opts Options) *openaiBackend {
	clientCfg := openai.DefaultConfig(bc.APIKey)
	if bc.BaseURL != "" {
		clientCfg.BaseURL = bc.BaseURL
	}
	return &openaiBackend{
		name:    config.BackendOpenAI,
		model:   bc.Model,
		timeout: bc.Timeout,
		client:  openai.NewClientWithConfig(clientCfg),
		logger:  opts.Logger.With("component", "providers", "backend", config.BackendOpenAI),
	}
}

func (b *openaiBackend) Name() string  { return b.name }
func (b *openaiBackend) Model() string { return b.model }

func (b *openaiBackend) buildRequest(req *models.ChatRequest, streaming bool) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: openaiMessages(req.Messages),
		Stream:   streaming,
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	}
	return chatReq
}

// Execute asks the API for a complete answer in one round trip.
func (b *openaiBackend) Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.logger.Info("calling openai API", "model", b.model)

	resp, err := b.client.CreateChatCompletion(ctx, b.buildRequest(req, false))
	if err != nil {
		return nil, hostedError(b.name, b.timeout, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, NewExecutionError(b.name, "backend produced no output", nil)
	}

	choice := resp.Choices[0]
	usage := &models.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return models.NewChatResponse(b.name, choice.Message.Content, openaiFinish(choice.FinishReason), usage), nil
}

// ExecuteStream opens a streaming completion and converts each delta into a
// fragment. Every fragment shares one response ID so consumers can stitch
// the stream back together.
func (b *openaiBackend) ExecuteStream(ctx context.Context, req *models.ChatRequest) (<-chan stream.Fragment, error) {
	cancel := context.CancelFunc(func() {})
	if b.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
	}

	s, err := b.client.CreateChatCompletionStream(ctx, b.buildRequest(req, true))
	if err != nil {
		cancel()
		return nil, hostedError(b.name, b.timeout, err)
	}

	out := make(chan stream.Fragment)
	go func() {
		defer close(out)
		defer cancel()
		defer s.Close()

		id := models.NewResponseID()
		created := time.Now().Unix()

		for {
			resp, err := s.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				select {
				case out <- stream.Fragment{Err: hostedError(b.name, b.timeout, err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			choice := resp.Choices[0]
			if choice.Delta.Content == "" && choice.FinishReason == "" {
				continue
			}

			frag := &models.ChatResponse{
				ID:      id,
				Object:  "chat.completion",
				Created: created,
				Model:   b.name,
				Choices: []models.ChatResponseChoice{
					{
						Index:        0,
						Message:      models.ChatMessage{Role: models.RoleAssistant, Content: choice.Delta.Content},
						FinishReason: openaiFinish(choice.FinishReason),
					},
				},
			}
			select {
			case out <- stream.Fragment{Response: frag}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func openaiMessages(messages []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := string(msg.Role)
		switch msg.Role {
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case models.RoleUser:
			role = openai.ChatMessageRoleUser
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}

func openaiFinish(reason openai.FinishReason) models.FinishReason {
	if reason == openai.FinishReasonLength {
		return models.FinishLength
	}
	return models.FinishStop
}
