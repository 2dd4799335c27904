package providers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/runner"
	"github.com/haasonsaas/relay/pkg/models"
)

// newGeminiBackend picks the hosted Gemini API when an API key is
// configured and falls back to the gemini CLI otherwise.
func newGeminiBackend(bc config.BackendConfig, opts Options) (Provider, error) {
	if bc.APIKey != "" {
		return newGeminiAPIBackend(bc, opts)
	}
	opts.Logger.Info("gemini API key not configured, using CLI", "command", bc.Command)
	return newGeminiCLIBackend(bc, opts), nil
}

// geminiCLIBackend drives the gemini CLI in chat mode.
type geminiCLIBackend struct {
	cliBackend
}

func newGeminiCLIBackend(bc config.BackendConfig, opts Options) *geminiCLIBackend {
	return &geminiCLIBackend{cliBackend: newCLIBackend(config.BackendGemini, bc, opts)}
}

// Execute runs `gemini chat` with the prompt on stdin and returns trimmed
// stdout.
func (b *geminiCLIBackend) Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	prompt := FormatPrompt(req.Messages)

	res, err := b.run(ctx, runner.Spec{
		Command: b.command,
		Args:    []string{"chat"},
		Stdin:   prompt,
		Timeout: b.timeout,
	})
	if err != nil {
		return nil, err
	}

	return b.respond(prompt, strings.TrimSpace(res.Stdout))
}

// geminiAPIBackend calls the hosted Gemini API. The conversation is
// flattened into a single prompt the same way the CLI path does it, and
// usage stays estimated for parity with that path.
type geminiAPIBackend struct {
	name    string
	model   string
	timeout time.Duration
	client  *genai.Client
	logger  *slog.Logger
}

func newGeminiAPIBackend(bc config.BackendConfig, opts Options) (*geminiAPIBackend, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  bc.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiAPIBackend{
		name:    config.BackendGemini,
		model:   bc.Model,
		timeout: bc.Timeout,
		client:  client,
		logger:  opts.Logger.With("component", "providers", "backend", config.BackendGemini),
	}, nil
}

func (b *geminiAPIBackend) Name() string  { return b.name }
func (b *geminiAPIBackend) Model() string { return b.model }

// Execute asks the hosted API for a completion.
func (b *geminiAPIBackend) Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	prompt := FormatPrompt(req.Messages)

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: prompt}}},
	}
	genCfg := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		genCfg.Temperature = &t
	}
	if req.MaxTokens != nil {
		maxTokens := min(*req.MaxTokens, math.MaxInt32)
		// #nosec G115 -- bounded by min above
		genCfg.MaxOutputTokens = int32(maxTokens)
	}

	b.logger.Info("calling gemini API", "model", b.model)

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, genCfg)
	if err != nil {
		return nil, hostedError(b.name, b.timeout, err)
	}

	content := geminiText(resp)
	if content == "" {
		return nil, NewExecutionError(b.name, "backend produced no output", nil)
	}

	return models.NewChatResponse(b.name, content, models.FinishStop, EstimateUsage(prompt, content)), nil
}

// geminiText concatenates the text parts of the first candidate that has
// content.
func geminiText(resp *genai.GenerateContentResponse) string {
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
		return sb.String()
	}
	return ""
}
