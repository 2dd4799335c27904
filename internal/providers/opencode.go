package providers

import (
	"context"
	"strings"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/runner"
	"github.com/haasonsaas/relay/pkg/models"
)

// opencodeBackend drives the opencode CLI in one-shot run mode.
type opencodeBackend struct {
	cliBackend
}

func newOpenCodeBackend(bc config.BackendConfig, opts Options) *opencodeBackend {
	return &opencodeBackend{cliBackend: newCLIBackend(config.BackendOpenCode, bc, opts)}
}

// Execute runs `opencode run <prompt>` and returns trimmed stdout.
func (b *opencodeBackend) Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	prompt := FormatPrompt(req.Messages)

	res, err := b.run(ctx, runner.Spec{
		Command: b.command,
		Args:    []string{"run", prompt},
		Timeout: b.timeout,
	})
	if err != nil {
		return nil, err
	}

	return b.respond(prompt, strings.TrimSpace(res.Stdout))
}
