package providers

import (
	"context"
	"strings"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/runner"
	"github.com/haasonsaas/relay/pkg/models"
)

// cursorBackend drives the cursor agent CLI in non-interactive print mode.
type cursorBackend struct {
	cliBackend
}

func newCursorBackend(bc config.BackendConfig, opts Options) *cursorBackend {
	return &cursorBackend{cliBackend: newCLIBackend(config.BackendCursor, bc, opts)}
}

// Execute runs `cursor -p -` with the prompt on stdin and returns trimmed
// stdout.
func (b *cursorBackend) Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	prompt := FormatPrompt(req.Messages)

	res, err := b.run(ctx, runner.Spec{
		Command: b.command,
		Args:    []string{"-p", "-"},
		Stdin:   prompt,
		Timeout: b.timeout,
	})
	if err != nil {
		return nil, err
	}

	return b.respond(prompt, strings.TrimSpace(res.Stdout))
}
