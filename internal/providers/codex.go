package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/runner"
	"github.com/haasonsaas/relay/pkg/models"
)

// codexBackend drives the codex CLI. codex delivers long answers to disk
// more reliably than to stdout, so every request instructs it to save the
// result to a unique temp file, which is read back and removed afterwards.
// When the file never appears, stdout is scanned for a path codex may have
// chosen on its own before falling back to stdout itself.
type codexBackend struct {
	cliBackend

	// tempDir overrides the output file directory. Empty means os.TempDir.
	tempDir string
}

func newCodexBackend(bc config.BackendConfig, opts Options) *codexBackend {
	return &codexBackend{cliBackend: newCLIBackend(config.BackendCodex, bc, opts)}
}

// Execute runs `codex exec` with the prompt as the final argument and
// recovers the answer from the instructed output file, an extracted file
// path, or trimmed stdout, in that order.
func (b *codexBackend) Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	prompt := FormatPrompt(req.Messages)

	outputFile := b.outputPath()
	defer b.removeQuietly(outputFile)

	enhanced := fmt.Sprintf("%s\n\nSave the result to the file '%s'.", prompt, outputFile)

	res, err := b.run(ctx, runner.Spec{
		Command: b.command,
		Args: []string{
			"exec",
			"--model", b.model,
			"--skip-git-repo-check",
			"--dangerously-bypass-approvals-and-sandbox",
			enhanced,
		},
		Timeout: b.timeout,
	})
	if err != nil {
		return nil, err
	}

	return b.respond(prompt, b.collectContent(outputFile, res.Stdout))
}

// collectContent locates the answer text after a successful run.
func (b *codexBackend) collectContent(outputFile, stdout string) string {
	if _, err := os.Stat(outputFile); err == nil {
		data, err := os.ReadFile(outputFile)
		if err != nil {
			b.logger.Warn("output file unreadable, using stdout", "path", outputFile, "error", err)
			return strings.TrimSpace(stdout)
		}
		b.logger.Info("read answer from output file", "path", outputFile, "bytes", len(data))
		return string(data)
	}

	// The instructed file never appeared; codex sometimes reports where it
	// saved the answer instead.
	for _, path := range extractFilePaths(stdout) {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("extracted path unreadable", "path", path, "error", err)
			continue
		}
		b.logger.Info("read answer from extracted path", "path", path, "bytes", len(data))
		return string(data)
	}

	return strings.TrimSpace(stdout)
}

func (b *codexBackend) outputPath() string {
	dir := b.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return filepath.Join(dir, fmt.Sprintf("codex_output_%d_%s.md", os.Getpid(), nonce))
}

func (b *codexBackend) removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		b.logger.Warn("could not remove output file", "path", path, "error", err)
	}
}

const codexPathExts = `(?:md|txt|json|py|js|ts|html|css|yaml|yml)`

// Most specific first: quoted paths, Windows absolute, Unix absolute, bare
// relative paths.
var codexPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`["']([^"']+\.` + codexPathExts + `)["']`),
	regexp.MustCompile(`([A-Za-z]:[\\/]\S+\.` + codexPathExts + `)`),
	regexp.MustCompile(`(/\S+\.` + codexPathExts + `)`),
	regexp.MustCompile(`(\S+\.` + codexPathExts + `)`),
}

// extractFilePaths pulls candidate file paths out of CLI output, preserving
// pattern order and dropping duplicates.
func extractFilePaths(text string) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, pattern := range codexPathPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			if p := match[1]; !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return paths
}
