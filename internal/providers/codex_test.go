package providers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/internal/runner"
)

var instructedPathPattern = regexp.MustCompile(`Save the result to the file '([^']+)'`)

// instructedPath pulls the output file path out of the enhanced prompt the
// backend passes as the final argument.
func instructedPath(t *testing.T, spec runner.Spec) string {
	t.Helper()
	if len(spec.Args) == 0 {
		t.Fatal("spec has no args")
	}
	m := instructedPathPattern.FindStringSubmatch(spec.Args[len(spec.Args)-1])
	if m == nil {
		t.Fatalf("prompt does not instruct an output file: %q", spec.Args[len(spec.Args)-1])
	}
	return m[1]
}

func newTestCodex(t *testing.T, fake *fakeRunner) *codexBackend {
	t.Helper()
	b := newCodexBackend(cliConfig("codex"), testOptions(fake))
	b.model = "gpt-5.2"
	b.tempDir = t.TempDir()
	return b
}

func TestCodexCommandLine(t *testing.T) {
	fake := &fakeRunner{result: success("fine")}
	b := newTestCodex(t, fake)

	if _, err := b.Execute(context.Background(), userRequest("hi")); err != nil {
		t.Fatalf("execute: %v", err)
	}

	spec := fake.calls[0]
	if spec.Command != "codex" {
		t.Errorf("command = %q", spec.Command)
	}
	want := []string{"exec", "--model", "gpt-5.2", "--skip-git-repo-check", "--dangerously-bypass-approvals-and-sandbox"}
	if len(spec.Args) != len(want)+1 {
		t.Fatalf("args = %v", spec.Args)
	}
	for i, arg := range want {
		if spec.Args[i] != arg {
			t.Errorf("args[%d] = %q, want %q", i, spec.Args[i], arg)
		}
	}
	prompt := spec.Args[len(spec.Args)-1]
	if !strings.HasPrefix(prompt, "User: hi") {
		t.Errorf("prompt arg = %q, want conversation first", prompt)
	}
	if !instructedPathPattern.MatchString(prompt) {
		t.Errorf("prompt arg lacks save instruction: %q", prompt)
	}
	if spec.Stdin != "" {
		t.Errorf("stdin = %q, want none", spec.Stdin)
	}
}

func TestCodexReadsOutputFile(t *testing.T) {
	var written string
	fake := &fakeRunner{}
	b := newTestCodex(t, fake)
	fake.run = func(spec runner.Spec) *runner.Result {
		written = instructedPath(t, spec)
		if err := os.WriteFile(written, []byte("# Answer\n\nIt depends.\n"), 0o644); err != nil {
			t.Fatalf("write output file: %v", err)
		}
		return success("I saved the answer for you.")
	}

	resp, err := b.Execute(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := resp.Content(); got != "# Answer\n\nIt depends.\n" {
		t.Errorf("content = %q, want file content", got)
	}
	if _, err := os.Stat(written); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output file still present after read: %v", err)
	}
}

func TestCodexExtractsPathFromStdout(t *testing.T) {
	side := filepath.Join(t.TempDir(), "answer.md")
	if err := os.WriteFile(side, []byte("from the side file"), 0o644); err != nil {
		t.Fatalf("write side file: %v", err)
	}

	fake := &fakeRunner{result: success("Done. Result saved to " + side + " as requested.")}
	b := newTestCodex(t, fake)

	resp, err := b.Execute(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := resp.Content(); got != "from the side file" {
		t.Errorf("content = %q, want side file content", got)
	}
	if _, err := os.Stat(side); err != nil {
		t.Errorf("side file should not be deleted: %v", err)
	}
}

func TestCodexFallsBackToStdout(t *testing.T) {
	fake := &fakeRunner{result: success("  plain stdout answer  ")}
	b := newTestCodex(t, fake)

	resp, err := b.Execute(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := resp.Content(); got != "plain stdout answer" {
		t.Errorf("content = %q, want trimmed stdout", got)
	}
}

func TestCodexUniqueOutputPaths(t *testing.T) {
	b := newTestCodex(t, &fakeRunner{})

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		p := b.outputPath()
		if seen[p] {
			t.Fatalf("duplicate output path %q", p)
		}
		seen[p] = true
		if !strings.HasPrefix(filepath.Base(p), "codex_output_") || !strings.HasSuffix(p, ".md") {
			t.Errorf("unexpected path shape %q", p)
		}
	}
}

func TestExtractFilePaths(t *testing.T) {
	text := `The answer is in 'docs/quoted.md' now.
Also wrote C:\work\win.txt and /var/tmp/unix.json for you.
Finally rel/last.yaml exists too.`

	got := extractFilePaths(text)

	if len(got) == 0 || got[0] != "docs/quoted.md" {
		t.Fatalf("paths = %v, want quoted path first", got)
	}

	index := func(want string) int {
		for i, p := range got {
			if p == want {
				return i
			}
		}
		t.Fatalf("paths = %v, missing %q", got, want)
		return -1
	}
	for _, want := range []string{`C:\work\win.txt`, "/var/tmp/unix.json", "rel/last.yaml"} {
		index(want)
	}
	if index(`C:\work\win.txt`) > index("/var/tmp/unix.json") {
		t.Errorf("windows pattern should rank before unix pattern: %v", got)
	}
}

func TestExtractFilePathsDeduplicates(t *testing.T) {
	got := extractFilePaths(`saved '/tmp/a.md' at /tmp/a.md`)

	count := 0
	for _, p := range got {
		if p == "/tmp/a.md" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("path duplicated: %v", got)
	}
}

func TestExtractFilePathsNoMatches(t *testing.T) {
	if got := extractFilePaths("no paths here at all"); len(got) != 0 {
		t.Errorf("paths = %v, want none", got)
	}
}
