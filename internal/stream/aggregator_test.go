package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

type syncProvider struct {
	content string
	err     error
	block   bool
}

func (p *syncProvider) Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return models.NewChatResponse(req.Model, p.content, models.FinishStop, nil), nil
}

type streamingProvider struct {
	pieces   []string
	startErr error
}

func (p *streamingProvider) Execute(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	return models.NewChatResponse(req.Model, strings.Join(p.pieces, ""), models.FinishStop, nil), nil
}

func (p *streamingProvider) ExecuteStream(ctx context.Context, req *models.ChatRequest) (<-chan Fragment, error) {
	if p.startErr != nil {
		return nil, p.startErr
	}
	out := make(chan Fragment)
	go func() {
		defer close(out)
		for _, piece := range p.pieces {
			select {
			case out <- Fragment{Response: models.NewChatResponse(req.Model, piece, models.FinishStop, nil)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func collect(t *testing.T, ch <-chan Fragment) []Fragment {
	t.Helper()

	var frags []Fragment
	deadline := time.After(5 * time.Second)
	for {
		select {
		case frag, ok := <-ch:
			if !ok {
				return frags
			}
			frags = append(frags, frag)
		case <-deadline:
			t.Fatalf("stream did not close, got %d fragments", len(frags))
		}
	}
}

func TestStreamSingleFragmentFallback(t *testing.T) {
	agg := New(Config{})
	req := &models.ChatRequest{Model: "opencode", Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}}

	frags := collect(t, agg.Stream(context.Background(), &syncProvider{content: "hello world"}, req))

	if len(frags) != 1 {
		t.Fatalf("expected exactly one fragment, got %d", len(frags))
	}
	if frags[0].Err != nil {
		t.Fatalf("unexpected fragment error: %v", frags[0].Err)
	}
	if got := frags[0].Response.Content(); got != "hello world" {
		t.Errorf("fragment content = %q, want %q", got, "hello world")
	}
	if frags[0].Response.Model != "opencode" {
		t.Errorf("fragment model = %q, want %q", frags[0].Response.Model, "opencode")
	}
}

func TestStreamPassthroughConcatenation(t *testing.T) {
	agg := New(Config{})
	provider := &streamingProvider{pieces: []string{"He", "llo", ", wor", "ld"}}
	req := &models.ChatRequest{Model: "openai", Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}}

	sync, err := provider.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	frags := collect(t, agg.Stream(context.Background(), provider, req))

	if len(frags) != len(provider.pieces) {
		t.Fatalf("expected %d fragments, got %d", len(provider.pieces), len(frags))
	}
	var b strings.Builder
	for _, frag := range frags {
		if frag.Err != nil {
			t.Fatalf("unexpected fragment error: %v", frag.Err)
		}
		b.WriteString(frag.Response.Content())
	}
	if b.String() != sync.Content() {
		t.Errorf("concatenated fragments = %q, want sync content %q", b.String(), sync.Content())
	}
}

func TestStreamExecuteError(t *testing.T) {
	agg := New(Config{})
	boom := errors.New("backend exploded")
	req := &models.ChatRequest{Model: "codex", Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}}

	frags := collect(t, agg.Stream(context.Background(), &syncProvider{err: boom}, req))

	if len(frags) != 1 {
		t.Fatalf("expected one error fragment, got %d", len(frags))
	}
	if !errors.Is(frags[0].Err, boom) {
		t.Errorf("fragment error = %v, want %v", frags[0].Err, boom)
	}
}

func TestStreamStartError(t *testing.T) {
	agg := New(Config{})
	boom := errors.New("connect refused")
	req := &models.ChatRequest{Model: "openai", Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}}

	frags := collect(t, agg.Stream(context.Background(), &streamingProvider{startErr: boom}, req))

	if len(frags) != 1 {
		t.Fatalf("expected one error fragment, got %d", len(frags))
	}
	if !errors.Is(frags[0].Err, boom) {
		t.Errorf("fragment error = %v, want %v", frags[0].Err, boom)
	}
}

func TestStreamCancellation(t *testing.T) {
	agg := New(Config{})
	req := &models.ChatRequest{Model: "codex", Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}}

	ctx, cancel := context.WithCancel(context.Background())
	ch := agg.Stream(ctx, &syncProvider{block: true}, req)
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case frag, ok := <-ch:
			if !ok {
				return
			}
			if frag.Err == nil {
				t.Fatalf("expected error fragment after cancel, got %+v", frag.Response)
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}
